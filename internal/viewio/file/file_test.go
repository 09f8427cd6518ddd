package file

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio"
	"github.com/route-beacon/bgpview/internal/viewio/ascii"
)

func buildSampleView(t *testing.T) *view.View[*routingtables.PfxPeerStatus] {
	t.Helper()
	v := view.New[*routingtables.PfxPeerStatus](view.Config[*routingtables.PfxPeerStatus]{})
	v.SetTime(1000)

	p1 := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	p2 := v.AddPeer("rrc00", netip.MustParseAddr("2001:db8::1"), 65002)
	v.ActivatePeer(p1)
	v.ActivatePeer(p2)

	pfx4 := netip.MustParsePrefix("198.51.100.0/24")
	path := aspath.Path{
		{Type: aspath.SegmentSequence, ASNs: []uint32{65001, 65010, 65020}},
	}
	v.AddPfxPeer(pfx4, p1, path)
	v.PfxActivatePeer(pfx4, p1)

	pfx6 := netip.MustParsePrefix("2001:db8:1::/48")
	path6 := aspath.Path{
		{Type: aspath.SegmentSequence, ASNs: []uint32{65002, 65030}},
	}
	v.AddPfxPeer(pfx6, p2, path6)
	v.PfxActivatePeer(pfx6, p2)

	return v
}

func TestWriteReadRoundTripPrintsIdentically(t *testing.T) {
	v := buildSampleView(t)

	var wantBuf bytes.Buffer
	if err := ascii.Write(&wantBuf, v, viewio.Filter{}); err != nil {
		t.Fatalf("ascii.Write(source): %v", err)
	}

	var encoded bytes.Buffer
	if err := Write(&encoded, v, viewio.Filter{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v2, err := Read(&encoded)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var gotBuf bytes.Buffer
	if err := ascii.Write(&gotBuf, v2, viewio.Filter{}); err != nil {
		t.Fatalf("ascii.Write(decoded): %v", err)
	}

	if wantBuf.String() != gotBuf.String() {
		t.Fatalf("print mismatch:\nwant:\n%s\ngot:\n%s", wantBuf.String(), gotBuf.String())
	}
}

// A filtered-out peer must not appear as a pfx-peer entry even though its
// AS path still passes filter.IncludePfxPeer; otherwise Read rejects the
// file with a peer id mismatch since that id was never written to the
// peer section.
func TestWriteFiltersPeerFromPfxPeerEntries(t *testing.T) {
	v := buildSampleView(t)

	filter := viewio.Filter{
		FilterPeer: func(sig peersig.Sig) bool { return sig.PeerASN == 65001 },
	}

	var buf bytes.Buffer
	if err := Write(&buf, v, filter); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := Read(&buf); err != nil {
		t.Fatalf("Read rejected a filtered dump, indicating a pfx-peer referenced a filtered-out peer id: %v", err)
	}
}

func TestWriteFiltersPeer(t *testing.T) {
	v := buildSampleView(t)

	filter := viewio.Filter{
		FilterPeer: func(sig peersig.Sig) bool { return sig.PeerASN == 65001 },
	}

	var buf bytes.Buffer
	if err := Write(&buf, v, filter); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v2, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var gotBuf bytes.Buffer
	if err := ascii.Write(&gotBuf, v2, viewio.Filter{}); err != nil {
		t.Fatalf("ascii.Write: %v", err)
	}
	got := gotBuf.String()
	if !bytes.Contains([]byte(got), []byte("65001")) {
		t.Fatalf("expected surviving peer 65001 in output, got:\n%s", got)
	}
	if bytes.Contains([]byte(got), []byte("65002")) {
		t.Fatalf("expected filtered-out peer 65002 absent, got:\n%s", got)
	}
}
