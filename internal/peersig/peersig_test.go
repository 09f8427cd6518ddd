package peersig

import (
	"net/netip"
	"testing"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	m := New()
	ip := netip.MustParseAddr("10.0.0.1")

	id1 := m.GetOrCreate("rrc00", ip, 65001)
	id2 := m.GetOrCreate("rrc00", ip, 65001)
	if id1 != id2 {
		t.Fatalf("expected idempotent id, got %d and %d", id1, id2)
	}
	if id1 == 0 {
		t.Fatalf("expected non-zero id for first tuple")
	}
}

func TestGetOrCreateDistinctTuples(t *testing.T) {
	m := New()
	ip1 := netip.MustParseAddr("10.0.0.1")
	ip2 := netip.MustParseAddr("10.0.0.2")

	id1 := m.GetOrCreate("rrc00", ip1, 65001)
	id2 := m.GetOrCreate("rrc00", ip2, 65001)
	if id1 == id2 {
		t.Fatalf("expected distinct ids for distinct peer IPs")
	}
}

func TestLookupSigRoundTrip(t *testing.T) {
	m := New()
	ip := netip.MustParseAddr("2001:db8::1")
	id := m.GetOrCreate("rrc10", ip, 65550)

	sig, ok := m.LookupSig(id)
	if !ok {
		t.Fatalf("expected lookup to succeed for id returned by GetOrCreate")
	}
	want := Sig{Collector: "rrc10", PeerIP: ip, PeerASN: 65550}
	if !sig.Equal(want) {
		t.Fatalf("lookup mismatch: got %+v, want %+v", sig, want)
	}
}

func TestLookupSigUnknownID(t *testing.T) {
	m := New()
	if _, ok := m.LookupSig(1); ok {
		t.Fatalf("expected lookup of never-issued id to fail")
	}
	if _, ok := m.LookupSig(0); ok {
		t.Fatalf("expected lookup of reserved id 0 to fail")
	}
}

// TestSharedSigmapSameID models invariant 8: two views sharing a
// PeerSignatureMap and given the same (collector, ip, asn) tuple observe
// the same PeerId.
func TestSharedSigmapSameID(t *testing.T) {
	shared := New()
	ip := netip.MustParseAddr("192.0.2.1")

	idFromViewA := shared.GetOrCreate("rrc00", ip, 64500)
	idFromViewB := shared.GetOrCreate("rrc00", ip, 64500)

	if idFromViewA != idFromViewB {
		t.Fatalf("shared sigmap diverged: %d vs %d", idFromViewA, idFromViewB)
	}
}
