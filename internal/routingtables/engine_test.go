package routingtables

import (
	"net/netip"
	"testing"
	"time"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/view"
)

const testCollector = "rrc00"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	clock := func() time.Time { return time.Unix(0, 0) }
	return New(NewView(), nil, clock)
}

func peerSigMap(peerID uint16, ip string, asn uint32) map[uint16]PeerSig {
	return map[uint16]PeerSig{
		peerID: {PeerIP: netip.MustParseAddr(ip), PeerASN: asn},
	}
}

func pathOf(asns ...uint32) aspath.Path {
	return aspath.Path{{Type: aspath.SegmentSequence, ASNs: asns}}
}

func establishPeer(t *testing.T, e *Engine, ts uint32, peerID uint16, ip string, asn uint32) {
	t.Helper()
	rec := Record{
		Collector: testCollector,
		TimeSec:   ts,
		Type:      RecordTypeUpdate,
		Status:    StatusValidRecord,
		PeerSigs:  peerSigMap(peerID, ip, asn),
		Elems: []Elem{
			{Kind: ElemPeerState, PeerID: peerID, NewFSMState: FSMEstablished},
		},
	}
	if res := e.ProcessRecord(rec); !res.IsOk() {
		t.Fatalf("establishPeer: %v", res)
	}
}

// S4: RIB promotion picks the newer UC state when it clears the backlog
// window.
func TestScenarioRIBPromotionPicksNewerUC(t *testing.T) {
	e := newTestEngine(t)
	establishPeer(t, e, 0, 1, "192.0.2.1", 65001)
	pfx := netip.MustParsePrefix("10.1.0.0/24")

	announce := Record{
		Collector: testCollector, TimeSec: 100, Type: RecordTypeUpdate, Status: StatusValidRecord,
		PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems:    []Elem{{Kind: ElemAnnouncement, PeerID: 1, Pfx: pfx, Path: pathOf(65001, 1111)}},
	}
	if res := e.ProcessRecord(announce); !res.IsOk() {
		t.Fatalf("announce: %v", res)
	}

	ribStart := Record{
		Collector: testCollector, TimeSec: 200, DumpTimeSec: 1, DumpPosition: DumpStart,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
	}
	if res := e.ProcessRecord(ribStart); !res.IsOk() {
		t.Fatalf("rib start: %v", res)
	}

	ribEntry := Record{
		Collector: testCollector, TimeSec: 201, DumpTimeSec: 1, DumpPosition: DumpMiddle,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems: []Elem{{Kind: ElemRib, PeerID: 1, Pfx: pfx, Path: pathOf(65001, 2222)}},
	}
	if res := e.ProcessRecord(ribEntry); !res.IsOk() {
		t.Fatalf("rib entry: %v", res)
	}

	ribEnd := Record{
		Collector: testCollector, TimeSec: 300, DumpTimeSec: 1, DumpPosition: DumpEnd,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
	}
	if res := e.ProcessRecord(ribEnd); !res.IsOk() {
		t.Fatalf("rib end: %v", res)
	}

	e.IntervalEnd()

	id := e.v.PeerSigMap().GetOrCreate(testCollector, netip.MustParseAddr("192.0.2.1"), 65001)
	pathID, ok := e.v.PfxPeerPathID(pfx, id)
	if !ok {
		t.Fatalf("expected pfx-peer entry to still exist")
	}
	sp, ok := e.v.PathStore().Lookup(pathID)
	if !ok {
		t.Fatalf("expected path to resolve")
	}
	origin, ok := sp.OriginSegment()
	if !ok || origin.ASNs[len(origin.ASNs)-1] != 2222 {
		t.Fatalf("expected promoted path to carry origin 2222 (path B), got %+v", sp)
	}

	ps := e.peers[id]
	if ps.ribNegativeMismatches != 0 {
		t.Fatalf("expected 0 rib_negative_mismatches, got %d", ps.ribNegativeMismatches)
	}
}

// S5: a RIB entry inside the backlog window loses to the already-applied
// update.
func TestScenarioRIBLosesToBacklogUpdate(t *testing.T) {
	e := newTestEngine(t)
	establishPeer(t, e, 0, 1, "192.0.2.1", 65001)
	pfx := netip.MustParsePrefix("10.1.0.0/24")

	announce := Record{
		Collector: testCollector, TimeSec: 100, Type: RecordTypeUpdate, Status: StatusValidRecord,
		PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems:    []Elem{{Kind: ElemAnnouncement, PeerID: 1, Pfx: pfx, Path: pathOf(65001, 1111)}},
	}
	e.ProcessRecord(announce)

	ribStart := Record{
		Collector: testCollector, TimeSec: 120, DumpTimeSec: 1, DumpPosition: DumpStart,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
	}
	e.ProcessRecord(ribStart)

	ribEntry := Record{
		Collector: testCollector, TimeSec: 121, DumpTimeSec: 1, DumpPosition: DumpMiddle,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems: []Elem{{Kind: ElemRib, PeerID: 1, Pfx: pfx, Path: pathOf(65001, 2222)}},
	}
	e.ProcessRecord(ribEntry)

	ribEnd := Record{
		Collector: testCollector, TimeSec: 200, DumpTimeSec: 1, DumpPosition: DumpEnd,
		Type: RecordTypeRib, Status: StatusValidRecord, PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
	}
	e.ProcessRecord(ribEnd)

	e.IntervalEnd()

	id := e.v.PeerSigMap().GetOrCreate(testCollector, netip.MustParseAddr("192.0.2.1"), 65001)
	pathID, ok := e.v.PfxPeerPathID(pfx, id)
	if !ok {
		t.Fatalf("expected pfx-peer entry to still exist")
	}
	sp, _ := e.v.PathStore().Lookup(pathID)
	origin, ok := sp.OriginSegment()
	if !ok || origin.ASNs[len(origin.ASNs)-1] != 1111 {
		t.Fatalf("expected path to remain A (origin 1111), got %+v", sp)
	}
}

func TestPeerDownDeactivatesView(t *testing.T) {
	e := newTestEngine(t)
	establishPeer(t, e, 0, 1, "192.0.2.1", 65001)
	pfx := netip.MustParsePrefix("10.1.0.0/24")
	e.ProcessRecord(Record{
		Collector: testCollector, TimeSec: 10, Type: RecordTypeUpdate, Status: StatusValidRecord,
		PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems:    []Elem{{Kind: ElemAnnouncement, PeerID: 1, Pfx: pfx, Path: pathOf(65001, 1111)}},
	})

	id := e.v.PeerSigMap().GetOrCreate(testCollector, netip.MustParseAddr("192.0.2.1"), 65001)
	if e.v.PeerInfo(id).State() != view.Active {
		t.Fatalf("precondition: peer should be active")
	}

	e.ProcessRecord(Record{
		Collector: testCollector, TimeSec: 20, Type: RecordTypeUpdate, Status: StatusValidRecord,
		PeerSigs: peerSigMap(1, "192.0.2.1", 65001),
		Elems:    []Elem{{Kind: ElemPeerState, PeerID: 1, NewFSMState: FSMIdle}},
	})

	if e.v.PeerInfo(id).State() != view.Inactive {
		t.Fatalf("expected peer inactive after PeerState(Idle)")
	}
	if e.v.PfxPeerState(pfx, id) == view.Active {
		t.Fatalf("expected pfx-peer deactivated after peer down")
	}
}
