package view

import (
	"net/netip"
	"testing"

	"github.com/route-beacon/bgpview/internal/aspath"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%q): %v", s, err)
	}
	return p
}

func samplePath(asns ...uint32) aspath.Path {
	return aspath.Path{{Type: aspath.SegmentSequence, ASNs: asns}}
}

// S1: single peer announces a single prefix; it becomes visible once both
// the peer and the pfx-peer entry are activated.
func TestScenarioSinglePeerSingleAnnounce(t *testing.T) {
	v := New[int](Config[int]{})
	pfx := mustPrefix(t, "192.0.2.0/24")

	peerID := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	v.AddPfxPeer(pfx, peerID, samplePath(65001, 65002))

	if v.PfxCnt(AllValid) != 1 {
		t.Fatalf("expected 1 valid pfx before activation, got %d", v.PfxCnt(AllValid))
	}
	if v.PfxCnt(Active) != 0 {
		t.Fatalf("pfx should not be Active before peer/pfx-peer activation")
	}

	if got := v.ActivatePeer(peerID); got != 1 {
		t.Fatalf("ActivatePeer: want 1, got %d", got)
	}
	if got := v.PfxActivatePeer(pfx, peerID); got != 1 {
		t.Fatalf("PfxActivatePeer: want 1, got %d", got)
	}

	if v.PfxCnt(Active) != 1 {
		t.Fatalf("expected 1 active pfx, got %d", v.PfxCnt(Active))
	}
	if v.PeerCnt(Active) != 1 {
		t.Fatalf("expected 1 active peer, got %d", v.PeerCnt(Active))
	}
	pe := v.PeerInfo(peerID)
	if pe.v4PfxCnt[Active] != 1 {
		t.Fatalf("peer v4PfxCnt[Active]: want 1, got %d", pe.v4PfxCnt[Active])
	}
}

// S2: withdrawing the sole active peer of a prefix deactivates the prefix.
func TestScenarioWithdrawalDeactivatesPrefix(t *testing.T) {
	v := New[int](Config[int]{})
	pfx := mustPrefix(t, "198.51.100.0/24")

	peerID := v.AddPeer("rrc00", netip.MustParseAddr("198.51.100.1"), 65001)
	v.ActivatePeer(peerID)
	v.AddPfxPeer(pfx, peerID, samplePath(65001))
	v.PfxActivatePeer(pfx, peerID)

	if v.PfxCnt(Active) != 1 {
		t.Fatalf("precondition: expected active pfx")
	}

	if got := v.PfxDeactivatePeer(pfx, peerID); got != 1 {
		t.Fatalf("PfxDeactivatePeer: want 1, got %d", got)
	}

	if v.PfxCnt(Active) != 0 {
		t.Fatalf("expected 0 active pfx after withdrawal, got %d", v.PfxCnt(Active))
	}
	if v.PfxCnt(Inactive) != 1 {
		t.Fatalf("expected 1 inactive pfx after withdrawal, got %d", v.PfxCnt(Inactive))
	}
}

// S6: bringing a peer session down deactivates all of that peer's
// currently active prefixes, without touching other peers' entries for
// the same prefix.
func TestScenarioPeerDownClearsPrefixes(t *testing.T) {
	v := New[int](Config[int]{})
	pfxA := mustPrefix(t, "203.0.113.0/24")
	pfxB := mustPrefix(t, "203.0.113.128/25")

	p1 := v.AddPeer("rrc00", netip.MustParseAddr("203.0.113.1"), 65001)
	p2 := v.AddPeer("rrc00", netip.MustParseAddr("203.0.113.2"), 65002)
	v.ActivatePeer(p1)
	v.ActivatePeer(p2)

	v.AddPfxPeer(pfxA, p1, samplePath(65001))
	v.PfxActivatePeer(pfxA, p1)
	v.AddPfxPeer(pfxB, p1, samplePath(65001))
	v.PfxActivatePeer(pfxB, p1)
	v.AddPfxPeer(pfxA, p2, samplePath(65002))
	v.PfxActivatePeer(pfxA, p2)

	if got := v.DeactivatePeer(p1); got != 1 {
		t.Fatalf("DeactivatePeer: want 1, got %d", got)
	}

	if v.PeerCnt(Active) != 1 {
		t.Fatalf("expected p2 still active, got PeerCnt(Active)=%d", v.PeerCnt(Active))
	}
	piA := v.v4[pfxA]
	if piA.peerState(p1) != Inactive {
		t.Fatalf("pfxA/p1 should be Inactive after peer down")
	}
	if piA.peerState(p2) != Active {
		t.Fatalf("pfxA/p2 should remain Active; peer-down must not affect other peers")
	}
	if v.PfxCnt(Active) != 1 {
		t.Fatalf("expected pfxA to remain Active (p2 still up), pfxB to go Inactive; got %d active", v.PfxCnt(Active))
	}
}

// S7: after Clear, the view can be fully repopulated with the same shape
// it had before, with counters starting clean.
func TestScenarioClearAndReuse(t *testing.T) {
	v := New[int](Config[int]{})
	pfx := mustPrefix(t, "192.0.2.0/24")
	peerID := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	v.ActivatePeer(peerID)
	v.AddPfxPeer(pfx, peerID, samplePath(65001))
	v.PfxActivatePeer(pfx, peerID)

	v.Clear()

	if v.PfxCnt(AllValid) != 0 || v.PeerCnt(AllValid) != 0 {
		t.Fatalf("Clear must zero all counters")
	}
	if v.GetTime() != 0 {
		t.Fatalf("Clear must reset time")
	}

	peerID2 := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	if peerID2 != peerID {
		t.Fatalf("re-adding the same peer signature after Clear should reuse its id (sigmap persists): got %d want %d", peerID2, peerID)
	}
	v.ActivatePeer(peerID2)
	v.AddPfxPeer(pfx, peerID2, samplePath(65001))
	if got := v.PfxActivatePeer(pfx, peerID2); got != 1 {
		t.Fatalf("PfxActivatePeer after reuse: want 1, got %d", got)
	}
	if v.PfxCnt(Active) != 1 {
		t.Fatalf("expected 1 active pfx after reuse, got %d", v.PfxCnt(Active))
	}
}

func TestDetachCallbackFiresOnPfxRemovePeer(t *testing.T) {
	var detached []int
	v := New[int](Config[int]{OnDetach: func(a int) { detached = append(detached, a) }})
	pfx := mustPrefix(t, "192.0.2.0/24")
	peerID := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	v.AddPfxPeerByID(pfx, peerID, v.PathStore().Intern(samplePath(65001), 65001))

	attachment := v.v4[pfx].entry(peerID)
	attachment.attachment = 42

	v.PfxRemovePeer(pfx, peerID)

	if len(detached) != 1 || detached[0] != 42 {
		t.Fatalf("expected OnDetach(42) exactly once, got %v", detached)
	}
}

func TestCloneSharesInternsWhenRequested(t *testing.T) {
	v := New[int](Config[int]{})
	peerID := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)

	clone := v.Clone(true)
	if clone.PeerSigMap() != v.PeerSigMap() {
		t.Fatalf("shared clone must reuse the same PeerSignatureMap")
	}
	if clone.PathStore() != v.PathStore() {
		t.Fatalf("shared clone must reuse the same AsPathStore")
	}

	independent := v.Clone(false)
	if independent.PeerSigMap() == v.PeerSigMap() {
		t.Fatalf("non-shared clone must allocate its own PeerSignatureMap")
	}

	// mutating the clone's peer table must not affect the original.
	clone.RemovePeer(peerID)
	if v.PeerInfo(peerID).state == Invalid {
		t.Fatalf("mutating a clone must not affect the source view")
	}
}

func TestGCCompactsInvalidPrefixes(t *testing.T) {
	v := New[int](Config[int]{})
	pfx := mustPrefix(t, "192.0.2.0/24")
	peerID := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	v.AddPfxPeer(pfx, peerID, samplePath(65001))
	v.RemovePfx(pfx)

	genBefore := v.Generation()
	v.GC()
	if v.Generation() == genBefore {
		t.Fatalf("GC must bump generation")
	}
	if _, ok := v.v4[pfx]; ok {
		t.Fatalf("GC must delete Invalid prefixes from the table")
	}
	if len(v.v4Order) != 0 {
		t.Fatalf("GC must compact the order slice, got %v", v.v4Order)
	}
}
