package view

import (
	"net/netip"
	"testing"
)

func buildFixtureView(t *testing.T) (*View[int], netip.Prefix, netip.Prefix, netip.Prefix) {
	t.Helper()
	v := New[int](Config[int]{})
	pfxA := mustPrefix(t, "192.0.2.0/24")
	pfxB := mustPrefix(t, "198.51.100.0/24")
	pfxC := mustPrefix(t, "2001:db8::/32")

	p1 := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	p2 := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.2"), 65002)
	v.ActivatePeer(p1)
	v.ActivatePeer(p2)

	v.AddPfxPeer(pfxA, p1, samplePath(65001))
	v.PfxActivatePeer(pfxA, p1)
	v.AddPfxPeer(pfxA, p2, samplePath(65002))
	v.PfxActivatePeer(pfxA, p2)

	v.AddPfxPeer(pfxB, p1, samplePath(65001))
	v.PfxActivatePeer(pfxB, p1)

	v.AddPfxPeer(pfxC, p2, samplePath(65002))
	v.PfxActivatePeer(pfxC, p2)

	return v, pfxA, pfxB, pfxC
}

func TestIteratorPeerDimension(t *testing.T) {
	v, _, _, _ := buildFixtureView(t)
	it := NewIterator(v)

	count := 0
	for ok := it.FirstPeer(AllValid); ok; ok = it.NextPeer() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 peers, visited %d", count)
	}
}

func TestIteratorPfxDimensionBothFamiliesOrdersV4BeforeV6(t *testing.T) {
	v, pfxA, pfxB, pfxC := buildFixtureView(t)
	it := NewIterator(v)

	var seen []netip.Prefix
	for ok := it.FirstPfx(FamilyBoth, AllValid); ok; ok = it.NextPfx() {
		seen = append(seen, it.CurPfx())
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 prefixes, got %d: %v", len(seen), seen)
	}
	// v4 prefixes (pfxA, pfxB) must both precede the v6 prefix (pfxC).
	v6Seen := false
	for _, p := range seen {
		if p == pfxC {
			v6Seen = true
			continue
		}
		if v6Seen {
			t.Fatalf("v4 prefix %v observed after v6 prefix %v", p, pfxC)
		}
		if p != pfxA && p != pfxB {
			t.Fatalf("unexpected prefix in traversal: %v", p)
		}
	}
}

func TestIteratorSeekPfx(t *testing.T) {
	v, pfxA, _, _ := buildFixtureView(t)
	it := NewIterator(v)

	if !it.SeekPfx(pfxA, AllValid) {
		t.Fatalf("SeekPfx(pfxA) should succeed")
	}
	if it.CurPfx() != pfxA {
		t.Fatalf("SeekPfx positioned at wrong prefix: %v", it.CurPfx())
	}

	unknown := mustPrefix(t, "203.0.113.0/24")
	if it.SeekPfx(unknown, AllValid) {
		t.Fatalf("SeekPfx on an absent prefix must fail")
	}
}

func TestIteratorPfxPeerDimension(t *testing.T) {
	v, pfxA, _, _ := buildFixtureView(t)
	it := NewIterator(v)

	if !it.SeekPfx(pfxA, AllValid) {
		t.Fatalf("SeekPfx(pfxA) should succeed")
	}
	count := 0
	for ok := it.PfxFirstPeer(AllValid); ok; ok = it.PfxNextPeer() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 pfx-peers on pfxA, got %d", count)
	}
}

func TestIteratorCompositeFirstNextPfxPeer(t *testing.T) {
	v, _, _, _ := buildFixtureView(t)
	it := NewIterator(v)

	total := 0
	for ok := it.FirstPfxPeer(v.Generation(), FamilyBoth, AllValid, AllValid); ok; ok = it.NextPfxPeer() {
		total++
	}
	// pfxA has 2 pfx-peers, pfxB has 1, pfxC has 1: 4 total.
	if total != 4 {
		t.Fatalf("expected 4 (pfx,peer) pairs across the view, got %d", total)
	}
}

func TestIteratorFirstPfxPeerRejectsStaleGeneration(t *testing.T) {
	v, _, _, _ := buildFixtureView(t)
	it := NewIterator(v)
	staleGen := v.Generation()
	v.Clear()

	if it.FirstPfxPeer(staleGen, FamilyBoth, AllValid, AllValid) {
		t.Fatalf("FirstPfxPeer must refuse a stale generation token")
	}
	if it.FirstPfxPeer(v.Generation(), FamilyBoth, AllValid, AllValid) {
		t.Fatalf("expected no matches on an empty, just-cleared view")
	}
}

func TestIteratorMutatingAddAndRemovePfxPeer(t *testing.T) {
	v := New[int](Config[int]{})
	pfx := mustPrefix(t, "192.0.2.0/24")
	it := NewIterator(v)

	peerA := it.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 65001)
	it.ActivatePeer()
	peerB := it.AddPeer("rrc00", netip.MustParseAddr("192.0.2.2"), 65002)
	it.ActivatePeer()

	it.AddPfxPeer(pfx, peerA, samplePath(65001))
	if it.CurPfx() != pfx {
		t.Fatalf("AddPfxPeer must position the pfx cursor at pfx")
	}
	it.PfxAddPeer(peerB, samplePath(65002))

	if !it.PfxSeekPeer(peerA, AllValid) {
		t.Fatalf("expected pfx-peer entry for peerA to exist")
	}
	if got := it.PfxActivatePeer(); got != 1 {
		t.Fatalf("PfxActivatePeer: want 1, got %d", got)
	}
	if !it.PfxSeekPeer(peerB, AllValid) {
		t.Fatalf("expected pfx-peer entry for peerB to exist")
	}
	if got := it.PfxActivatePeer(); got != 1 {
		t.Fatalf("PfxActivatePeer: want 1, got %d", got)
	}
	if v.PfxCnt(Active) != 1 {
		t.Fatalf("expected pfx active after activating both peers")
	}

	if !it.PfxSeekPeer(peerA, AllValid) {
		t.Fatalf("expected pfx-peer entry for peerA to exist before removal")
	}
	it.PfxRemovePeer()
	if v.PfxCnt(AllValid) != 1 {
		t.Fatalf("removing one of two pfx-peers must not remove the prefix")
	}
	if got := it.PfxPeerID(); got != peerA {
		t.Fatalf("PfxRemovePeer must not advance the cursor: want %d, got %d", peerA, got)
	}

	if !it.PfxNextPeer() {
		t.Fatalf("expected an explicit PfxNextPeer to find the surviving peerB entry")
	}
	if got := it.PfxPeerID(); got != peerB {
		t.Fatalf("expected cursor on peerB after explicit PfxNextPeer, got %d", got)
	}
}
