package aspath

import "testing"

func seq(asns ...uint32) Segment {
	return Segment{Type: SegmentSequence, ASNs: asns}
}

func TestInternSplitsPeerPrefix(t *testing.T) {
	s := New()
	path := Path{seq(65001), seq(65002, 65003)}

	id := s.Intern(path, 65001)
	if !id.PeerPrefixed {
		t.Fatalf("expected peer prefix to be detected and split off")
	}

	sp, ok := s.Lookup(id)
	if !ok {
		t.Fatalf("expected lookup to succeed")
	}
	origin, ok := sp.OriginSegment()
	if !ok || origin.ASNs[len(origin.ASNs)-1] != 65003 {
		t.Fatalf("expected origin ASN 65003, got %+v", origin)
	}

	full := sp.SegmentsFor(65001)
	if len(full) != 2 || full[0].ASNs[0] != 65001 {
		t.Fatalf("expected reconstructed path to restore the peer prefix: %+v", full)
	}
}

func TestInternWithoutPeerPrefix(t *testing.T) {
	s := New()
	path := Path{seq(65002, 65003)}

	id := s.Intern(path, 65001) // first segment isn't [65001], so no split
	if id.PeerPrefixed {
		t.Fatalf("expected no peer prefix detected")
	}
	sp, _ := s.Lookup(id)
	if !sp.IsCore() {
		t.Fatalf("expected IsCore() when nothing was split off")
	}
}

func TestInternDeduplicatesCoreAcrossPeers(t *testing.T) {
	s := New()
	core := Path{seq(65002, 65003)}

	idA := s.Intern(append(Path{seq(65001)}, core...), 65001)
	idB := s.Intern(append(Path{seq(65099)}, core...), 65099)

	if idA.CoreID != idB.CoreID {
		t.Fatalf("expected shared core storage across peers, got %d and %d", idA.CoreID, idB.CoreID)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one interned core path, got %d", s.Len())
	}
}

func TestInternInjectiveOnByteEqualPaths(t *testing.T) {
	s := New()
	p1 := Path{seq(65002), {Type: SegmentSet, ASNs: []uint32{65003, 65004}}}
	p2 := Path{seq(65002), {Type: SegmentSet, ASNs: []uint32{65003, 65004}}}

	id1 := s.Intern(p1, 0)
	id2 := s.Intern(p2, 0)
	if id1 != id2 {
		t.Fatalf("expected byte-equal paths to intern to the same id")
	}
}

func TestLookupUnknownID(t *testing.T) {
	s := New()
	if _, ok := s.Lookup(PathId{}); ok {
		t.Fatalf("expected zero-value PathId to be invalid")
	}
}

func TestIterPaths(t *testing.T) {
	s := New()
	s.Intern(Path{seq(1)}, 0)
	s.Intern(Path{seq(2)}, 0)

	seen := 0
	s.IterPaths(func(coreID uint32, segments Path) bool {
		seen++
		return true
	})
	if seen != 2 {
		t.Fatalf("expected to iterate 2 paths, got %d", seen)
	}
}
