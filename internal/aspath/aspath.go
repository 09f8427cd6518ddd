// Package aspath interns AS paths into compact PathId handles, deduplicating
// the "core" suffix shared by every peer that directly exports an ASN and
// separating it from the peer's own leading AS number when one is present.
package aspath

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SegmentType distinguishes the four AS_PATH segment kinds.
type SegmentType uint8

const (
	SegmentSet SegmentType = iota + 1
	SegmentSequence
	SegmentConfedSequence
	SegmentConfedSet
)

func (t SegmentType) String() string {
	switch t {
	case SegmentSet:
		return "SET"
	case SegmentSequence:
		return "SEQUENCE"
	case SegmentConfedSequence:
		return "CONFED_SEQUENCE"
	case SegmentConfedSet:
		return "CONFED_SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Segment is one element of an AS path: a single ASN, a SET, a
// CONFED_SEQUENCE, or a CONFED_SET.
type Segment struct {
	Type SegmentType
	ASNs []uint32
}

// Path is an ordered sequence of AS path segments.
type Path []Segment

// encode produces a deterministic byte encoding used both as the xxhash
// input and, on an exact-match bucket hit, as the tie-breaking comparison.
func encode(p Path) []byte {
	buf := make([]byte, 0, len(p)*6)
	for _, seg := range p {
		buf = append(buf, byte(seg.Type), byte(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			buf = append(buf, byte(asn>>24), byte(asn>>16), byte(asn>>8), byte(asn))
		}
	}
	return buf
}

// PathId is an opaque intern handle: CoreID identifies the deduplicated
// core suffix (0 is reserved/invalid), PeerPrefixed records whether the
// interned path had peer_asn stripped off its head.
type PathId struct {
	CoreID       uint32
	PeerPrefixed bool
}

// Valid reports whether the id names an interned path.
func (id PathId) Valid() bool { return id.CoreID != 0 }

type coreEntry struct {
	segments Path
	encoded  []byte
}

// Store interns AS paths to compact PathId values. It never frees entries;
// the store has no garbage-collection pass.
type Store struct {
	mu      sync.RWMutex
	cores   []coreEntry      // index i holds coreID i+1
	buckets map[uint64][]uint32
}

// New creates an empty AsPathStore.
func New() *Store {
	return &Store{
		cores:   make([]coreEntry, 0, 1024),
		buckets: make(map[uint64][]uint32, 1024),
	}
}

// Intern stores path, separating a leading single-ASN SEQUENCE segment
// equal to peerASN (the peer's own prepend) from the core suffix. Identical
// core suffixes share storage across peers. Interning is injective on
// byte-equal (core, peerPrefixed) pairs.
func (s *Store) Intern(path Path, peerASN uint32) PathId {
	core, hasPeerPrefix := splitPeerPrefix(path, peerASN)
	return PathId{CoreID: s.internCore(core), PeerPrefixed: hasPeerPrefix}
}

func splitPeerPrefix(path Path, peerASN uint32) (Path, bool) {
	if len(path) == 0 {
		return path, false
	}
	first := path[0]
	if first.Type == SegmentSequence && len(first.ASNs) == 1 && first.ASNs[0] == peerASN {
		return path[1:], true
	}
	return path, false
}

func (s *Store) internCore(core Path) uint32 {
	enc := encode(core)
	h := xxhash.Sum64(enc)

	s.mu.RLock()
	if id := s.findInBucket(h, enc); id != 0 {
		s.mu.RUnlock()
		return id
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.findInBucket(h, enc); id != 0 {
		return id
	}

	s.cores = append(s.cores, coreEntry{segments: append(Path(nil), core...), encoded: enc})
	id := uint32(len(s.cores))
	s.buckets[h] = append(s.buckets[h], id)
	return id
}

// findInBucket must be called with mu held (read or write).
func (s *Store) findInBucket(h uint64, enc []byte) uint32 {
	for _, id := range s.buckets[h] {
		if string(s.cores[id-1].encoded) == string(enc) {
			return id
		}
	}
	return 0
}

// StorePath is the resolved view of an interned path.
type StorePath struct {
	core         Path
	peerPrefixed bool
}

// SegmentsFor reconstructs the full path as originally interned, given the
// peer_asn that was supplied at intern time.
func (p StorePath) SegmentsFor(peerASN uint32) Path {
	if !p.peerPrefixed {
		return p.core
	}
	full := make(Path, 0, len(p.core)+1)
	full = append(full, Segment{Type: SegmentSequence, ASNs: []uint32{peerASN}})
	full = append(full, p.core...)
	return full
}

// OriginSegment returns the last segment of the core path — the AS that
// originated the prefix. A peer_asn prepend is never the origin.
func (p StorePath) OriginSegment() (Segment, bool) {
	if len(p.core) == 0 {
		return Segment{}, false
	}
	return p.core[len(p.core)-1], true
}

// IsCore reports whether the interned path had no peer_asn prefix split
// off — i.e. the stored core IS the path as originally interned.
func (p StorePath) IsCore() bool { return !p.peerPrefixed }

// Lookup resolves a PathId back to its stored representation.
func (s *Store) Lookup(id PathId) (StorePath, bool) {
	if !id.Valid() {
		return StorePath{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := int(id.CoreID) - 1
	if idx < 0 || idx >= len(s.cores) {
		return StorePath{}, false
	}
	return StorePath{core: s.cores[idx].segments, peerPrefixed: id.PeerPrefixed}, true
}

// IterPaths enumerates all interned core paths, used by transport encoders
// that need to emit the path table once per View (§6.2).
func (s *Store) IterPaths(fn func(coreID uint32, segments Path) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, c := range s.cores {
		if !fn(uint32(i+1), c.segments) {
			return
		}
	}
}

// Len returns the number of distinct interned core paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cores)
}
