// Package peersig interns (collector, peer_ip, peer_asn) tuples to compact
// 16-bit peer ids. Ids are stable and monotonically assigned for the life of
// the map; id 0 is reserved for "none".
package peersig

import (
	"fmt"
	"net/netip"
	"sync"
)

// PeerId identifies a BGP neighbor session at a collector. Zero means "none".
type PeerId uint16

// maxPeerId bounds the id space; get_or_create returns 0 (resource
// exhaustion) once it would be exceeded. 0xFFFF is never assigned: the
// viewio/bus encoding uses it as its end-of-peers sentinel.
const maxPeerId = ^PeerId(0) - 1

// Sig uniquely identifies a BGP neighbor session at a collector.
type Sig struct {
	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32
}

// Equal compares all three fields.
func (s Sig) Equal(o Sig) bool {
	return s.Collector == o.Collector && s.PeerIP == o.PeerIP && s.PeerASN == o.PeerASN
}

func (s Sig) String() string {
	return fmt.Sprintf("%s/%s/AS%d", s.Collector, s.PeerIP, s.PeerASN)
}

// Map is a bidirectional intern table. Safe for concurrent use; the View and
// RIBEngine that reference it otherwise run single-threaded, but a map is
// frequently shared between sibling views (§4.5) maintained by different
// goroutines during a handoff.
type Map struct {
	mu      sync.RWMutex
	byPeer  []Sig // index i holds the sig for PeerId(i+1)
	bySig   map[Sig]PeerId
}

// New creates an empty PeerSignatureMap.
func New() *Map {
	return &Map{
		byPeer: make([]Sig, 0, 64),
		bySig:  make(map[Sig]PeerId, 64),
	}
}

// GetOrCreate is idempotent: it allocates a fresh id only for a tuple never
// seen before and returns 0 if the id space is exhausted.
func (m *Map) GetOrCreate(collector string, peerIP netip.Addr, peerASN uint32) PeerId {
	sig := Sig{Collector: collector, PeerIP: peerIP, PeerASN: peerASN}

	m.mu.RLock()
	if id, ok := m.bySig[sig]; ok {
		m.mu.RUnlock()
		return id
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another goroutine may have interned it while we waited.
	if id, ok := m.bySig[sig]; ok {
		return id
	}

	if PeerId(len(m.byPeer)) >= maxPeerId {
		return 0
	}

	m.byPeer = append(m.byPeer, sig)
	id := PeerId(len(m.byPeer))
	m.bySig[sig] = id
	return id
}

// LookupSig reverse-looks-up a peer id. It must succeed for any id
// previously returned by GetOrCreate.
func (m *Map) LookupSig(id PeerId) (Sig, bool) {
	if id == 0 {
		return Sig{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(m.byPeer) {
		return Sig{}, false
	}
	return m.byPeer[idx], true
}

// Len returns the number of interned peer signatures.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPeer)
}
