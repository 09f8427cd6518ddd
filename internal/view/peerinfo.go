package view

// PeerInfo is the per-view, per-peer record: lifecycle state, counters of
// v4/v6 active/inactive prefixes, and a generic attachment slot that a
// RIBEngine (or any other owner) uses to stash its own per-peer state —
// the Go-idiomatic stand-in for the original "user pointer with
// destructor" pattern (§9 design note).
type PeerInfo[P any] struct {
	state      FieldState
	v4PfxCnt   [3]int // indexed by FieldState Active(1)/Inactive(2)
	v6PfxCnt   [3]int
	Attachment P
}

func newPeerInfo[P any]() *PeerInfo[P] {
	return &PeerInfo[P]{state: Inactive}
}

// State returns the peer's current lifecycle state.
func (pe *PeerInfo[P]) State() FieldState { return pe.state }

// V4PfxCnt returns this peer's IPv4 prefix count matching mask, for
// metrics sinks that report per-peer breakdowns (§6.4).
func (pe *PeerInfo[P]) V4PfxCnt(mask FieldState) int { return countByMask(pe.v4PfxCnt, mask) }

// V6PfxCnt is the IPv6 twin of V4PfxCnt.
func (pe *PeerInfo[P]) V6PfxCnt(mask FieldState) int { return countByMask(pe.v6PfxCnt, mask) }
