package view

import (
	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// pfxPeerEntry is the dense, packed record for one (prefix, peer) pair.
// Its live lifecycle state is NOT stored here — it lives in the owning
// PfxInfo's peerStates bitset (§3.3) — so the base variant really is
// exactly a PathId, and the extended variant adds only the attachment.
type pfxPeerEntry[P any] struct {
	pathID     aspath.PathId
	attachment P
}

// PfxInfo is the per-view, per-prefix record: overall lifecycle state, a
// packed peer-state bit array, a dense array of pfx-peer entries indexed
// by PeerId-1, and per-state peer counts.
type PfxInfo[P any] struct {
	state      FieldState
	peerStates peerStateBits
	peers      []pfxPeerEntry[P]
	peersCnt   [3]int // indexed by FieldState Active(1)/Inactive(2); [0] unused
}

func newPfxInfo[P any]() *PfxInfo[P] {
	return &PfxInfo[P]{state: Inactive}
}

// ensurePeerSlot grows the peers array and the peer-state bitset
// monotonically so that peer id p has a slot, per §3.2: "The array is
// grown monotonically: if a new peer id N is observed, the array grows to
// length N; slots for unseen ids are zeroed with state Invalid."
func (pi *PfxInfo[P]) ensurePeerSlot(p peersig.PeerId) {
	pi.peerStates.grow(p)
	for peersig.PeerId(len(pi.peers)) < p {
		var zero pfxPeerEntry[P]
		pi.peers = append(pi.peers, zero)
	}
}

func (pi *PfxInfo[P]) peerState(p peersig.PeerId) FieldState {
	return pi.peerStates.get(p)
}

func (pi *PfxInfo[P]) setPeerState(p peersig.PeerId, st FieldState) {
	pi.peerStates.set(p, st)
}

func (pi *PfxInfo[P]) entry(p peersig.PeerId) *pfxPeerEntry[P] {
	idx := int(p) - 1
	if idx < 0 || idx >= len(pi.peers) {
		return nil
	}
	return &pi.peers[idx]
}

// maxPeerID returns the highest peer id this PfxInfo has ever allocated a
// slot for (not necessarily currently valid).
func (pi *PfxInfo[P]) maxPeerID() peersig.PeerId {
	return peersig.PeerId(len(pi.peers))
}
