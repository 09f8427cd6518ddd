package view

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// Activation rules (§4.3.2) are the sole bridge between per-entry state and
// per-entity counters; every counter mutation in this package goes through
// one of the functions below.

// AddPeer interns (collector, ip, asn) and ensures a per-view PeerInfo
// exists for the resulting id, creating it Inactive if new. Idempotent:
// returns the id in any case.
func (v *View[P]) AddPeer(collector string, ip netip.Addr, asn uint32) peersig.PeerId {
	id := v.peerSig.GetOrCreate(collector, ip, asn)
	if id == 0 {
		return 0
	}
	v.ensurePeerInfo(id)
	return id
}

func (v *View[P]) ensurePeerInfo(id peersig.PeerId) *PeerInfo[P] {
	for peersig.PeerId(len(v.peers)) < id {
		v.peers = append(v.peers, nil)
	}
	idx := int(id) - 1
	if v.peers[idx] == nil {
		v.peers[idx] = newPeerInfo[P]()
		v.peerCnt[Inactive]++
	} else if v.peers[idx].state == Invalid {
		v.peers[idx].state = Inactive
		v.peerCnt[Inactive]++
	}
	return v.peers[idx]
}

// PeerInfo returns the per-view record for id, or nil if this view has
// never observed it.
func (v *View[P]) PeerInfo(id peersig.PeerId) *PeerInfo[P] {
	idx := int(id) - 1
	if idx < 0 || idx >= len(v.peers) {
		return nil
	}
	return v.peers[idx]
}

// RemovePeer deactivates the peer (cascading to its pfx-peers), then marks
// it Invalid.
func (v *View[P]) RemovePeer(id peersig.PeerId) {
	pe := v.PeerInfo(id)
	if pe == nil || pe.state == Invalid {
		return
	}
	v.DeactivatePeer(id)
	v.peerCnt[pe.state]--
	pe.state = Invalid
}

// ActivatePeer is valid only from Inactive; it does not itself activate
// any pfx-peers. Returns 0 if already Active, 1 on transition.
func (v *View[P]) ActivatePeer(id peersig.PeerId) int {
	pe := v.PeerInfo(id)
	if pe == nil || pe.state != Inactive {
		return 0
	}
	v.peerCnt[Inactive]--
	pe.state = Active
	v.peerCnt[Active]++
	return 1
}

// DeactivatePeer walks all Active pfx-peers of this peer and deactivates
// them (with the recursive effect on prefixes that implies), then sets the
// peer Inactive. Returns 0 if already Inactive, 1 on transition.
func (v *View[P]) DeactivatePeer(id peersig.PeerId) int {
	pe := v.PeerInfo(id)
	if pe == nil || pe.state != Active {
		return 0
	}

	for pfx, pi := range v.v4 {
		v.deactivateIfPeerActive(pfx, pi, id)
	}
	for pfx, pi := range v.v6 {
		v.deactivateIfPeerActive(pfx, pi, id)
	}

	v.peerCnt[Active]--
	pe.state = Inactive
	v.peerCnt[Inactive]++
	return 1
}

func (v *View[P]) deactivateIfPeerActive(pfx netip.Prefix, pi *PfxInfo[P], id peersig.PeerId) {
	if pi.peerState(id) == Active {
		v.pfxDeactivatePeer(pfx, pi, id)
	}
}

// AddPfxPeer ensures pfx and the (pfx, peerID) entry exist (creating the
// prefix if needed), interning path against the peer's ASN, and leaves the
// pfx-peer Inactive. The peer must already exist in this view (callers
// ensure that with AddPeer first, matching §4.4.3 step 3).
func (v *View[P]) AddPfxPeer(pfx netip.Prefix, peerID peersig.PeerId, path aspath.Path) {
	sig, ok := v.peerSig.LookupSig(peerID)
	asn := uint32(0)
	if ok {
		asn = sig.PeerASN
	}
	pathID := v.pathStore.Intern(path, asn)
	v.AddPfxPeerByID(pfx, peerID, pathID)
}

// AddPfxPeerByID is the PathId-accepting twin of AddPfxPeer.
func (v *View[P]) AddPfxPeerByID(pfx netip.Prefix, peerID peersig.PeerId, pathID aspath.PathId) {
	pi := v.getOrCreatePfxInfo(pfx)
	pi.ensurePeerSlot(peerID)
	if pi.peerState(peerID) == Invalid {
		pi.setPeerState(peerID, Inactive)
		pi.peersCnt[Inactive]++
	}
	e := pi.entry(peerID)
	e.pathID = pathID
}

func (v *View[P]) getOrCreatePfxInfo(pfx netip.Prefix) *PfxInfo[P] {
	table, order := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if ok {
		if pi.state == Invalid {
			pi.state = Inactive
			v.bumpPfxCnt(pfx, Inactive, 1)
		}
		return pi
	}
	pi = newPfxInfo[P]()
	v.extendedLocked = true
	table[pfx] = pi
	*order = append(*order, pfx)
	v.bumpPfxCnt(pfx, Inactive, 1)
	return pi
}

func (v *View[P]) bumpPfxCnt(pfx netip.Prefix, st FieldState, delta int) {
	if familyOf(pfx) == FamilyV6 {
		v.v6PfxCnt[st] += delta
	} else {
		v.v4PfxCnt[st] += delta
	}
}

// RemovePfx deactivates pfx and all its pfx-peers, decrements counters,
// and marks it Invalid.
func (v *View[P]) RemovePfx(pfx netip.Prefix) {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok || pi.state == Invalid {
		return
	}
	v.DeactivatePfx(pfx)
	v.bumpPfxCnt(pfx, pi.state, -1)
	if v.onDetach != nil {
		for i := range pi.peers {
			if pi.peerStates.get(peersig.PeerId(i+1)) != Invalid {
				v.onDetach(pi.peers[i].attachment)
			}
		}
	}
	pi.state = Invalid
	pi.peersCnt = [3]int{}
	for i := range pi.peerStates {
		pi.peerStates[i] = 0
	}
}

// DeactivatePfx deactivates the prefix, which recursively deactivates all
// its still-Active pfx-peers. Returns 0 if already Inactive, 1 on
// transition.
func (v *View[P]) DeactivatePfx(pfx netip.Prefix) int {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok || pi.state != Active {
		return 0
	}

	for i := 1; i <= int(pi.maxPeerID()); i++ {
		peerID := peersig.PeerId(i)
		if pi.peerState(peerID) == Active {
			v.pfxDeactivatePeer(pfx, pi, peerID)
		}
	}

	v.bumpPfxCnt(pfx, Active, -1)
	pi.state = Inactive
	v.bumpPfxCnt(pfx, Inactive, 1)
	return 1
}

// PfxAddPeer is the "current prefix already positioned" form of AddPfxPeer.
func (v *View[P]) PfxAddPeer(pfx netip.Prefix, peerID peersig.PeerId, path aspath.Path) {
	v.AddPfxPeer(pfx, peerID, path)
}

// PfxAddPeerByID is the "current prefix already positioned" form of
// AddPfxPeerByID.
func (v *View[P]) PfxAddPeerByID(pfx netip.Prefix, peerID peersig.PeerId, pathID aspath.PathId) {
	v.AddPfxPeerByID(pfx, peerID, pathID)
}

// PfxRemovePeer deactivates then marks Invalid the (pfx, peerID) entry; if
// the pfx has zero peers left, removes the pfx. Precondition (enforced by
// assertion, not by silently under-counting, per §9): the owning peer must
// be Active at call time whenever the pfx-peer being removed is Active.
func (v *View[P]) PfxRemovePeer(pfx netip.Prefix, peerID peersig.PeerId) {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok {
		return
	}
	st := pi.peerState(peerID)
	if st == Invalid {
		return
	}

	if st == Active {
		pe := v.PeerInfo(peerID)
		debugAssert(pe != nil && pe.state == Active, "PfxRemovePeer: owning peer must be Active when its pfx-peer is Active")
		v.pfxDeactivatePeer(pfx, pi, peerID)
	}

	pi.peersCnt[Inactive]--
	pi.setPeerState(peerID, Invalid)
	if v.onDetach != nil {
		v.onDetach(pi.entry(peerID).attachment)
	}
	*pi.entry(peerID) = pfxPeerEntry[P]{}

	if pi.peersCnt[Active]+pi.peersCnt[Inactive] == 0 {
		v.RemovePfx(pfx)
	}
}

// PfxActivatePeer: precondition pfx-peer is Inactive and the owning peer is
// Active. Returns 0 if the precondition fails or the pfx-peer is already
// Active, 1 on transition.
func (v *View[P]) PfxActivatePeer(pfx netip.Prefix, peerID peersig.PeerId) int {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok || pi.peerState(peerID) != Inactive {
		return 0
	}
	pe := v.PeerInfo(peerID)
	if pe == nil || pe.state != Active {
		return 0
	}
	return boolToInt(v.activatePfxPeer(pfx, pi, peerID, pe))
}

func (v *View[P]) activatePfxPeer(pfx netip.Prefix, pi *PfxInfo[P], peerID peersig.PeerId, pe *PeerInfo[P]) bool {
	pi.peersCnt[Inactive]--
	pi.setPeerState(peerID, Active)
	pi.peersCnt[Active]++

	if pi.peersCnt[Active] == 1 {
		v.bumpPfxCnt(pfx, Inactive, -1)
		pi.state = Active
		v.bumpPfxCnt(pfx, Active, 1)
	}

	famCnt := &pe.v4PfxCnt
	if familyOf(pfx) == FamilyV6 {
		famCnt = &pe.v6PfxCnt
	}
	famCnt[Inactive]--
	famCnt[Active]++

	return true
}

// PfxDeactivatePeer is the symmetric counterpart of PfxActivatePeer.
// Returns 0 if already Inactive, 1 on transition.
func (v *View[P]) PfxDeactivatePeer(pfx netip.Prefix, peerID peersig.PeerId) int {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok || pi.peerState(peerID) != Active {
		return 0
	}
	return boolToInt(v.pfxDeactivatePeer(pfx, pi, peerID))
}

func (v *View[P]) pfxDeactivatePeer(pfx netip.Prefix, pi *PfxInfo[P], peerID peersig.PeerId) bool {
	if pi.peerState(peerID) != Active {
		return false
	}

	pi.peersCnt[Active]--
	pi.setPeerState(peerID, Inactive)
	pi.peersCnt[Inactive]++

	pe := v.PeerInfo(peerID)
	famCnt := &pe.v4PfxCnt
	if familyOf(pfx) == FamilyV6 {
		famCnt = &pe.v6PfxCnt
	}
	famCnt[Active]--
	famCnt[Inactive]++

	if pi.peersCnt[Active] == 0 {
		v.bumpPfxCnt(pfx, Active, -1)
		pi.state = Inactive
		v.bumpPfxCnt(pfx, Inactive, 1)
	}

	return true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
