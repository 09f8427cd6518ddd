package view

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// Iterator walks a View along three independent dimensions — peer, pfx, and
// pfx-peer — plus a composite pfx-peer cursor that chains the latter two.
// None of the three dimensions are required to be positioned for the others
// to work; each keeps its own cursor state. An Iterator is not safe for
// concurrent use, nor for use across a Clear/GC generation change: callers
// that hold a cursor across a potential generation bump should re-validate
// with Generation().
type Iterator[P any] struct {
	v *View[P]

	peerMask FieldState
	peerPos  int // 0-based index into v.peers; id = peerPos+1
	peerOK   bool

	pfxFam Family
	pfxMask FieldState
	curFam  Family
	pfxPos  int // 0-based index into the current family's order slice
	pfxOK   bool

	ppMask FieldState
	ppPos  int // 0-based index into the current pfx's peers slice; id = ppPos+1
	ppOK   bool
}

// NewIterator returns an unpositioned Iterator over v.
func NewIterator[P any](v *View[P]) *Iterator[P] {
	return &Iterator[P]{v: v}
}

// --- peer dimension ---

// FirstPeer positions the cursor at the first peer (in ascending id order)
// whose state matches mask. Returns false if none match.
func (it *Iterator[P]) FirstPeer(mask FieldState) bool {
	it.peerMask = mask
	it.peerPos = -1
	it.peerOK = false
	return it.NextPeer()
}

// NextPeer advances the peer cursor to the next matching peer.
func (it *Iterator[P]) NextPeer() bool {
	for it.peerPos+1 < len(it.v.peers) {
		it.peerPos++
		pe := it.v.peers[it.peerPos]
		if pe != nil && pe.state.Matches(it.peerMask) {
			it.peerOK = true
			return true
		}
	}
	it.peerOK = false
	return false
}

// SeekPeer positions the cursor directly at id if it matches mask.
func (it *Iterator[P]) SeekPeer(id peersig.PeerId, mask FieldState) bool {
	it.peerMask = mask
	pe := it.v.PeerInfo(id)
	if pe == nil || !pe.state.Matches(mask) {
		it.peerOK = false
		return false
	}
	it.peerPos = int(id) - 1
	it.peerOK = true
	return true
}

// PeerID returns the id the peer cursor is currently positioned at.
func (it *Iterator[P]) PeerID() peersig.PeerId {
	if !it.peerOK {
		return 0
	}
	return peersig.PeerId(it.peerPos + 1)
}

// CurPeerInfo returns the PeerInfo the peer cursor is currently positioned
// at, or nil if unpositioned.
func (it *Iterator[P]) CurPeerInfo() *PeerInfo[P] {
	if !it.peerOK {
		return nil
	}
	return it.v.peers[it.peerPos]
}

// --- pfx dimension ---

// FirstPfx positions the cursor at the first prefix of family fam (v4, v6,
// or both — v4 is always exhausted before v6) whose state matches mask.
func (it *Iterator[P]) FirstPfx(fam Family, mask FieldState) bool {
	it.pfxFam = fam
	it.pfxMask = mask
	if fam == FamilyV6 {
		it.curFam = FamilyV6
	} else {
		it.curFam = FamilyV4
	}
	it.pfxPos = -1
	it.pfxOK = false
	return it.NextPfx()
}

// NextPfx advances the pfx cursor to the next matching prefix, rolling from
// v4 into v6 when the requested family is Both.
func (it *Iterator[P]) NextPfx() bool {
	for {
		table, order := familyTables(it.v, it.curFam)
		for it.pfxPos+1 < len(*order) {
			it.pfxPos++
			pfx := (*order)[it.pfxPos]
			pi, ok := table[pfx]
			if ok && pi.state.Matches(it.pfxMask) {
				it.pfxOK = true
				return true
			}
		}
		if it.pfxFam == FamilyBoth && it.curFam == FamilyV4 {
			it.curFam = FamilyV6
			it.pfxPos = -1
			continue
		}
		it.pfxOK = false
		return false
	}
}

// SeekPfx positions the cursor directly at pfx if it exists and matches
// mask.
func (it *Iterator[P]) SeekPfx(pfx netip.Prefix, mask FieldState) bool {
	it.pfxMask = mask
	fam := familyOf(pfx)
	table, order := familyTables(it.v, fam)
	pi, ok := table[pfx]
	if !ok || !pi.state.Matches(mask) {
		it.pfxOK = false
		return false
	}
	pos := indexOfPfx(*order, pfx)
	if pos < 0 {
		it.pfxOK = false
		return false
	}
	it.curFam = fam
	it.pfxFam = fam
	it.pfxPos = pos
	it.pfxOK = true
	return true
}

func indexOfPfx(order []netip.Prefix, pfx netip.Prefix) int {
	for i, p := range order {
		if p == pfx {
			return i
		}
	}
	return -1
}

// CurPfx returns the prefix the pfx cursor is currently positioned at.
func (it *Iterator[P]) CurPfx() netip.Prefix {
	if !it.pfxOK {
		return netip.Prefix{}
	}
	_, order := familyTables(it.v, it.curFam)
	return (*order)[it.pfxPos]
}

// CurPfxInfo returns the PfxInfo the pfx cursor is currently positioned at.
func (it *Iterator[P]) CurPfxInfo() *PfxInfo[P] {
	if !it.pfxOK {
		return nil
	}
	table, _ := familyTables(it.v, it.curFam)
	return table[it.CurPfx()]
}

// --- pfx-peer dimension (scoped to whatever prefix the pfx cursor holds) ---

// PfxFirstPeer positions the pfx-peer cursor at the first peer entry (in
// ascending id order) of the current prefix whose state matches mask.
func (it *Iterator[P]) PfxFirstPeer(mask FieldState) bool {
	it.ppMask = mask
	it.ppPos = -1
	it.ppOK = false
	return it.PfxNextPeer()
}

// PfxNextPeer advances the pfx-peer cursor within the current prefix.
func (it *Iterator[P]) PfxNextPeer() bool {
	pi := it.CurPfxInfo()
	if pi == nil {
		it.ppOK = false
		return false
	}
	for it.ppPos+1 < len(pi.peers) {
		it.ppPos++
		id := peersig.PeerId(it.ppPos + 1)
		if pi.peerState(id).Matches(it.ppMask) {
			it.ppOK = true
			return true
		}
	}
	it.ppOK = false
	return false
}

// PfxSeekPeer positions the pfx-peer cursor directly at id within the
// current prefix if it matches mask.
func (it *Iterator[P]) PfxSeekPeer(id peersig.PeerId, mask FieldState) bool {
	it.ppMask = mask
	pi := it.CurPfxInfo()
	if pi == nil || !pi.peerState(id).Matches(mask) {
		it.ppOK = false
		return false
	}
	it.ppPos = int(id) - 1
	it.ppOK = true
	return true
}

// PfxPeerID returns the id the pfx-peer cursor is currently positioned at.
func (it *Iterator[P]) PfxPeerID() peersig.PeerId {
	if !it.ppOK {
		return 0
	}
	return peersig.PeerId(it.ppPos + 1)
}

// PfxPeerPathID returns the interned AS-path id of the current pfx-peer
// entry.
func (it *Iterator[P]) PfxPeerPathID() aspath.PathId {
	pi := it.CurPfxInfo()
	if pi == nil || !it.ppOK {
		return aspath.PathId{}
	}
	return pi.peers[it.ppPos].pathID
}

// PfxPeerAttachment returns a pointer to the current pfx-peer entry's
// attachment slot, so callers can both read and mutate it in place.
func (it *Iterator[P]) PfxPeerAttachment() *P {
	pi := it.CurPfxInfo()
	if pi == nil || !it.ppOK {
		return nil
	}
	return &pi.peers[it.ppPos].attachment
}

// --- composite pfx-peer cursor (§4.3.1): chains the pfx and pfx-peer
// dimensions so callers don't hand-roll the nested loop ---

// FirstPfxPeer positions the composite cursor at the first (pfx, peer) pair
// across family fam where the prefix matches pfxMask and the peer entry
// matches peerMask. version must equal the view's current Generation(); a
// mismatch means the caller's prior cursor (if any) may reference since-
// reclaimed slots, and FirstPfxPeer refuses to start by returning false.
func (it *Iterator[P]) FirstPfxPeer(version uint64, fam Family, pfxMask, peerMask FieldState) bool {
	if version != it.v.Generation() {
		return false
	}
	if !it.FirstPfx(fam, pfxMask) {
		return false
	}
	if it.PfxFirstPeer(peerMask) {
		return true
	}
	return it.advancePfxPeer(peerMask)
}

// NextPfxPeer advances the composite cursor, rolling into the next
// matching prefix's peers when the current prefix is exhausted.
func (it *Iterator[P]) NextPfxPeer() bool {
	if it.PfxNextPeer() {
		return true
	}
	return it.advancePfxPeer(it.ppMask)
}

func (it *Iterator[P]) advancePfxPeer(peerMask FieldState) bool {
	for it.NextPfx() {
		if it.PfxFirstPeer(peerMask) {
			return true
		}
	}
	return false
}

// SeekPfxPeer positions the composite cursor directly at (pfx, peerID).
func (it *Iterator[P]) SeekPfxPeer(pfx netip.Prefix, peerID peersig.PeerId, pfxMask, peerMask FieldState) bool {
	if !it.SeekPfx(pfx, pfxMask) {
		return false
	}
	return it.PfxSeekPeer(peerID, peerMask)
}

// --- mutating operations: positioned, thin wrappers over View's explicit-
// key methods, matching the shape of the original API where the cursor
// implicitly names the entity being mutated ---

// AddPeer interns (collector, ip, asn) and positions the peer cursor at the
// result.
func (it *Iterator[P]) AddPeer(collector string, ip netip.Addr, asn uint32) peersig.PeerId {
	id := it.v.AddPeer(collector, ip, asn)
	if id != 0 {
		it.peerPos = int(id) - 1
		it.peerOK = true
	}
	return id
}

// RemovePeer removes the peer the cursor is positioned at and advances to
// the next matching peer.
func (it *Iterator[P]) RemovePeer() {
	if !it.peerOK {
		return
	}
	it.v.RemovePeer(it.PeerID())
	it.NextPeer()
}

// ActivatePeer activates the peer the cursor is positioned at.
func (it *Iterator[P]) ActivatePeer() int {
	if !it.peerOK {
		return 0
	}
	return it.v.ActivatePeer(it.PeerID())
}

// DeactivatePeer deactivates the peer the cursor is positioned at.
func (it *Iterator[P]) DeactivatePeer() int {
	if !it.peerOK {
		return 0
	}
	return it.v.DeactivatePeer(it.PeerID())
}

// AddPfxPeer ensures (pfx, peerID) exists, interning path, and positions the
// pfx cursor at pfx.
func (it *Iterator[P]) AddPfxPeer(pfx netip.Prefix, peerID peersig.PeerId, path aspath.Path) {
	it.v.AddPfxPeer(pfx, peerID, path)
	it.SeekPfx(pfx, AllValid)
}

// AddPfxPeerByID is the PathId-accepting twin of AddPfxPeer.
func (it *Iterator[P]) AddPfxPeerByID(pfx netip.Prefix, peerID peersig.PeerId, pathID aspath.PathId) {
	it.v.AddPfxPeerByID(pfx, peerID, pathID)
	it.SeekPfx(pfx, AllValid)
}

// RemovePfx removes the prefix the pfx cursor is positioned at and advances
// to the next matching prefix.
func (it *Iterator[P]) RemovePfx() {
	if !it.pfxOK {
		return
	}
	it.v.RemovePfx(it.CurPfx())
	it.NextPfx()
}

// DeactivatePfx deactivates the prefix the pfx cursor is positioned at.
func (it *Iterator[P]) DeactivatePfx() int {
	if !it.pfxOK {
		return 0
	}
	return it.v.DeactivatePfx(it.CurPfx())
}

// PfxAddPeer adds a peer entry to the prefix the pfx cursor is currently
// positioned at.
func (it *Iterator[P]) PfxAddPeer(peerID peersig.PeerId, path aspath.Path) {
	if !it.pfxOK {
		return
	}
	it.v.AddPfxPeer(it.CurPfx(), peerID, path)
}

// PfxAddPeerByID is the PathId-accepting twin of PfxAddPeer.
func (it *Iterator[P]) PfxAddPeerByID(peerID peersig.PeerId, pathID aspath.PathId) {
	if !it.pfxOK {
		return
	}
	it.v.AddPfxPeerByID(it.CurPfx(), peerID, pathID)
}

// PfxRemovePeer removes the pfx-peer entry the composite cursor is
// positioned at. Unlike RemovePeer and RemovePfx, it does not advance the
// cursor; the caller must call PfxNextPeer explicitly.
func (it *Iterator[P]) PfxRemovePeer() {
	if !it.pfxOK || !it.ppOK {
		return
	}
	id := it.PfxPeerID()
	it.v.PfxRemovePeer(it.CurPfx(), id)
}

// PfxActivatePeer activates the pfx-peer entry the composite cursor is
// positioned at.
func (it *Iterator[P]) PfxActivatePeer() int {
	if !it.pfxOK || !it.ppOK {
		return 0
	}
	return it.v.PfxActivatePeer(it.CurPfx(), it.PfxPeerID())
}

// PfxDeactivatePeer deactivates the pfx-peer entry the composite cursor is
// positioned at.
func (it *Iterator[P]) PfxDeactivatePeer() int {
	if !it.pfxOK || !it.ppOK {
		return 0
	}
	return it.v.PfxDeactivatePeer(it.CurPfx(), it.PfxPeerID())
}
