package view

import (
	"net/netip"
	"time"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// Config bundles the construction-time choices for a View.
type Config[P any] struct {
	// PeerSigMap, if set, is shared with a sibling view; otherwise the
	// View allocates and owns its own.
	PeerSigMap *peersig.Map
	// PathStore, if set, is shared with a sibling view; otherwise the
	// View allocates and owns its own.
	PathStore *aspath.Store
	// OnDetach, if set, is invoked with a pfx-peer's attachment whenever
	// that pfx-peer entry is permanently reclaimed (pfx_remove_peer, a
	// removed prefix, or clear) — the Go stand-in for the original
	// per-view user-destructor callback. GC does not invoke it: the
	// prefixes GC deletes were already removed.
	OnDetach func(P)
}

// View is a whole routing snapshot: time, two prefix tables (v4/v6), a
// peer-info table, and handles to the shared AsPathStore/PeerSignatureMap.
type View[P any] struct {
	timeSec     uint32
	timeCreated time.Time
	generation  uint64 // bumped by Clear/GC; used to detect stale iterator positions

	v4      map[netip.Prefix]*PfxInfo[P]
	v6      map[netip.Prefix]*PfxInfo[P]
	v4Order []netip.Prefix
	v6Order []netip.Prefix

	peers []*PeerInfo[P]

	peerSig      *peersig.Map
	ownsPeerSig  bool
	pathStore    *aspath.Store
	ownsPathStore bool

	onDetach func(P)

	extendedLocked   bool // true once the first prefix has been added
	extendedDisabled bool

	v4PfxCnt [3]int
	v6PfxCnt [3]int
	peerCnt  [3]int
}

// New creates an empty View. With a zero Config the view allocates and
// owns both interning stores; a store set in cfg is shared instead.
func New[P any](cfg Config[P]) *View[P] {
	v := &View[P]{
		timeCreated: time.Now(),
		v4:          make(map[netip.Prefix]*PfxInfo[P]),
		v6:          make(map[netip.Prefix]*PfxInfo[P]),
		onDetach:    cfg.OnDetach,
	}

	if cfg.PeerSigMap != nil {
		v.peerSig = cfg.PeerSigMap
	} else {
		v.peerSig = peersig.New()
		v.ownsPeerSig = true
	}

	if cfg.PathStore != nil {
		v.pathStore = cfg.PathStore
	} else {
		v.pathStore = aspath.New()
		v.ownsPathStore = true
	}

	return v
}

// PeerSigMap returns the peer-signature interning table this view uses.
func (v *View[P]) PeerSigMap() *peersig.Map { return v.peerSig }

// PathStore returns the AS-path interning table this view uses.
func (v *View[P]) PathStore() *aspath.Store { return v.pathStore }

// DisableExtendedPfxPeer records that this view's pfx-peer attachments are
// not used. It succeeds only before the first prefix is added; afterward it
// returns false and changes nothing rather than panicking, since production
// builds must not crash on a caller mistake (§7). Only the flag is
// recorded: pfx-peer entries keep their attachment slot either way.
func (v *View[P]) DisableExtendedPfxPeer() bool {
	if v.extendedLocked {
		return false
	}
	v.extendedDisabled = true
	return true
}

// GetTime returns the BGP epoch seconds this view represents.
func (v *View[P]) GetTime() uint32 { return v.timeSec }

// SetTime sets the BGP epoch seconds this view represents.
func (v *View[P]) SetTime(t uint32) { v.timeSec = t }

// GetTimeCreated returns the wall-clock time this view was created.
func (v *View[P]) GetTimeCreated() time.Time { return v.timeCreated }

// Generation returns the view's current generation counter, bumped by
// Clear and GC. Iterator.FirstPfxPeer uses it to detect a stale caller-held
// version.
func (v *View[P]) Generation() uint64 { return v.generation }

func familyTables[P any](v *View[P], fam Family) (map[netip.Prefix]*PfxInfo[P], *[]netip.Prefix) {
	switch fam {
	case FamilyV6:
		return v.v6, &v.v6Order
	default:
		return v.v4, &v.v4Order
	}
}

func familyOf(pfx netip.Prefix) Family {
	if pfx.Addr().Is4() {
		return FamilyV4
	}
	return FamilyV6
}

// V4PfxCnt returns the number of v4 prefixes whose state matches mask.
func (v *View[P]) V4PfxCnt(mask FieldState) int { return countByMask(v.v4PfxCnt, mask) }

// V6PfxCnt returns the number of v6 prefixes whose state matches mask.
func (v *View[P]) V6PfxCnt(mask FieldState) int { return countByMask(v.v6PfxCnt, mask) }

// PfxCnt returns the total number of prefixes (both families) whose state
// matches mask.
func (v *View[P]) PfxCnt(mask FieldState) int {
	return v.V4PfxCnt(mask) + v.V6PfxCnt(mask)
}

// PeerCnt returns the number of peers whose state matches mask.
func (v *View[P]) PeerCnt(mask FieldState) int { return countByMask(v.peerCnt, mask) }

func countByMask(counts [3]int, mask FieldState) int {
	n := 0
	if Active.Matches(mask) {
		n += counts[Active]
	}
	if Inactive.Matches(mask) {
		n += counts[Inactive]
	}
	return n
}

// Clear marks all prefixes and peers Invalid, zeroes counters, and resets
// time. Arrays are not deallocated so the view can be reused on the next
// epoch.
func (v *View[P]) Clear() {
	for _, pi := range v.v4 {
		v.clearPfxInfo(pi)
	}
	for _, pi := range v.v6 {
		v.clearPfxInfo(pi)
	}
	for _, pe := range v.peers {
		if pe == nil {
			continue
		}
		pe.state = Invalid
		pe.v4PfxCnt = [3]int{}
		pe.v6PfxCnt = [3]int{}
	}

	v.v4PfxCnt = [3]int{}
	v.v6PfxCnt = [3]int{}
	v.peerCnt = [3]int{}
	v.timeSec = 0
	v.generation++
}

func (v *View[P]) clearPfxInfo(pi *PfxInfo[P]) {
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

// GC deletes every Invalid prefix from the prefix tables and shrinks their
// order slices. Invalid peers and the Invalid pfx-peer slots of the
// remaining prefixes stay allocated.
func (v *View[P]) GC() {
	v.v4Order = gcFamily(v.v4, v.v4Order)
	v.v6Order = gcFamily(v.v6, v.v6Order)
	v.generation++
}

func gcFamily[P any](table map[netip.Prefix]*PfxInfo[P], order []netip.Prefix) []netip.Prefix {
	kept := order[:0]
	for _, pfx := range order {
		pi, ok := table[pfx]
		if !ok {
			continue
		}
		if pi.state == Invalid {
			delete(table, pfx)
			continue
		}
		kept = append(kept, pfx)
	}
	return append([]netip.Prefix(nil), kept...)
}

// Clone returns a new View that is a deep copy of v. When shareInterns is
// true the clone shares v's PeerSignatureMap and AsPathStore (the common
// "parent/working view" pattern of §4.5); otherwise it copies neither
// ownership flag and allocates fresh ones pre-populated with the same
// interned handles (Go's GC makes a literal pointer-sharing copy safe
// either way, but shareInterns documents caller intent the way the
// original bgpview_dup family distinguished a shallow dup).
func (v *View[P]) Clone(shareInterns bool) *View[P] {
	cfg := Config[P]{OnDetach: v.onDetach}
	if shareInterns {
		cfg.PeerSigMap = v.peerSig
		cfg.PathStore = v.pathStore
	}
	out := New[P](cfg)
	out.timeSec = v.timeSec

	out.v4 = cloneFamily(v.v4)
	out.v6 = cloneFamily(v.v6)
	out.v4Order = append([]netip.Prefix(nil), v.v4Order...)
	out.v6Order = append([]netip.Prefix(nil), v.v6Order...)
	out.v4PfxCnt = v.v4PfxCnt
	out.v6PfxCnt = v.v6PfxCnt
	out.peerCnt = v.peerCnt
	out.peers = make([]*PeerInfo[P], len(v.peers))
	for i, pe := range v.peers {
		if pe == nil {
			continue
		}
		cp := *pe
		out.peers[i] = &cp
	}
	if !shareInterns {
		// Replaying the interning in id order gives the fresh stores the
		// same peer ids and path core ids the copied entries refer to.
		for id := peersig.PeerId(1); ; id++ {
			sig, ok := v.peerSig.LookupSig(id)
			if !ok {
				break
			}
			out.peerSig.GetOrCreate(sig.Collector, sig.PeerIP, sig.PeerASN)
		}
		v.pathStore.IterPaths(func(_ uint32, segments aspath.Path) bool {
			out.pathStore.Intern(segments, 0)
			return true
		})
		out.ownsPeerSig = true
		out.ownsPathStore = true
	}
	return out
}

func cloneFamily[P any](in map[netip.Prefix]*PfxInfo[P]) map[netip.Prefix]*PfxInfo[P] {
	out := make(map[netip.Prefix]*PfxInfo[P], len(in))
	for pfx, pi := range in {
		cp := *pi
		cp.peers = append([]pfxPeerEntry[P](nil), pi.peers...)
		cp.peerStates = append(peerStateBits(nil), pi.peerStates...)
		out[pfx] = &cp
	}
	return out
}

// SyncFrom replaces v's contents with a copy of src (clear-then-copy), the
// second half of the §4.5 parent/working-view handoff.
func (v *View[P]) SyncFrom(src *View[P]) {
	clone := src.Clone(true)
	v.v4 = clone.v4
	v.v6 = clone.v6
	v.v4Order = clone.v4Order
	v.v6Order = clone.v6Order
	v.peers = clone.peers
	v.v4PfxCnt = clone.v4PfxCnt
	v.v6PfxCnt = clone.v6PfxCnt
	v.peerCnt = clone.peerCnt
	v.timeSec = src.timeSec
	v.generation++
}
