package view

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// PfxPeerState returns the lifecycle state of the (pfx, peerID) entry, or
// Invalid if no such prefix or entry exists.
func (v *View[P]) PfxPeerState(pfx netip.Prefix, peerID peersig.PeerId) FieldState {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok {
		return Invalid
	}
	return pi.peerState(peerID)
}

// PfxPeerPathID returns the interned path id stored for (pfx, peerID). The
// second return is false if the entry doesn't exist or is Invalid.
func (v *View[P]) PfxPeerPathID(pfx netip.Prefix, peerID peersig.PeerId) (aspath.PathId, bool) {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok || pi.peerState(peerID) == Invalid {
		return aspath.PathId{}, false
	}
	e := pi.entry(peerID)
	if e == nil {
		return aspath.PathId{}, false
	}
	return e.pathID, true
}

// SetPfxPeerPathID overwrites the interned path id stored for (pfx,
// peerID), without touching its lifecycle state. The entry must already
// exist (via AddPfxPeer/AddPfxPeerByID).
func (v *View[P]) SetPfxPeerPathID(pfx netip.Prefix, peerID peersig.PeerId, id aspath.PathId) {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok {
		return
	}
	if e := pi.entry(peerID); e != nil {
		e.pathID = id
	}
}

// PfxPeerAttachment returns a pointer to the (pfx, peerID) entry's
// attachment slot so a caller can read or mutate domain state stashed
// there (RIBEngine's PfxPeerStatus, for instance), or nil if the entry
// doesn't exist.
func (v *View[P]) PfxPeerAttachment(pfx netip.Prefix, peerID peersig.PeerId) *P {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok {
		return nil
	}
	e := pi.entry(peerID)
	if e == nil {
		return nil
	}
	return &e.attachment
}

// SetPfxPeerAttachment overwrites the (pfx, peerID) entry's attachment
// value. The entry must already exist.
func (v *View[P]) SetPfxPeerAttachment(pfx netip.Prefix, peerID peersig.PeerId, val P) {
	table, _ := familyTables(v, familyOf(pfx))
	pi, ok := table[pfx]
	if !ok {
		return
	}
	if e := pi.entry(peerID); e != nil {
		e.attachment = val
	}
}

// ForEachPfxPeerOfPeer visits every prefix across both families for which
// peerID has a non-Invalid entry, in map order. fn returning false stops
// iteration early. Callers use the (pfx, peerID) accessors above to read
// or mutate the visited entry.
func (v *View[P]) ForEachPfxPeerOfPeer(peerID peersig.PeerId, fn func(pfx netip.Prefix) bool) {
	for pfx, pi := range v.v4 {
		if pi.peerState(peerID) == Invalid {
			continue
		}
		if !fn(pfx) {
			return
		}
	}
	for pfx, pi := range v.v6 {
		if pi.peerState(peerID) == Invalid {
			continue
		}
		if !fn(pfx) {
			return
		}
	}
}

// ForEachPfxPeer visits every non-Invalid (pfx, peerID) pair in the view.
func (v *View[P]) ForEachPfxPeer(fn func(pfx netip.Prefix, peerID peersig.PeerId)) {
	walk := func(table map[netip.Prefix]*PfxInfo[P]) {
		for pfx, pi := range table {
			for i := 1; i <= int(pi.maxPeerID()); i++ {
				id := peersig.PeerId(i)
				if pi.peerState(id) == Invalid {
					continue
				}
				fn(pfx, id)
			}
		}
	}
	walk(v.v4)
	walk(v.v6)
}
