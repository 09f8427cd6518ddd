package routingtables

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// handleCorruption implements §4.4.5: a corrupted record at t affects
// active_affected peers (ref_rib_start != 0 and ref_rib_start <= t) and
// uc_affected peers (uc_rib_start != 0 and uc_rib_start <= t), with
// different treatment for their pfx-peers and for the peers themselves.
func (e *Engine) handleCorruption(c *collectorState, rec Record) {
	t := rec.TimeSec

	for id := range c.peerIDs {
		ps, ok := e.peers[id]
		if !ok {
			continue
		}
		activeAffected := ps.refRibStart != 0 && ps.refRibStart <= t
		ucAffected := ps.ucInProgress() && ps.ucRibStart <= t

		if activeAffected && rec.Type == RecordTypeUpdate {
			e.corruptPfxPeersOfPeer(id, t)
		}
		if ucAffected {
			e.clearUCFieldsForPeer(id)
		}

		if activeAffected && rec.Type == RecordTypeUpdate {
			ps.fsmState = FSMUnknown
			e.v.DeactivatePeer(id)
		}
		if ucAffected {
			ps.ucRibStart = 0
			ps.ucRibEnd = 0
		}
	}

	c.endOfValidRibPending = false
}

func (e *Engine) corruptPfxPeersOfPeer(peerID peersig.PeerId, t uint32) {
	var pfxs []netip.Prefix
	e.v.ForEachPfxPeerOfPeer(peerID, func(pfx netip.Prefix) bool {
		pfxs = append(pfxs, pfx)
		return true
	})

	for _, pfx := range pfxs {
		status := e.v.PfxPeerAttachment(pfx, peerID)
		if status == nil || *status == nil {
			continue
		}
		st := *status
		if st.BgpTimeLastTs <= t {
			st.setAnnounced(false)
			e.v.SetPfxPeerPathID(pfx, peerID, aspath.PathId{})
			e.v.PfxDeactivatePeer(pfx, peerID)
		}
	}
}
