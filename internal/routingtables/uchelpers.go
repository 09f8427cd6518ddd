package routingtables

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/peersig"
)

// clearUCFieldsForPeer clears the UC_Announced flag and uc_delta_ts on
// every one of peerID's pfx-peer entries, without touching the live
// Announced/bgp_time_last_ts state. Used by abortUC and by corruption
// handling's uc_affected pass (§4.4.5), both of which must invalidate
// stale UC data without disturbing the active routing state.
func (e *Engine) clearUCFieldsForPeer(peerID peersig.PeerId) {
	e.v.ForEachPfxPeerOfPeer(peerID, func(pfx netip.Prefix) bool {
		if status := e.v.PfxPeerAttachment(pfx, peerID); status != nil && *status != nil {
			(*status).clearUC()
		}
		return true
	})
}
