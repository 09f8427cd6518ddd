package routingtables

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// resetPfxPeersForPeer implements §4.4.7: for every pfx-peer of peerID
// (both families), optionally clear UC fields, then always clear Announced
// and bgp_time_last_ts, then deactivate. A pfx whose peer count falls to
// zero as a side effect is left for GC, not removed here.
func (e *Engine) resetPfxPeersForPeer(peerID peersig.PeerId, resetUC bool) {
	var pfxs []netip.Prefix
	e.v.ForEachPfxPeerOfPeer(peerID, func(pfx netip.Prefix) bool {
		pfxs = append(pfxs, pfx)
		return true
	})

	for _, pfx := range pfxs {
		status := e.v.PfxPeerAttachment(pfx, peerID)
		if status != nil && *status != nil {
			st := *status
			if resetUC {
				st.clearUC()
			}
			st.setAnnounced(false)
			st.BgpTimeLastTs = 0
		}
		e.v.SetPfxPeerPathID(pfx, peerID, aspath.PathId{})
		e.v.PfxDeactivatePeer(pfx, peerID)
	}
}
