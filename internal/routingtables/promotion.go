package routingtables

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
	"github.com/route-beacon/bgpview/internal/view"
)

// IntervalEnd flushes every collector's pending end-of-valid-RIB promotion
// (§4.4.6). Promotion also runs from the peer-state path in update.go, so
// this is not the only place it happens. Callers invoke it at their chosen interval boundary, and once
// more after the record source is exhausted to flush anything pending.
func (e *Engine) IntervalEnd() {
	for _, c := range e.collectors {
		if c.endOfValidRibPending {
			e.promote(c)
		}
	}
}

// promote runs the end-of-valid-RIB promotion algorithm for c and brings
// its reference window up to the just-completed UC window.
func (e *Engine) promote(c *collectorState) {
	for id := range c.peerIDs {
		ps, ok := e.peers[id]
		if !ok {
			continue
		}
		if ps.ucInProgress() {
			e.promotePeer(c, id, ps)
		} else {
			e.sweepUntouchedPeer(c, id, ps)
		}
	}

	c.refRibDumpTime = c.ucRibDumpTime
	c.refRibStartTime = c.ucRibStartTime
	c.ucRibDumpTime = 0
	c.ucRibStartTime = 0
	c.endOfValidRibPending = false

	e.v.GC()

	c.state = deriveCollectorState(e, c)
}

func (e *Engine) promotePeer(c *collectorState, peerID peersig.PeerId, ps *peerState) {
	var pfxs []netip.Prefix
	e.v.ForEachPfxPeerOfPeer(peerID, func(pfx netip.Prefix) bool {
		pfxs = append(pfxs, pfx)
		return true
	})

	intervalStart := c.bgpTimeLast

	for _, pfx := range pfxs {
		att := e.v.PfxPeerAttachment(pfx, peerID)
		if att == nil || *att == nil {
			continue
		}
		status := *att
		ucTs := status.BgpTimeUCDeltaTs + ps.ucRibStart

		ucNewer := ucTs > status.BgpTimeLastTs && status.BgpTimeLastTs <= saturatingSub(ps.ucRibStart, backlogSeconds)

		wasActive := e.v.PfxPeerState(pfx, peerID) == view.Active
		wasInactiveWithHistory := !wasActive && status.BgpTimeLastTs != 0

		if ucNewer {
			if status.ucAnnounced() {
				e.v.SetPfxPeerPathID(pfx, peerID, status.UCAsPathID)
				status.setAnnounced(true)
				status.BgpTimeLastTs = ucTs
				if e.v.PeerInfo(peerID).State() != view.Active {
					e.v.ActivatePeer(peerID)
				}
				e.v.PfxActivatePeer(pfx, peerID)
				if wasInactiveWithHistory {
					ps.ribNegativeMismatches++
				}
			} else {
				if wasActive {
					ps.ribPositiveMismatches++
				}
				e.v.PfxDeactivatePeer(pfx, peerID)
				e.v.SetPfxPeerPathID(pfx, peerID, aspath.PathId{})
				status.BgpTimeLastTs = 0
				status.setAnnounced(false)
			}
		} else {
			if status.announced() {
				if e.v.PeerInfo(peerID).State() != view.Active {
					e.v.ActivatePeer(peerID)
				}
				e.v.PfxActivatePeer(pfx, peerID)
			}
		}

		status.setUCAnnounced(false)
		status.BgpTimeUCDeltaTs = 0

		if e.v.PfxPeerState(pfx, peerID) == view.Inactive && status.BgpTimeLastTs != 0 &&
			status.BgpTimeLastTs < saturatingSub(intervalStart, gcGraceSeconds) {
			e.v.PfxRemovePeer(pfx, peerID)
		}
	}

	ps.ucRibStart = 0
	ps.ucRibEnd = 0
}

// sweepUntouchedPeer handles a peer the UC never referenced: if it's gone
// quiet for longer than MAX_INACTIVE, presume the session down.
func (e *Engine) sweepUntouchedPeer(c *collectorState, peerID peersig.PeerId, ps *peerState) {
	if ps.lastTs < saturatingSub(c.bgpTimeLast, maxInactiveSeconds) {
		if ps.fsmState == FSMEstablished {
			ps.fsmState = FSMUnknown
			e.resetPfxPeersForPeer(peerID, true)
			e.v.DeactivatePeer(peerID)
		}
	}
	ps.ucRibStart = 0
	ps.ucRibEnd = 0
}

func deriveCollectorState(e *Engine, c *collectorState) CollectorState {
	anyActive := false
	allUnknown := true
	for id := range c.peerIDs {
		ps, ok := e.peers[id]
		if !ok {
			continue
		}
		if ps.fsmState == FSMEstablished {
			anyActive = true
		}
		if ps.fsmState != FSMUnknown {
			allUnknown = false
		}
	}
	switch {
	case anyActive:
		return CollectorUp
	case allUnknown:
		return CollectorUnknown
	default:
		return CollectorDown
	}
}

func saturatingSub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
