package routingtables

import (
	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/view"
)

// applyUpdateRecord implements §4.4.4: Announcement/Withdrawal and
// PeerState elements of a live UPDATE record.
func (e *Engine) applyUpdateRecord(c *collectorState, rec Record) Result {
	for _, el := range rec.Elems {
		switch el.Kind {
		case ElemAnnouncement, ElemWithdrawal:
			if res := e.applyRouteElem(c, rec, el); !res.IsOk() {
				return res
			}
		case ElemPeerState:
			if res := e.applyPeerStateElem(c, rec, el); !res.IsOk() {
				return res
			}
		}
	}
	return Ok
}

func (e *Engine) applyRouteElem(c *collectorState, rec Record, el Elem) Result {
	sig, ok := peerSigFor(rec, el)
	if !ok {
		return errf(ErrInput, "update elem references unknown peer id")
	}

	if el.Kind == ElemAnnouncement && !acceptPath(el.Path, sig.PeerASN) {
		return Ok
	}

	peerID := e.ensurePeer(c, sig, el.PeerID)
	if peerID == 0 {
		return errf(ErrResource, "peer id space exhausted")
	}
	ps := e.peers[peerID]
	ps.lastTs = rec.TimeSec

	status := e.ensurePfxPeer(el.Pfx, peerID)
	if status == nil {
		return errf(ErrResource, "failed to allocate pfx-peer entry")
	}

	// 2. Old-update guard.
	if status.BgpTimeLastTs > rec.TimeSec {
		return Ok
	}
	status.BgpTimeLastTs = rec.TimeSec

	// 3. Apply the route change.
	switch el.Kind {
	case ElemAnnouncement:
		status.setAnnounced(true)
		e.v.SetPfxPeerPathID(el.Pfx, peerID, e.v.PathStore().Intern(el.Path, sig.PeerASN))
		ps.announcements++
	case ElemWithdrawal:
		status.setAnnounced(false)
		e.v.SetPfxPeerPathID(el.Pfx, peerID, aspath.PathId{})
		ps.withdrawals++
	}

	// 4. Peer activation on any update, provided we have session
	// evidence (fsm_state != Unknown). A peer with no FSM evidence at
	// all stays inactive — we have no session to trust.
	pe := e.v.PeerInfo(peerID)
	if pe != nil && pe.State() == view.Inactive && ps.fsmState != FSMUnknown {
		e.v.ActivatePeer(peerID)
		ps.refRibStart = rec.TimeSec
		ps.refRibEnd = rec.TimeSec
	}

	// 5. pfx-peer activation, only if the owning peer is Active.
	pe = e.v.PeerInfo(peerID)
	if pe != nil && pe.State() == view.Active {
		switch el.Kind {
		case ElemAnnouncement:
			e.v.PfxActivatePeer(el.Pfx, peerID)
		case ElemWithdrawal:
			e.v.PfxDeactivatePeer(el.Pfx, peerID)
		}
	}

	return Ok
}

func (e *Engine) applyPeerStateElem(c *collectorState, rec Record, el Elem) Result {
	sig, ok := peerSigFor(rec, el)
	if !ok {
		return errf(ErrInput, "peer-state elem references unknown peer id")
	}
	peerID := e.ensurePeer(c, sig, el.PeerID)
	if peerID == 0 {
		return errf(ErrResource, "peer id space exhausted")
	}
	ps := e.peers[peerID]
	ps.stateMessages++

	old := ps.fsmState
	newState := el.NewFSMState
	if newState == old {
		return Ok
	}

	switch {
	case old == FSMEstablished && newState != FSMEstablished:
		if ps.ucInProgress() && rec.TimeSec >= ps.ucRibStart {
			// UC tainted for this peer: if the collector's promotion was
			// pending, force it now before we lose ordering information.
			if c.endOfValidRibPending {
				e.promote(c)
			}
		}
		ps.ucRibStart = 0
		ps.ucRibEnd = 0
		ps.fsmState = newState
		e.resetPfxPeersForPeer(peerID, true)
		e.v.DeactivatePeer(peerID)

	case newState == FSMEstablished && old != FSMEstablished:
		ps.fsmState = newState
		e.v.ActivatePeer(peerID)

	default:
		ps.fsmState = newState
		ps.refRibStart = rec.TimeSec
		ps.refRibEnd = rec.TimeSec
	}

	return Ok
}
