package routingtables

// applyRibRecord implements §4.4.3: RIB dump boundary protocol and
// per-element UC-slot writes.
func (e *Engine) applyRibRecord(c *collectorState, rec Record) Result {
	if rec.DumpPosition == DumpStart {
		if c.ucInProgress() {
			e.abortUC(c)
		}
		c.ucRibDumpTime = rec.DumpTimeSec
		c.ucRibStartTime = rec.TimeSec
	}

	if rec.DumpTimeSec != c.ucRibDumpTime {
		// Stale fragment from a dump generation we've already moved past
		// (or abandoned); not an error, just not applicable.
		if rec.DumpPosition == DumpEnd {
			c.endOfValidRibPending = true
		}
		return Ok
	}

	for _, el := range rec.Elems {
		if el.Kind != ElemRib {
			continue
		}
		sig, ok := peerSigFor(rec, el)
		if !ok {
			return errf(ErrInput, "rib elem references unknown peer id")
		}
		if !acceptPath(el.Path, sig.PeerASN) {
			continue
		}

		peerID := e.ensurePeer(c, sig, el.PeerID)
		if peerID == 0 {
			return errf(ErrResource, "peer id space exhausted")
		}
		ps := e.peers[peerID]
		if ps.ucRibStart == 0 {
			ps.ucRibStart = rec.TimeSec
		}
		ps.lastTs = rec.TimeSec

		status := e.ensurePfxPeer(el.Pfx, peerID)
		if status == nil {
			return errf(ErrResource, "failed to allocate pfx-peer entry")
		}
		status.setUCAnnounced(true)
		status.BgpTimeUCDeltaTs = rec.TimeSec - ps.ucRibStart
		status.UCAsPathID = e.v.PathStore().Intern(el.Path, sig.PeerASN)
		ps.ribMessages++
	}

	if rec.DumpPosition == DumpEnd {
		c.endOfValidRibPending = true
	}

	return Ok
}

// abortUC discards an in-flight UC without promoting it: the UC window is
// cleared for the collector and for every one of its peers, and any
// UC_Announced bits already written by the abandoned dump are cleared so a
// later promotion never mistakes stale UC state for the new dump's.
func (e *Engine) abortUC(c *collectorState) {
	for id := range c.peerIDs {
		ps, ok := e.peers[id]
		if !ok || !ps.ucInProgress() {
			continue
		}
		e.clearUCFieldsForPeer(id)
		ps.ucRibStart = 0
		ps.ucRibEnd = 0
	}
	c.ucRibDumpTime = 0
	c.ucRibStartTime = 0
	c.endOfValidRibPending = false
}
