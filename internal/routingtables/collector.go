package routingtables

import "github.com/route-beacon/bgpview/internal/peersig"

// collectorState is the engine's per-collector bookkeeping (§4.4.1).
type collectorState struct {
	name string

	bgpTimeLast  uint32
	wallTimeLast uint32 // seconds since epoch, wall clock, refreshed at most every COLLECTOR_WALL_UPDATE_FREQ of bgp time

	refRibDumpTime  uint32
	refRibStartTime uint32

	ucRibDumpTime  uint32
	ucRibStartTime uint32

	endOfValidRibPending bool

	state CollectorState

	validCnt     uint64
	corruptedCnt uint64
	emptyCnt     uint64

	peerIDs map[peersig.PeerId]struct{}
}

func newCollectorState(name string) *collectorState {
	return &collectorState{
		name:    name,
		peerIDs: make(map[peersig.PeerId]struct{}),
	}
}

func (c *collectorState) ucInProgress() bool { return c.ucRibStartTime != 0 }

func (c *collectorState) addPeer(id peersig.PeerId) { c.peerIDs[id] = struct{}{} }

// peerState is the engine's per-peer bookkeeping (§4.4.1).
type peerState struct {
	collector string
	fsmState  FSMState

	refRibStart uint32
	refRibEnd   uint32
	ucRibStart  uint32
	ucRibEnd    uint32
	lastTs      uint32

	ribMessages            uint64
	announcements          uint64
	withdrawals            uint64
	stateMessages           uint64
	ribPositiveMismatches  uint64
	ribNegativeMismatches  uint64
}

func newPeerState(collector string) *peerState {
	return &peerState{collector: collector}
}

func (p *peerState) ucInProgress() bool { return p.ucRibStart != 0 }
