package routingtables

import (
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
	"github.com/route-beacon/bgpview/internal/view"
)

const (
	// backlogSeconds is ROUTINGTABLES_RIB_BACKLOG_TIME: the amount of
	// out-of-order slack tolerated across a RIB-start boundary.
	backlogSeconds = 60

	// maxInactiveSeconds is MAX_INACTIVE: a peer untouched by the UC for
	// longer than this, relative to bgp_time_last, is presumed gone.
	maxInactiveSeconds = 3600

	// collectorWallUpdateFreqSeconds bounds how often wall_time_last is
	// refreshed, in BGP time.
	collectorWallUpdateFreqSeconds = 10_000

	// gcGraceSeconds is the age (relative to interval start) beyond which
	// a still-Inactive pfx-peer becomes a GC candidate.
	gcGraceSeconds = 24 * 3600
)

// Clock abstracts wall-clock reads so wall_time_last refresh is testable,
// the same seam the teacher uses for injected collaborators rather than
// package-level state.
type Clock func() time.Time

// Engine is the per-process RIB reconstruction state machine. One Engine
// owns exactly one View and may multiplex several collectors over it (each
// collector's peers are disjoint in practice, but nothing in this package
// enforces that).
type Engine struct {
	v      *view.View[*PfxPeerStatus]
	logger *zap.Logger
	clock  Clock

	collectors map[string]*collectorState
	peers      map[peersig.PeerId]*peerState
}

// NewView constructs the pfx-peer-attachment view.View instantiation this
// package's Engine expects.
func NewView() *view.View[*PfxPeerStatus] {
	return view.New[*PfxPeerStatus](view.Config[*PfxPeerStatus]{})
}

// New constructs an Engine over v. A nil logger is replaced with
// zap.NewNop(); a nil clock defaults to time.Now.
func New(v *view.View[*PfxPeerStatus], logger *zap.Logger, clock Clock) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		v:          v,
		logger:     logger,
		clock:      clock,
		collectors: make(map[string]*collectorState),
		peers:      make(map[peersig.PeerId]*peerState),
	}
}

// View returns the engine's underlying view, for read-only consumer
// iteration between interval boundaries.
func (e *Engine) View() *view.View[*PfxPeerStatus] { return e.v }

func (e *Engine) ensureCollector(name string) *collectorState {
	c, ok := e.collectors[name]
	if !ok {
		c = newCollectorState(name)
		e.collectors[name] = c
	}
	return c
}

// ensurePeer interns sig and ensures both the view-level PeerInfo and the
// engine's own per-peer bookkeeping exist, registering the peer under
// collector.
func (e *Engine) ensurePeer(c *collectorState, sig PeerSig, recordPeerID uint16) peersig.PeerId {
	id := e.v.AddPeer(c.name, sig.PeerIP, sig.PeerASN)
	if id == 0 {
		return 0
	}
	c.addPeer(id)
	if _, ok := e.peers[id]; !ok {
		e.peers[id] = newPeerState(c.name)
	}
	return id
}

func (e *Engine) ensurePfxPeer(pfx netip.Prefix, peerID peersig.PeerId) *PfxPeerStatus {
	if e.v.PfxPeerState(pfx, peerID) == view.Invalid {
		e.v.AddPfxPeerByID(pfx, peerID, aspath.PathId{})
	}
	att := e.v.PfxPeerAttachment(pfx, peerID)
	if att == nil {
		return nil
	}
	if *att == nil {
		*att = &PfxPeerStatus{}
	}
	return *att
}

// ProcessRecord applies one Record to the view, per §4.4.2 dispatch.
func (e *Engine) ProcessRecord(rec Record) Result {
	c := e.ensureCollector(rec.Collector)

	if e.discard(c, rec) {
		return Ok
	}

	e.refreshTimestamps(c, rec)

	switch rec.Status {
	case StatusValidRecord:
		c.validCnt++
		return e.applyValid(c, rec)
	case StatusCorruptedRecord, StatusCorruptedSource:
		c.corruptedCnt++
		e.handleCorruption(c, rec)
		return Ok
	case StatusFilteredSource, StatusEmptySource, StatusOutsideTimeInterval:
		c.emptyCnt++
		return Ok
	default:
		return errf(ErrInput, "unknown record status")
	}
}

// discard implements the §4.4.2 discard guard: a record older than the
// reference RIB start is discarded, unless a UC RIB is in flight and the
// record falls within the backlog window before that UC RIB's start.
func (e *Engine) discard(c *collectorState, rec Record) bool {
	if rec.TimeSec < c.refRibStartTime {
		if !c.ucInProgress() || rec.TimeSec < saturatingSub(c.ucRibStartTime, backlogSeconds) {
			return true
		}
	}
	return false
}

func (e *Engine) refreshTimestamps(c *collectorState, rec Record) {
	if rec.TimeSec > c.bgpTimeLast {
		c.bgpTimeLast = rec.TimeSec
	}
	if c.bgpTimeLast-c.wallTimeLast >= collectorWallUpdateFreqSeconds || c.wallTimeLast == 0 {
		c.wallTimeLast = uint32(e.clock().Unix())
	}
}

func (e *Engine) applyValid(c *collectorState, rec Record) Result {
	switch rec.Type {
	case RecordTypeRib:
		return e.applyRibRecord(c, rec)
	case RecordTypeUpdate:
		return e.applyUpdateRecord(c, rec)
	default:
		return errf(ErrInput, "unknown record type")
	}
}

// peerSigFor resolves an Elem's record-local peer id to its full
// signature, returning false if the record didn't carry it.
func peerSigFor(rec Record, elem Elem) (PeerSig, bool) {
	sig, ok := rec.PeerSigs[elem.PeerID]
	return sig, ok
}

// acceptPath implements §4.4.3 step 4: drop zero-length paths (locally
// originated) and paths whose leading ASN doesn't match the announcing
// peer (protects against non-prepending route-server peers).
func acceptPath(path aspath.Path, peerASN uint32) bool {
	if len(path) == 0 {
		return false
	}
	first := path[0]
	if len(first.ASNs) == 0 {
		return false
	}
	return first.ASNs[0] == peerASN
}
