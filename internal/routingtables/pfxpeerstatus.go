package routingtables

import "github.com/route-beacon/bgpview/internal/aspath"

// pfxPeerFlags is the bitmask stored in PfxPeerStatus.Status.
type pfxPeerFlags uint8

const (
	flagAnnounced   pfxPeerFlags = 1 << 0
	flagUCAnnounced pfxPeerFlags = 1 << 1
)

// PfxPeerStatus is the RIBEngine's attachment stored in each pfx-peer's
// extended slot (view.View[*PfxPeerStatus]) — the engine-private bookkeeping
// that rides alongside the generic PathId/state the view itself owns.
type PfxPeerStatus struct {
	Status pfxPeerFlags

	// BgpTimeLastTs is the BGP timestamp of the last update message
	// applied to this pfx-peer via the live (non-RIB) path.
	BgpTimeLastTs uint32

	// BgpTimeUCDeltaTs is seconds since the peer's uc_rib_start at
	// which the UC RIB message for this pfx-peer arrived.
	BgpTimeUCDeltaTs uint32

	// UCAsPathID is the path interned for this pfx-peer in the
	// in-flight under-construction RIB.
	UCAsPathID aspath.PathId
}

func (s *PfxPeerStatus) announced() bool   { return s.Status&flagAnnounced != 0 }
func (s *PfxPeerStatus) ucAnnounced() bool { return s.Status&flagUCAnnounced != 0 }

func (s *PfxPeerStatus) setAnnounced(v bool) {
	if v {
		s.Status |= flagAnnounced
	} else {
		s.Status &^= flagAnnounced
	}
}

func (s *PfxPeerStatus) setUCAnnounced(v bool) {
	if v {
		s.Status |= flagUCAnnounced
	} else {
		s.Status &^= flagUCAnnounced
	}
}

func (s *PfxPeerStatus) clearUC() {
	s.setUCAnnounced(false)
	s.BgpTimeUCDeltaTs = 0
	s.UCAsPathID = aspath.PathId{}
}
