// Package ascii implements the §6.2 human-readable view dump: one line
// per pfx-peer, `time|pfx|collector|peer_asn|peer_ip|as_path|origin_seg`.
package ascii

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio"
)

// Write prints v to w, one line per pfx-peer that survives filter, in the
// view's natural iteration order (v4 before v6, each family in the order
// its prefixes were first added).
func Write(w io.Writer, v *view.View[*routingtables.PfxPeerStatus], filter viewio.Filter) error {
	bw := bufio.NewWriter(w)

	it := view.NewIterator(v)
	peerSigs := v.PeerSigMap()
	pathStore := v.PathStore()

	for ok := it.FirstPfx(view.FamilyBoth, view.AllValid); ok; ok = it.NextPfx() {
		pfx := it.CurPfx()
		if !filter.IncludePfx(pfx) {
			continue
		}

		for ppOK := it.PfxFirstPeer(view.AllValid); ppOK; ppOK = it.PfxNextPeer() {
			peerID := it.PfxPeerID()
			sig, ok := peerSigs.LookupSig(peerID)
			if !ok {
				continue
			}
			if !filter.IncludePeer(sig) {
				continue
			}

			pathID := it.PfxPeerPathID()
			sp, ok := pathStore.Lookup(pathID)
			if !ok {
				continue
			}
			if !filter.IncludePfxPeer(sp) {
				continue
			}

			full := sp.SegmentsFor(sig.PeerASN)
			origin, hasOrigin := sp.OriginSegment()
			originStr := ""
			if hasOrigin {
				originStr = formatSegment(origin)
			}

			line := fmt.Sprintf("%d|%s|%s|%d|%s|%s|%s\n",
				v.GetTime(), pfx, sig.Collector, sig.PeerASN, sig.PeerIP,
				FormatPath(full), originStr)
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// FormatPath renders a full AS path the same way the ascii sink prints
// it, reused by internal/snapshot for its as_path column.
func FormatPath(p aspath.Path) string {
	segs := make([]string, len(p))
	for i, seg := range p {
		segs[i] = formatSegment(seg)
	}
	return strings.Join(segs, " ")
}

func formatSegment(seg aspath.Segment) string {
	asns := make([]string, len(seg.ASNs))
	for i, asn := range seg.ASNs {
		asns[i] = strconv.FormatUint(uint64(asn), 10)
	}
	body := strings.Join(asns, " ")
	switch seg.Type {
	case aspath.SegmentSet:
		return "{" + body + "}"
	case aspath.SegmentConfedSequence:
		return "(" + body + ")"
	case aspath.SegmentConfedSet:
		return "[" + body + "]"
	default:
		return body
	}
}
