// Package file implements the §6.2 binary framed view transport: fixed
// magic numbers at each section boundary so a reader can resync mid-stream,
// big-endian fixed-width integers, and one small-integer IP family tag
// (4 or 6) decoupled from host AF_* values.
package file

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio"
)

const (
	magicView    uint32 = 0x42475056 // "BGPV"
	magicStart   uint32 = 0x53545254 // "STRT"
	magicPeerEnd uint32 = 0x50454E44 // "PEND" (peers section end)
	magicPathEnd uint32 = 0x50415448 // "PATH" (path section end)
	magicPfxEnd  uint32 = 0x58454E44 // "XEND" (pfx section end)
	magicEnd     uint32 = 0x56454E44 // "VEND"
)

const (
	afiV4 byte = 4
	afiV6 byte = 6
)

// Write encodes v to w in the framed binary format, honoring filter.
func Write(w io.Writer, v *view.View[*routingtables.PfxPeerStatus], filter viewio.Filter) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.u32(magicView)
	enc.u32(magicStart)
	enc.u32(v.GetTime())

	peerSigs := v.PeerSigMap()
	it := view.NewIterator(v)

	var includedPeers []peersig.PeerId
	for ok := it.FirstPeer(view.AllValid); ok; ok = it.NextPeer() {
		id := it.PeerID()
		sig, ok := peerSigs.LookupSig(id)
		if !ok || !filter.IncludePeer(sig) {
			continue
		}
		includedPeers = append(includedPeers, id)
		enc.peerRecord(id, sig)
	}
	enc.u32(magicPeerEnd)
	enc.u16(uint16(len(includedPeers)))

	pathStore := v.PathStore()
	pathCount := uint32(0)
	pathStore.IterPaths(func(coreID uint32, segments aspath.Path) bool {
		enc.pathRecord(coreID, segments)
		pathCount++
		return true
	})
	enc.u32(magicPathEnd)
	enc.u32(pathCount)

	pfxCount := uint32(0)
	for ok := it.FirstPfx(view.FamilyBoth, view.AllValid); ok; ok = it.NextPfx() {
		pfx := it.CurPfx()
		if !filter.IncludePfx(pfx) {
			continue
		}
		if err := enc.pfxRecord(it, pfx, pathStore, peerSigs, filter); err != nil {
			return err
		}
		pfxCount++
	}
	enc.u32(magicPfxEnd)
	enc.u32(pfxCount)

	enc.u32(magicEnd)

	if enc.err != nil {
		return enc.err
	}
	return bw.Flush()
}

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) u16(v uint16) {
	if e.err != nil {
		return
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, e.err = e.w.Write(buf[:])
}

func (e *encoder) u32(v uint32) {
	if e.err != nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, e.err = e.w.Write(buf[:])
}

func (e *encoder) byte(b byte) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteByte(b)
}

func (e *encoder) addr(a netip.Addr) {
	if a.Is4() {
		e.byte(afiV4)
		b := a.As4()
		if e.err == nil {
			_, e.err = e.w.Write(b[:])
		}
		return
	}
	e.byte(afiV6)
	b := a.As16()
	if e.err == nil {
		_, e.err = e.w.Write(b[:])
	}
}

// peerRecord: peer-id(u16 BE), afi-tag, peer-ip, peer-asn(u32 BE), collector
// (length-prefixed).
func (e *encoder) peerRecord(id peersig.PeerId, sig peersig.Sig) {
	e.u16(uint16(id))
	e.addr(sig.PeerIP)
	e.u32(sig.PeerASN)
	e.str(sig.Collector)
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	if len(s) > 0xFFFF {
		e.err = fmt.Errorf("viewio/file: string too long (%d bytes)", len(s))
		return
	}
	e.u16(uint16(len(s)))
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

// pathRecord: core-id(u32 BE), segment-count(u16 BE), then per segment:
// type(byte), asn-count(u16 BE), asns(u32 BE each).
func (e *encoder) pathRecord(coreID uint32, segments aspath.Path) {
	e.u32(coreID)
	e.u16(uint16(len(segments)))
	for _, seg := range segments {
		e.byte(byte(seg.Type))
		e.u16(uint16(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			e.u32(asn)
		}
	}
}

// pfxRecord: afi-tag, prefix bytes, prefix-len(byte), peer-count(u16 BE),
// then per included peer: peer-id(u16 BE), path-core-id(u32 BE),
// peer-prefixed(byte 0/1). A pfx-peer whose owning peer filter.IncludePeer
// rejects is skipped here too, so Read never sees a peer id it didn't
// decode from the peer section.
func (e *encoder) pfxRecord(it *view.Iterator[*routingtables.PfxPeerStatus], pfx netip.Prefix, pathStore *aspath.Store, peerSigs *peersig.Map, filter viewio.Filter) error {
	e.addr(pfx.Addr())
	e.byte(byte(pfx.Bits()))

	type included struct {
		id     peersig.PeerId
		pathID aspath.PathId
	}
	var peers []included
	for ppOK := it.PfxFirstPeer(view.AllValid); ppOK; ppOK = it.PfxNextPeer() {
		id := it.PfxPeerID()
		sig, ok := peerSigs.LookupSig(id)
		if !ok || !filter.IncludePeer(sig) {
			continue
		}
		pathID := it.PfxPeerPathID()
		sp, ok := pathStore.Lookup(pathID)
		if !ok || !filter.IncludePfxPeer(sp) {
			continue
		}
		peers = append(peers, included{id: id, pathID: pathID})
	}

	e.u16(uint16(len(peers)))
	for _, p := range peers {
		e.u16(uint16(p.id))
		e.u32(p.pathID.CoreID)
		if p.pathID.PeerPrefixed {
			e.byte(1)
		} else {
			e.byte(0)
		}
	}
	return e.err
}

// Read decodes a view previously written by Write. Peer ids and path core
// ids are reconstructed by replaying AddPeer/Intern in the same order the
// encoder walked them, and each pfx-peer's wire peer id is mapped to the id
// its peer record was assigned; a wire id with no peer record is an error.
// Replaying reproduces identical ids only when Write saw
// no filter (a filtered dump has gaps Read cannot infer from the wire
// alone — callers reading a filtered file get a view whose ids differ
// from the source view's, though its content and print output for the
// surviving entries are unaffected).
func Read(r io.Reader) (*view.View[*routingtables.PfxPeerStatus], error) {
	br := bufio.NewReaderSize(r, 32*1024)
	dec := &decoder{r: br}

	if got := dec.u32(); dec.err == nil && got != magicView {
		return nil, fmt.Errorf("viewio/file: bad view magic %#x", got)
	}
	if got := dec.u32(); dec.err == nil && got != magicStart {
		return nil, fmt.Errorf("viewio/file: bad start magic %#x", got)
	}
	timeSec := dec.u32()
	if dec.err != nil {
		return nil, dec.err
	}

	v := view.New[*routingtables.PfxPeerStatus](view.Config[*routingtables.PfxPeerStatus]{})
	v.SetTime(timeSec)

	peerCount := 0
	peerIDs := make(map[uint16]peersig.PeerId)
	for {
		atEnd, err := dec.atMagic(magicPeerEnd)
		if err != nil {
			return nil, err
		}
		if atEnd {
			break
		}
		id := dec.u16()
		ip := dec.addr()
		asn := dec.u32()
		collector := dec.str()
		if dec.err != nil {
			return nil, dec.err
		}
		got := v.AddPeer(collector, ip, asn)
		if got == 0 {
			return nil, fmt.Errorf("viewio/file: peer id space exhausted at wire id %d", id)
		}
		peerIDs[id] = got
		peerCount++
	}
	wirePeerCount := dec.u16()
	if dec.err != nil {
		return nil, dec.err
	}
	if int(wirePeerCount) != peerCount {
		return nil, fmt.Errorf("viewio/file: peer count mismatch: header %d, decoded %d", wirePeerCount, peerCount)
	}

	pathStore := v.PathStore()
	pathCount := uint32(0)
	for {
		atEnd, err := dec.atMagic(magicPathEnd)
		if err != nil {
			return nil, err
		}
		if atEnd {
			break
		}
		coreID := dec.u32()
		segCount := dec.u16()
		segments := make(aspath.Path, segCount)
		for i := range segments {
			segments[i].Type = aspath.SegmentType(dec.byte())
			asnCount := dec.u16()
			asns := make([]uint32, asnCount)
			for j := range asns {
				asns[j] = dec.u32()
			}
			segments[i].ASNs = asns
		}
		if dec.err != nil {
			return nil, dec.err
		}
		got := pathStore.Intern(segments, 0)
		if got.CoreID != coreID {
			return nil, fmt.Errorf("viewio/file: path core id mismatch: wire %d, assigned %d", coreID, got.CoreID)
		}
		pathCount++
	}
	wirePathCount := dec.u32()
	if dec.err != nil {
		return nil, dec.err
	}
	if wirePathCount != pathCount {
		return nil, fmt.Errorf("viewio/file: path count mismatch: header %d, decoded %d", wirePathCount, pathCount)
	}

	pfxCount := uint32(0)
	for {
		atEnd, err := dec.atMagic(magicPfxEnd)
		if err != nil {
			return nil, err
		}
		if atEnd {
			break
		}
		addr := dec.addr()
		bits := dec.byte()
		pfx := netip.PrefixFrom(addr, int(bits))
		peerCnt := dec.u16()
		for i := uint16(0); i < peerCnt; i++ {
			wireID := dec.u16()
			coreID := dec.u32()
			prefixed := dec.byte()
			if dec.err != nil {
				return nil, dec.err
			}
			peerID, ok := peerIDs[wireID]
			if !ok {
				return nil, fmt.Errorf("viewio/file: pfx-peer references unknown peer id %d", wireID)
			}
			v.AddPfxPeerByID(pfx, peerID, aspath.PathId{CoreID: coreID, PeerPrefixed: prefixed != 0})
		}
		if dec.err != nil {
			return nil, dec.err
		}
		pfxCount++
	}
	wirePfxCount := dec.u32()
	if dec.err != nil {
		return nil, dec.err
	}
	if wirePfxCount != pfxCount {
		return nil, fmt.Errorf("viewio/file: pfx count mismatch: header %d, decoded %d", wirePfxCount, pfxCount)
	}

	if got := dec.u32(); dec.err == nil && got != magicEnd {
		return nil, fmt.Errorf("viewio/file: bad end magic %#x", got)
	}
	if dec.err != nil {
		return nil, dec.err
	}

	return v, nil
}

type decoder struct {
	r   *bufio.Reader
	err error
}

// atMagic peeks 4 bytes and, if they equal magic, consumes them and
// reports true. It never partially consumes on a non-match.
func (d *decoder) atMagic(magic uint32) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	peek, err := d.r.Peek(4)
	if err != nil {
		return false, fmt.Errorf("viewio/file: %w", err)
	}
	if binary.BigEndian.Uint32(peek) != magic {
		return false, nil
	}
	_, err = d.r.Discard(4)
	return true, err
}

func (d *decoder) u16() uint16 {
	if d.err != nil {
		return 0
	}
	var buf [2]byte
	_, d.err = io.ReadFull(d.r, buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	var buf [4]byte
	_, d.err = io.ReadFull(d.r, buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (d *decoder) byte() byte {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	d.err = err
	return b
}

func (d *decoder) addr() netip.Addr {
	if d.err != nil {
		return netip.Addr{}
	}
	afi := d.byte()
	switch afi {
	case afiV4:
		var buf [4]byte
		_, d.err = io.ReadFull(d.r, buf[:])
		return netip.AddrFrom4(buf)
	case afiV6:
		var buf [16]byte
		_, d.err = io.ReadFull(d.r, buf[:])
		return netip.AddrFrom16(buf)
	default:
		d.err = fmt.Errorf("viewio/file: bad afi tag %d", afi)
		return netip.Addr{}
	}
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	n := d.u16()
	if d.err != nil {
		return ""
	}
	buf := make([]byte, n)
	_, d.err = io.ReadFull(d.r, buf)
	return string(buf)
}
