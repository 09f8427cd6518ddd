// Package bus implements the §6.2 message-bus view transport: one Kafka
// message per pfx record, each message body using the same field layout
// internal/viewio/file uses for a pfx record except that the peer list is
// terminated by a sentinel peer-id (0xFFFF) instead of a leading count,
// since a bus message has no natural place to backfill a trailing count
// the way a seekable file does.
package bus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio"
)

const sentinelPeerID uint16 = 0xFFFF

const (
	afiV4 byte = 4
	afiV6 byte = 6
)

// Writer publishes a view to a Kafka topic, one message per pfx.
type Writer struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

func NewWriter(brokers []string, topic string, clientID string, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Writer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(topic),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Writer{client: client, topic: topic, logger: logger}, nil
}

// Write publishes a header message (the view's peer table and path table)
// followed by one message per pfx that survives filter. Every message is
// produced synchronously in order; the caller decides how often to call
// Write (typically once per collector interval).
func (w *Writer) Write(ctx context.Context, v *view.View[*routingtables.PfxPeerStatus], filter viewio.Filter) error {
	peerSigs := v.PeerSigMap()
	pathStore := v.PathStore()
	it := view.NewIterator(v)

	header := &bytes.Buffer{}
	enc := &encoder{w: header}
	enc.u32(v.GetTime())

	var includedPeers int
	for ok := it.FirstPeer(view.AllValid); ok; ok = it.NextPeer() {
		id := it.PeerID()
		sig, ok := peerSigs.LookupSig(id)
		if !ok || !filter.IncludePeer(sig) {
			continue
		}
		enc.u16(uint16(id))
		enc.addr(sig.PeerIP)
		enc.u32(sig.PeerASN)
		enc.str(sig.Collector)
		includedPeers++
	}
	enc.u16(sentinelPeerID)

	pathStore.IterPaths(func(coreID uint32, segments aspath.Path) bool {
		enc.u32(coreID)
		enc.u16(uint16(len(segments)))
		for _, seg := range segments {
			enc.byte(byte(seg.Type))
			enc.u16(uint16(len(seg.ASNs)))
			for _, asn := range seg.ASNs {
				enc.u32(asn)
			}
		}
		return true
	})
	if enc.err != nil {
		return enc.err
	}

	if err := w.produce(ctx, header.Bytes()); err != nil {
		return fmt.Errorf("viewio/bus: header message: %w", err)
	}

	for ok := it.FirstPfx(view.FamilyBoth, view.AllValid); ok; ok = it.NextPfx() {
		pfx := it.CurPfx()
		if !filter.IncludePfx(pfx) {
			continue
		}

		body := &bytes.Buffer{}
		penc := &encoder{w: body}
		penc.addr(pfx.Addr())
		penc.byte(byte(pfx.Bits()))

		for ppOK := it.PfxFirstPeer(view.AllValid); ppOK; ppOK = it.PfxNextPeer() {
			peerID := it.PfxPeerID()
			sig, ok := peerSigs.LookupSig(peerID)
			if !ok || !filter.IncludePeer(sig) {
				continue
			}
			pathID := it.PfxPeerPathID()
			sp, ok := pathStore.Lookup(pathID)
			if !ok || !filter.IncludePfxPeer(sp) {
				continue
			}
			penc.u16(uint16(peerID))
			penc.u32(pathID.CoreID)
			if pathID.PeerPrefixed {
				penc.byte(1)
			} else {
				penc.byte(0)
			}
		}
		penc.u16(sentinelPeerID)
		if penc.err != nil {
			return penc.err
		}

		if err := w.produce(ctx, body.Bytes()); err != nil {
			return fmt.Errorf("viewio/bus: pfx message %s: %w", pfx, err)
		}
	}

	return nil
}

func (w *Writer) produce(ctx context.Context, value []byte) error {
	rec := &kgo.Record{Topic: w.topic, Value: value}
	results := w.client.ProduceSync(ctx, rec)
	return results.FirstErr()
}

func (w *Writer) Close() error {
	w.client.Close()
	return nil
}

type encoder struct {
	w   *bytes.Buffer
	err error
}

func (e *encoder) u16(v uint16) {
	if e.err != nil {
		return
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	e.w.Write(buf[:])
}

func (e *encoder) u32(v uint32) {
	if e.err != nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	e.w.Write(buf[:])
}

func (e *encoder) byte(b byte) {
	if e.err != nil {
		return
	}
	e.w.WriteByte(b)
}

func (e *encoder) addr(a netip.Addr) {
	if a.Is4() {
		e.byte(afiV4)
		b := a.As4()
		e.w.Write(b[:])
		return
	}
	e.byte(afiV6)
	b := a.As16()
	e.w.Write(b[:])
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	if len(s) > 0xFFFF {
		e.err = fmt.Errorf("viewio/bus: string too long (%d bytes)", len(s))
		return
	}
	e.u16(uint16(len(s)))
	e.w.WriteString(s)
}
