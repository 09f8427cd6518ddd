// Package bmp implements a recordsource.Source that consumes raw OpenBMP
// frames from Kafka and decodes them into routingtables.Record values,
// rather than reading a pre-decoded JSON record as internal/recordsource/jsonl
// and internal/recordsource/kafka do. It exists so the wire-format parsers
// in internal/bgp and internal/bmp — built to read a live BMP feed straight
// off the router, not a pre-processed record stream — have somewhere to
// plug in: a deployment pointed at a raw OpenBMP topic (e.g. router-fed
// goBMP output) uses this source instead of one of the JSON-record ones.
//
// One Kafka message carries one BMP message. Route Monitoring messages
// carry exactly one per-peer header followed by one BGP UPDATE, which may
// itself announce or withdraw several prefixes; all of them become Elems
// of a single Record sharing that peer's PeerSig. Messages that are not
// Route Monitoring (initiation, peer up/down, statistics, termination) are
// skipped — this source only ever supplies Update records, never RIB dumps
// (a goBMP feed has no notion of "dump replay", and Loc-RIB support is
// left to a future Record source rather than bolted on here).
package bmp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/aspath"
	bgpwire "github.com/route-beacon/bgpview/internal/bgp"
	bmpwire "github.com/route-beacon/bgpview/internal/bmp"
	"github.com/route-beacon/bgpview/internal/recordsource"
	"github.com/route-beacon/bgpview/internal/routingtables"
)

const localPeerID uint16 = 1

// Source decodes raw OpenBMP/BMP/BGP frames read from Kafka into
// routingtables.Record values. Its consumer wiring mirrors
// internal/recordsource/kafka; only message decoding differs.
type Source struct {
	client          *kgo.Client
	maxPayloadBytes int
	logger          *zap.Logger
	joined          atomic.Bool

	pending []*kgo.Record
}

// New constructs a Source consuming topics carrying raw OpenBMP frames.
// maxPayloadBytes bounds a single decoded BMP message, guarding against a
// corrupt or adversarial length field inflating an allocation.
func New(brokers []string, groupID string, topics []string, clientID string,
	fetchMaxBytes int32, maxPayloadBytes int, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Source, error) {
	s := &Source{logger: logger, maxPayloadBytes: maxPayloadBytes}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			s.joined.Store(true)
			logger.Info("bmp record source: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("bmp record source: commit on revoke failed", zap.Error(err))
			}
			s.joined.Store(false)
			logger.Info("bmp record source: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			s.joined.Store(false)
			logger.Info("bmp record source: partitions lost")
		}),
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
	s.client = client
	return s, nil
}

// Next decodes the next Route Monitoring message into a Record, skipping
// any other BMP message types it encounters along the way (it loops
// rather than returning an empty Record so the caller never has to special
// case a no-op record).
func (s *Source) Next(ctx context.Context) (routingtables.Record, error) {
	for {
		raw, err := s.nextKafkaRecord(ctx)
		if err != nil {
			return routingtables.Record{}, err
		}

		rec, ok, err := s.decode(raw)
		s.client.MarkCommitRecords(raw)
		if err != nil {
			s.logger.Warn("bmp record source: decode failed, skipping message",
				zap.String("topic", raw.Topic), zap.Int64("offset", raw.Offset), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		return rec, nil
	}
}

func (s *Source) nextKafkaRecord(ctx context.Context) (*kgo.Record, error) {
	for len(s.pending) == 0 {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, e := range fetches.Errors() {
			s.logger.Error("bmp record source: fetch error",
				zap.String("topic", e.Topic), zap.Int32("partition", e.Partition), zap.Error(e.Err))
		}
		fetches.EachRecord(func(r *kgo.Record) {
			s.pending = append(s.pending, r)
		})
	}
	raw := s.pending[0]
	s.pending = s.pending[1:]
	return raw, nil
}

// decode turns one raw Kafka message value into a Record. ok is false for
// BMP messages that carry no route events (peer up/down, initiation,
// termination, statistics) — those are not errors, just nothing to report.
func (s *Source) decode(raw *kgo.Record) (routingtables.Record, bool, error) {
	bmpBytes, err := bmpwire.DecodeOpenBMPFrame(raw.Value, s.maxPayloadBytes)
	if err != nil {
		return routingtables.Record{}, false, fmt.Errorf("decode openbmp frame: %w", err)
	}

	parsed, err := bmpwire.Parse(bmpBytes)
	if err != nil {
		return routingtables.Record{}, false, fmt.Errorf("parse bmp message: %w", err)
	}
	if parsed.MsgType != bmpwire.MsgTypeRouteMonitoring || len(parsed.PeerHeader) == 0 {
		return routingtables.Record{}, false, nil
	}

	peerAddr, ok := bmpwire.PeerAddr(parsed.PeerHeader)
	if !ok {
		return routingtables.Record{}, false, fmt.Errorf("peer header missing address")
	}
	peerASN, ok := bmpwire.PeerASN(parsed.PeerHeader)
	if !ok {
		return routingtables.Record{}, false, fmt.Errorf("peer header missing AS")
	}

	events, err := bgpwire.ParseUpdate(parsed.BGPData, parsed.HasAddPath)
	if err != nil {
		return routingtables.Record{}, false, fmt.Errorf("parse bgp update: %w", err)
	}
	if len(events) == 0 {
		return routingtables.Record{}, false, nil
	}

	elems := make([]routingtables.Elem, 0, len(events))
	for _, ev := range events {
		elem, ok := routeEventToElem(ev)
		if !ok {
			continue
		}
		elems = append(elems, elem)
	}
	if len(elems) == 0 {
		return routingtables.Record{}, false, nil
	}

	return routingtables.Record{
		Collector: raw.Topic,
		TimeSec:   uint32(time.Now().Unix()),
		Type:      routingtables.RecordTypeUpdate,
		Status:    routingtables.StatusValidRecord,
		PeerSigs: map[uint16]routingtables.PeerSig{
			localPeerID: {PeerIP: peerAddr, PeerASN: peerASN},
		},
		Elems: elems,
	}, true, nil
}

func routeEventToElem(ev *bgpwire.RouteEvent) (routingtables.Elem, bool) {
	pfx, err := parsePrefix(ev.Prefix)
	if err != nil {
		return routingtables.Elem{}, false
	}

	switch ev.Action {
	case "A":
		return routingtables.Elem{
			Kind:   routingtables.ElemAnnouncement,
			Pfx:    pfx,
			PeerID: localPeerID,
			Path:   segmentsToPath(ev.ASPathSegments),
		}, true
	case "D":
		return routingtables.Elem{
			Kind:   routingtables.ElemWithdrawal,
			Pfx:    pfx,
			PeerID: localPeerID,
		}, true
	default:
		return routingtables.Elem{}, false
	}
}

func segmentsToPath(segs []bgpwire.ASPathSegment) aspath.Path {
	path := make(aspath.Path, 0, len(segs))
	for _, s := range segs {
		typ := aspath.SegmentSequence
		if s.Type == bgpwire.ASPathSegmentSet {
			typ = aspath.SegmentSet
		}
		path = append(path, aspath.Segment{Type: typ, ASNs: s.ASNs})
	}
	return path
}

// IsJoined reports whether this source's consumer group has an active
// partition assignment, for httpserver.SourceStatus.
func (s *Source) IsJoined() bool { return s.joined.Load() }

// Commit flushes marked offsets to the broker, mirroring
// internal/recordsource/kafka.Source.Commit.
func (s *Source) Commit(ctx context.Context) error {
	return s.client.CommitMarkedOffsets(ctx)
}

func (s *Source) Close() error {
	s.client.Close()
	return nil
}

var _ recordsource.Source = (*Source)(nil)

func parsePrefix(s string) (netip.Prefix, error) {
	return netip.ParsePrefix(s)
}
