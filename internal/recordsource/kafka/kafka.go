// Package kafka implements a recordsource.Source backed by franz-go,
// decoding each message value as a routingtables.Record (the same JSON
// shape internal/recordsource/jsonl reads from files).
package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/recordsource"
	"github.com/route-beacon/bgpview/internal/routingtables"
)

type Source struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool

	pending []*kgo.Record
}

func New(brokers []string, groupID string, topics []string, clientID string,
	fetchMaxBytes int32, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Source, error) {
	s := &Source{logger: logger}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			s.joined.Store(true)
			logger.Info("record source: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("record source: commit on revoke failed", zap.Error(err))
			}
			s.joined.Store(false)
			logger.Info("record source: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			s.joined.Store(false)
			logger.Info("record source: partitions lost")
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

// Next returns the next decoded Record, fetching a new batch from the
// broker when the previous one is exhausted. A record's offset is marked
// (not committed) as Next returns it; Commit commits the marked offsets.
func (s *Source) Next(ctx context.Context) (routingtables.Record, error) {
	for len(s.pending) == 0 {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return routingtables.Record{}, ctx.Err()
		}
		for _, e := range fetches.Errors() {
			s.logger.Error("record source: fetch error",
				zap.String("topic", e.Topic), zap.Int32("partition", e.Partition), zap.Error(e.Err))
		}
		fetches.EachRecord(func(r *kgo.Record) {
			s.pending = append(s.pending, r)
		})
	}

	raw := s.pending[0]
	s.pending = s.pending[1:]

	var rec routingtables.Record
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return routingtables.Record{}, fmt.Errorf("kafka record source: decode offset %d: %w", raw.Offset, err)
	}

	s.client.MarkCommitRecords(raw)
	return rec, nil
}

// IsJoined reports whether this source's consumer group has an active
// partition assignment, for httpserver.SourceStatus.
func (s *Source) IsJoined() bool { return s.joined.Load() }

// Commit flushes marked offsets to the broker. Callers invoke this at
// their chosen cadence (e.g. after each IntervalEnd), mirroring the
// teacher's separate offset-commit goroutine but driven synchronously
// since one collector goroutine owns both the engine and its source.
func (s *Source) Commit(ctx context.Context) error {
	return s.client.CommitMarkedOffsets(ctx)
}

func (s *Source) Close() error {
	s.client.Close()
	return nil
}

var _ recordsource.Source = (*Source)(nil)
