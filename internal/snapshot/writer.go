// Package snapshot archives the engine's reconstructed RIB into Postgres
// for SQL-queryable history, complementing the in-memory view.View the
// engine holds as the canonical, single-owner-accessed RIB (§5). A
// snapshot write never touches the engine or its view beyond reading
// through an already-built view.Iterator; it is purely a downstream sink,
// the same role internal/viewio's file/bus/ascii sinks play.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/metrics"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio/ascii"
)

// Row is one pfx-peer entry to archive.
type Row struct {
	Collector string
	PeerIP    string
	PeerASN   uint32
	Prefix    string
	ASPath    string
	State     view.FieldState
}

// Writer batches Rows into view_snapshots, skipping any row whose content
// hash matches what it wrote for that (collector, peer, prefix) key last
// time — a collector with a quiet RIB between intervals costs one cheap
// in-memory comparison per row instead of a rewritten tuple.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	lastHash map[string][32]byte
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger) *Writer {
	return &Writer{pool: pool, logger: logger, lastHash: make(map[string][32]byte)}
}

// CollectRows walks v's active and inactive pfx-peer entries into Rows
// ready for WriteSnapshot, following the same iteration the ascii sink
// uses but keeping the lifecycle state AllValid collapses away.
func CollectRows(v *view.View[*routingtables.PfxPeerStatus]) []Row {
	var rows []Row
	peerSigs := v.PeerSigMap()
	pathStore := v.PathStore()

	for _, state := range [...]view.FieldState{view.Active, view.Inactive} {
		it := view.NewIterator(v)
		for ok := it.FirstPfx(view.FamilyBoth, view.AllValid); ok; ok = it.NextPfx() {
			pfx := it.CurPfx()
			for ppOK := it.PfxFirstPeer(state); ppOK; ppOK = it.PfxNextPeer() {
				peerID := it.PfxPeerID()
				sig, ok := peerSigs.LookupSig(peerID)
				if !ok {
					continue
				}
				sp, ok := pathStore.Lookup(it.PfxPeerPathID())
				if !ok {
					continue
				}
				rows = append(rows, Row{
					Collector: sig.Collector,
					PeerIP:    sig.PeerIP.String(),
					PeerASN:   sig.PeerASN,
					Prefix:    pfx.String(),
					ASPath:    ascii.FormatPath(sp.SegmentsFor(sig.PeerASN)),
					State:     state,
				})
			}
		}
	}
	return rows
}

// WriteSnapshot upserts rows into view_snapshots at snapshotTime within a
// single transaction, mirroring the batched-transaction shape of the
// teacher's state writer.
func (w *Writer) WriteSnapshot(ctx context.Context, collector string, snapshotTime time.Time, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var written, skipped int
	pending := make(map[string][32]byte, len(rows))
	for _, r := range rows {
		key := r.Collector + "|" + r.PeerIP + "|" + fmt.Sprint(r.PeerASN) + "|" + r.Prefix
		sum := contentHash(r.Collector, r.PeerIP, fmt.Sprint(r.PeerASN), r.Prefix, r.ASPath, fmt.Sprint(uint8(r.State)))
		if prev, ok := w.lastHash[key]; ok && prev == sum {
			skipped++
			continue
		}
		pending[key] = sum

		if _, err := tx.Exec(ctx, `
			INSERT INTO view_snapshots (snapshot_time, collector, peer_ip, peer_asn, prefix, as_path, state, content_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snapshotTime, r.Collector, r.PeerIP, r.PeerASN, r.Prefix, r.ASPath, int16(r.State), sum[:],
		); err != nil {
			return fmt.Errorf("snapshot: insert row: %w", err)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot: commit tx: %w", err)
	}
	for key, sum := range pending {
		w.lastHash[key] = sum
	}

	metrics.SnapshotWriteDuration.WithLabelValues(collector).Observe(time.Since(start).Seconds())
	metrics.SnapshotRowsWrittenTotal.WithLabelValues(collector).Add(float64(written))
	metrics.SnapshotRowsSkippedTotal.WithLabelValues(collector).Add(float64(skipped))
	return nil
}
