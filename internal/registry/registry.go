// Package registry persists collector and peer metadata in Postgres. It
// is explicitly NOT view state: the View and RIBEngine hold the live,
// in-memory routing picture, while the registry only remembers display
// metadata and the (collector, peer) identities seen historically so a
// fresh process can warm-start its peersig.Map instead of rediscovering
// everything from scratch.
package registry

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Registry struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(pool *pgxpool.Pool, logger *zap.Logger) *Registry {
	return &Registry{pool: pool, logger: logger}
}

// Ping satisfies httpserver.DBChecker.
func (r *Registry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// UpsertCollector records a collector's display metadata and bumps its
// last_seen timestamp.
func (r *Registry) UpsertCollector(ctx context.Context, name, location string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO collectors (name, location, first_seen, last_seen)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			location  = COALESCE(NULLIF($2, ''), collectors.location),
			last_seen = now()`,
		name, location,
	)
	if err != nil {
		return fmt.Errorf("upsert collector %s: %w", name, err)
	}
	return nil
}

// UpsertPeer records that (collector, peerIP, peerASN) was seen at ts and
// bumps its last_seen timestamp.
func (r *Registry) UpsertPeer(ctx context.Context, collector string, peerIP netip.Addr, peerASN uint32, ts time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO collector_peers (collector, peer_ip, peer_asn, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collector, peer_ip, peer_asn) DO UPDATE SET
			last_seen = GREATEST(collector_peers.last_seen, EXCLUDED.last_seen)`,
		collector, peerIP.String(), peerASN, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert peer %s/%s/AS%d: %w", collector, peerIP, peerASN, err)
	}
	return nil
}

// PeerRecord is one historical (collector, peer) identity, used to
// warm-start a peersig.Map's id assignment so restarts don't reshuffle
// ids a downstream consumer may have cached.
type PeerRecord struct {
	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32
}

// LoadPeers returns every known (collector, peer) identity, ordered by
// first_seen so the caller can replay GetOrCreate calls in the order ids
// were originally assigned.
func (r *Registry) LoadPeers(ctx context.Context) ([]PeerRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT collector, peer_ip, peer_asn
		FROM collector_peers
		ORDER BY first_seen ASC`)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	defer rows.Close()

	var out []PeerRecord
	for rows.Next() {
		var collector, ipStr string
		var asn uint32
		if err := rows.Scan(&collector, &ipStr, &asn); err != nil {
			return nil, fmt.Errorf("scan peer row: %w", err)
		}
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			r.logger.Warn("registry: dropping peer row with unparseable ip",
				zap.String("collector", collector), zap.String("ip", ipStr))
			continue
		}
		out = append(out, PeerRecord{Collector: collector, PeerIP: ip, PeerASN: asn})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer rows: %w", err)
	}
	return out, nil
}

// CollectorRecord is a collector's stored display metadata.
type CollectorRecord struct {
	Name     string
	Location string
}

// LoadCollectors returns every known collector's metadata.
func (r *Registry) LoadCollectors(ctx context.Context) ([]CollectorRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, location FROM collectors ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("load collectors: %w", err)
	}
	defer rows.Close()

	var out []CollectorRecord
	for rows.Next() {
		var rec CollectorRecord
		if err := rows.Scan(&rec.Name, &rec.Location); err != nil {
			return nil, fmt.Errorf("scan collector row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collector rows: %w", err)
	}
	return out, nil
}
