// Package metrics holds the process-wide Prometheus collectors for the
// bgpview collector daemon, keyed the way §6.4's dotted metric schema
// names them (metric_prefix.plugin.collector[.peer].metric) but exposed
// as labeled vectors rather than literal dotted strings, since that's
// how this process's scrape endpoint works.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SanitizeCollector replaces the two characters the dotted key schema
// reserves as separators: "." becomes "-", "*" becomes "_".
func SanitizeCollector(name string) string {
	name = strings.ReplaceAll(name, ".", "-")
	name = strings.ReplaceAll(name, "*", "_")
	return name
}

// SanitizePeer applies the same substitution to a peer label (an IP
// address string, which never contains "." conflicts for IPv6 but does
// for IPv4).
func SanitizePeer(name string) string {
	return SanitizeCollector(name)
}

var (
	CollectorStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_status",
			Help: "Collector FSM-derived status: 0=unknown, 1=up, 2=down.",
		},
		[]string{"collector"},
	)

	CollectorPeersCnt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_peers_cnt",
			Help: "Peers known to a collector.",
		},
		[]string{"collector"},
	)

	CollectorActivePeersCnt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_active_peers_cnt",
			Help: "Peers in the Established/Active state for a collector.",
		},
		[]string{"collector"},
	)

	CollectorActivePeerAsnsCnt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_active_peer_asns_cnt",
			Help: "Distinct peer ASNs among a collector's active peers.",
		},
		[]string{"collector"},
	)

	CollectorProcessingTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_collector_processing_time_seconds",
			Help:    "Wall time spent processing one interval's worth of records.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collector"},
	)

	CollectorRealtimeDelay = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_realtime_delay_seconds",
			Help: "wall_time_last minus bgp_time_last for a collector.",
		},
		[]string{"collector"},
	)

	// CollectorArrivalDelay is a supplemented metric: the original
	// routingtables_metrics.c emits this and the distillation dropped it.
	CollectorArrivalDelay = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_collector_arrival_delay_seconds",
			Help: "Wall clock minus BGP time at the last record processed.",
		},
		[]string{"collector"},
	)

	CollectorValidRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_collector_valid_records_total",
			Help: "Records accepted per collector.",
		},
		[]string{"collector"},
	)

	CollectorCorruptedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_collector_corrupted_records_total",
			Help: "Records rejected as corrupted per collector.",
		},
		[]string{"collector"},
	)

	CollectorEmptyRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_collector_empty_records_total",
			Help: "Records skipped as filtered/empty/out-of-interval per collector.",
		},
		[]string{"collector"},
	)

	PeerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_peer_status",
			Help: "Peer FSM state, as routingtables.FSMState.",
		},
		[]string{"collector", "peer"},
	)

	PeerPfxCnt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_peer_pfx_cnt",
			Help: "Prefix count owned by a peer, by family and state.",
		},
		[]string{"collector", "peer", "family", "state"},
	)

	PeerOriginAsnsCnt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpview_peer_origin_asns_cnt",
			Help: "Distinct origin ASNs announced by a peer.",
		},
		[]string{"collector", "peer"},
	)

	PeerAnnouncedUniquePfxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_peer_announced_unique_pfx_total",
			Help: "Unique prefixes a peer has announced, by family.",
		},
		[]string{"collector", "peer", "family"},
	)

	PeerWithdrawnUniquePfxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_peer_withdrawn_unique_pfx_total",
			Help: "Unique prefixes a peer has withdrawn, by family.",
		},
		[]string{"collector", "peer", "family"},
	)

	PeerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_peer_messages_total",
			Help: "Messages processed for a peer, by kind (rib/announcement/withdrawal/state).",
		},
		[]string{"collector", "peer", "kind"},
	)

	PeerRibPositiveMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_peer_rib_positive_mismatches_total",
			Help: "Promotions that deactivated a pfx-peer the UC never referenced as active.",
		},
		[]string{"collector", "peer"},
	)

	PeerRibNegativeMismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_peer_rib_negative_mismatches_total",
			Help: "Promotions that activated a pfx-peer the backlog window had presumed dead.",
		},
		[]string{"collector", "peer"},
	)

	SnapshotWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_snapshot_write_duration_seconds",
			Help:    "Time spent writing one view snapshot batch to view_snapshots.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collector"},
	)

	SnapshotRowsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_snapshot_rows_written_total",
			Help: "Rows upserted into view_snapshots, after content-hash dedup.",
		},
		[]string{"collector"},
	)

	SnapshotRowsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_snapshot_rows_skipped_total",
			Help: "Rows skipped because their content hash matched the last write.",
		},
		[]string{"collector"},
	)
)

var registerOnce sync.Once

// Register registers every collector in this package with the default
// Prometheus registry. Safe to call more than once; only the first call
// registers anything.
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		CollectorStatus,
		CollectorPeersCnt,
		CollectorActivePeersCnt,
		CollectorActivePeerAsnsCnt,
		CollectorProcessingTime,
		CollectorRealtimeDelay,
		CollectorArrivalDelay,
		CollectorValidRecordsTotal,
		CollectorCorruptedRecordsTotal,
		CollectorEmptyRecordsTotal,
		PeerStatus,
		PeerPfxCnt,
		PeerOriginAsnsCnt,
		PeerAnnouncedUniquePfxTotal,
		PeerWithdrawnUniquePfxTotal,
		PeerMessagesTotal,
		PeerRibPositiveMismatchesTotal,
		PeerRibNegativeMismatchesTotal,
		SnapshotWriteDuration,
		SnapshotRowsWrittenTotal,
		SnapshotRowsSkippedTotal,
	)
}
