package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgpview/internal/config"
	"github.com/route-beacon/bgpview/internal/db"
	"github.com/route-beacon/bgpview/internal/httpserver"
	"github.com/route-beacon/bgpview/internal/maintenance"
	"github.com/route-beacon/bgpview/internal/metrics"
	"github.com/route-beacon/bgpview/internal/recordsource"
	rsbmp "github.com/route-beacon/bgpview/internal/recordsource/bmp"
	"github.com/route-beacon/bgpview/internal/recordsource/jsonl"
	rskafka "github.com/route-beacon/bgpview/internal/recordsource/kafka"
	"github.com/route-beacon/bgpview/internal/registry"
	"github.com/route-beacon/bgpview/internal/routingtables"
	"github.com/route-beacon/bgpview/internal/snapshot"
	"github.com/route-beacon/bgpview/internal/view"
	"github.com/route-beacon/bgpview/internal/viewio"
	"github.com/route-beacon/bgpview/internal/viewio/ascii"
	"github.com/route-beacon/bgpview/internal/viewio/bus"
	"github.com/route-beacon/bgpview/internal/viewio/file"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpview-collector <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the RIB reconstruction service")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
	fmt.Println("  --records <path>  jsonl file to replay instead of Kafka (serve only)")
}

func parseFlags(args []string) (configPath, logLevel, recordsPath string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		case "--records":
			if i+1 < len(args) {
				recordsPath = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, string, *zap.Logger) {
	configPath, logLevelOverride, recordsPath := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, recordsPath, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, recordsPath, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpview-collector",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	reg := registry.New(pool, logger.Named("registry"))

	v := routingtables.NewView()
	warmStartPeers(ctx, reg, v, logger)

	for name, meta := range cfg.Collectors {
		if err := reg.UpsertCollector(ctx, name, meta.Location); err != nil {
			logger.Warn("failed to upsert collector metadata", zap.String("collector", name), zap.Error(err))
		}
	}

	engine := routingtables.New(v, logger.Named("engine"), nil)

	src, err := openRecordSource(cfg, recordsPath, logger)
	if err != nil {
		logger.Fatal("failed to open record source", zap.Error(err))
	}
	defer src.Close()

	httpServer := httpserver.NewServer(cfg.Service.HTTPListen, pool, asSourceStatus(src), logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	var busWriter *bus.Writer
	if cfg.ViewIO.BusTopic != "" && len(cfg.ViewIO.BusBrokers) > 0 {
		tlsCfg, err := cfg.Kafka.BuildTLSConfig()
		if err != nil {
			logger.Fatal("failed to build bus TLS config", zap.Error(err))
		}
		saslMech := cfg.Kafka.BuildSASLMechanism()
		busWriter, err = bus.NewWriter(cfg.ViewIO.BusBrokers, cfg.ViewIO.BusTopic, cfg.Kafka.ClientID+"-viewio", tlsCfg, saslMech, logger.Named("viewio.bus"))
		if err != nil {
			logger.Fatal("failed to create view bus writer", zap.Error(err))
		}
		defer busWriter.Close()
	}

	var snapWriter *snapshot.Writer
	var partMgr *maintenance.PartitionManager
	if cfg.Snapshot.Enabled {
		snapWriter = snapshot.NewWriter(pool, logger.Named("snapshot"))
		partMgr = maintenance.NewPartitionManager(pool, cfg.Snapshot.RetentionDays, cfg.Snapshot.Timezone, logger.Named("maintenance"))
		if err := partMgr.Run(ctx); err != nil {
			logger.Warn("initial partition maintenance failed", zap.Error(err))
		}
	}

	recordsCh := make(chan routingtables.Record, 256)
	fetchErrCh := make(chan error, 1)
	go func() {
		defer close(recordsCh)
		for {
			rec, err := src.Next(ctx)
			if err != nil {
				if !errors.Is(err, recordsource.ErrEOF) && ctx.Err() == nil {
					fetchErrCh <- err
				}
				return
			}
			select {
			case recordsCh <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(cfg.Engine.Interval())
	defer ticker.Stop()

	var maintTicker *time.Ticker
	var maintCh <-chan time.Time
	if partMgr != nil {
		maintTicker = time.NewTicker(time.Duration(cfg.Snapshot.MaintenanceMins) * time.Minute)
		defer maintTicker.Stop()
		maintCh = maintTicker.C
	}

	logger.Info("collector running",
		zap.Duration("interval", cfg.Engine.Interval()),
		zap.String("view_dir", cfg.ViewIO.FileDir),
	)

runLoop:
	for {
		select {
		case rec, ok := <-recordsCh:
			if !ok {
				logger.Info("record source exhausted")
				break runLoop
			}
			start := time.Now()
			result := engine.ProcessRecord(rec)
			metrics.CollectorProcessingTime.WithLabelValues(metrics.SanitizeCollector(rec.Collector)).Observe(time.Since(start).Seconds())
			if !result.IsOk() {
				logger.Warn("record rejected", zap.String("collector", rec.Collector), zap.String("error", result.Message))
			}

		case <-ticker.C:
			runInterval(ctx, engine, cfg, reg, src, busWriter, snapWriter, logger)

		case <-maintCh:
			if err := partMgr.Run(ctx); err != nil {
				logger.Warn("partition maintenance failed", zap.Error(err))
			}

		case err := <-fetchErrCh:
			logger.Error("record source error", zap.Error(err))
			break runLoop

		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			break runLoop
		}
	}

	runInterval(context.Background(), engine, cfg, reg, src, busWriter, snapWriter, logger)

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	cancel()
	logger.Info("bgpview-collector stopped")
}

// runInterval runs §4.4.6 end-of-interval promotion, dumps the view via
// the configured viewio sinks, reports view-derived metrics, and commits
// the record source's consumed offsets. It only ever runs from the single
// goroutine that owns engine/v, per the concurrency model.
func runInterval(ctx context.Context, engine *routingtables.Engine, cfg *config.Config, reg *registry.Registry, src recordsource.Source, busWriter *bus.Writer, snapWriter *snapshot.Writer, logger *zap.Logger) {
	engine.IntervalEnd()
	v := engine.View()

	reportViewMetrics(v)

	if snapWriter != nil {
		writeSnapshot(ctx, snapWriter, v, logger)
	}

	if cfg.ViewIO.FileDir != "" {
		if err := dumpViewFile(v, cfg.ViewIO.FileDir); err != nil {
			logger.Error("view file dump failed", zap.Error(err))
		}
	}
	if cfg.ViewIO.ASCIIPreview {
		if err := ascii.Write(os.Stdout, v, viewio.Filter{}); err != nil {
			logger.Error("view ascii dump failed", zap.Error(err))
		}
	}
	if busWriter != nil {
		if err := busWriter.Write(ctx, v, viewio.Filter{}); err != nil {
			logger.Error("view bus publish failed", zap.Error(err))
		}
	}

	persistPeers(ctx, reg, v, logger)

	if c, ok := src.(interface{ Commit(context.Context) error }); ok {
		if err := c.Commit(ctx); err != nil {
			logger.Error("record source commit failed", zap.Error(err))
		}
	}
}

// writeSnapshot groups CollectRows' output by collector before calling
// WriteSnapshot, since each call's metrics and row set are scoped to a
// single collector label.
func writeSnapshot(ctx context.Context, w *snapshot.Writer, v *view.View[*routingtables.PfxPeerStatus], logger *zap.Logger) {
	rows := snapshot.CollectRows(v)
	if len(rows) == 0 {
		return
	}

	byCollector := make(map[string][]snapshot.Row)
	for _, r := range rows {
		byCollector[r.Collector] = append(byCollector[r.Collector], r)
	}

	now := time.Now()
	for collector, rs := range byCollector {
		if err := w.WriteSnapshot(ctx, collector, now, rs); err != nil {
			logger.Error("view snapshot write failed", zap.String("collector", collector), zap.Error(err))
		}
	}
}

func dumpViewFile(v *view.View[*routingtables.PfxPeerStatus], dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating view dir: %w", err)
	}
	path := filepath.Join(dir, strconv.FormatUint(uint64(v.GetTime()), 10)+".view")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating view file: %w", err)
	}
	defer f.Close()
	return file.Write(f, v, viewio.Filter{})
}

// reportViewMetrics derives the §6.4 collector/peer gauges from the
// view's own counters rather than from per-record bookkeeping, since the
// view is the single source of truth for current prefix/peer counts.
func reportViewMetrics(v *view.View[*routingtables.PfxPeerStatus]) {
	type collectorTotals struct {
		peers, active int
	}
	totals := make(map[string]*collectorTotals)

	peerSigs := v.PeerSigMap()
	it := view.NewIterator(v)
	for ok := it.FirstPeer(view.AllValid); ok; ok = it.NextPeer() {
		id := it.PeerID()
		sig, ok := peerSigs.LookupSig(id)
		if !ok {
			continue
		}
		collector := metrics.SanitizeCollector(sig.Collector)
		t, ok := totals[collector]
		if !ok {
			t = &collectorTotals{}
			totals[collector] = t
		}
		t.peers++

		pe := it.CurPeerInfo()
		active := pe.State() == view.Active
		if active {
			t.active++
		}

		peerLabel := metrics.SanitizePeer(sig.PeerIP.String())
		metrics.PeerPfxCnt.WithLabelValues(collector, peerLabel, "v4", "active").Set(float64(pe.V4PfxCnt(view.Active)))
		metrics.PeerPfxCnt.WithLabelValues(collector, peerLabel, "v4", "inactive").Set(float64(pe.V4PfxCnt(view.Inactive)))
		metrics.PeerPfxCnt.WithLabelValues(collector, peerLabel, "v6", "active").Set(float64(pe.V6PfxCnt(view.Active)))
		metrics.PeerPfxCnt.WithLabelValues(collector, peerLabel, "v6", "inactive").Set(float64(pe.V6PfxCnt(view.Inactive)))
	}

	for collector, t := range totals {
		metrics.CollectorPeersCnt.WithLabelValues(collector).Set(float64(t.peers))
		metrics.CollectorActivePeersCnt.WithLabelValues(collector).Set(float64(t.active))
	}
}

func persistPeers(ctx context.Context, reg *registry.Registry, v *view.View[*routingtables.PfxPeerStatus], logger *zap.Logger) {
	now := time.Now()
	peerSigs := v.PeerSigMap()
	it := view.NewIterator(v)
	for ok := it.FirstPeer(view.AllValid); ok; ok = it.NextPeer() {
		sig, ok := peerSigs.LookupSig(it.PeerID())
		if !ok {
			continue
		}
		if err := reg.UpsertPeer(ctx, sig.Collector, sig.PeerIP, sig.PeerASN, now); err != nil {
			logger.Warn("failed to persist peer", zap.String("collector", sig.Collector), zap.Error(err))
		}
	}
}

// warmStartPeers pre-registers every peer the registry has on record so a
// restarted process reassigns the same peersig ids in the same order.
func warmStartPeers(ctx context.Context, reg *registry.Registry, v *view.View[*routingtables.PfxPeerStatus], logger *zap.Logger) {
	peers, err := reg.LoadPeers(ctx)
	if err != nil {
		logger.Warn("failed to load peers for warm start", zap.Error(err))
		return
	}
	for _, p := range peers {
		v.AddPeer(p.Collector, p.PeerIP, p.PeerASN)
	}
	logger.Info("warm-started peer registry", zap.Int("peers", len(peers)))
}

func openRecordSource(cfg *config.Config, recordsPath string, logger *zap.Logger) (recordsource.Source, error) {
	if recordsPath != "" {
		f, err := os.Open(recordsPath)
		if err != nil {
			return nil, fmt.Errorf("opening records file: %w", err)
		}
		return jsonl.Open(f), nil
	}

	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("building kafka TLS config: %w", err)
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()

	if cfg.Kafka.Records.Kind == "raw_bmp" {
		return rsbmp.New(
			cfg.Kafka.Brokers, cfg.Kafka.Records.GroupID, cfg.Kafka.Records.Topics,
			cfg.Kafka.ClientID, cfg.Kafka.FetchMaxBytes, cfg.Kafka.Records.MaxPayloadBytes,
			tlsCfg, saslMech, logger.Named("bmp.records"),
		)
	}

	return rskafka.New(
		cfg.Kafka.Brokers, cfg.Kafka.Records.GroupID, cfg.Kafka.Records.Topics,
		cfg.Kafka.ClientID, cfg.Kafka.FetchMaxBytes, tlsCfg, saslMech, logger.Named("kafka.records"),
	)
}

// asSourceStatus adapts a recordsource.Source to httpserver.SourceStatus.
// jsonl.Source has no partition concept, so it always reports joined.
func asSourceStatus(src recordsource.Source) httpserver.SourceStatus {
	if s, ok := src.(interface{ IsJoined() bool }); ok {
		return s
	}
	return alwaysJoined{}
}

type alwaysJoined struct{}

func (alwaysJoined) IsJoined() bool { return true }

func runMigrate() {
	cfg, _, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
