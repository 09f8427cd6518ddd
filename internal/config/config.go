// Package config loads the bgpview collector's layered configuration:
// a YAML file overlaid by environment variables.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service    ServiceConfig            `koanf:"service"`
	Kafka      KafkaConfig              `koanf:"kafka"`
	Postgres   PostgresConfig           `koanf:"postgres"`
	Engine     EngineConfig             `koanf:"engine"`
	ViewIO     ViewIOConfig             `koanf:"viewio"`
	Snapshot   SnapshotConfig           `koanf:"snapshot"`
	Collectors map[string]CollectorMeta `koanf:"collectors"`
}

// SnapshotConfig controls internal/snapshot's periodic archive of the
// view into view_snapshots and the partition housekeeping that keeps
// that table bounded.
type SnapshotConfig struct {
	Enabled         bool   `koanf:"enabled"`
	RetentionDays   int    `koanf:"retention_days"`
	Timezone        string `koanf:"timezone"`
	MaintenanceMins int    `koanf:"maintenance_interval_minutes"`
}

// CollectorMeta carries display metadata for a collector name; it never
// drives engine behavior.
type CollectorMeta struct {
	Name     string `koanf:"name"`
	Location string `koanf:"location"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type KafkaConfig struct {
	Brokers       []string       `koanf:"brokers"`
	ClientID      string         `koanf:"client_id"`
	TLS           TLSConfig      `koanf:"tls"`
	SASL          SASLConfig     `koanf:"sasl"`
	Records       ConsumerConfig `koanf:"records"`
	FetchMaxBytes int32          `koanf:"fetch_max_bytes"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type ConsumerConfig struct {
	GroupID string   `koanf:"group_id"`
	Topics  []string `koanf:"topics"`

	// Kind selects the record decoding strategy: "json" (default) reads
	// the routingtables.Record wire format internal/recordsource/jsonl
	// also reads from a file; "raw_bmp" decodes OpenBMP/BMP/BGP frames
	// straight off a goBMP-fed topic via internal/recordsource/bmp.
	Kind            string `koanf:"kind"`
	MaxPayloadBytes int    `koanf:"max_payload_bytes"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

// EngineConfig holds the engine-related settings. Only IntervalSeconds
// reaches the running service, as the period of the view-dump ticker;
// routingtables.New takes no tunables, so the engine keeps its built-in
// backlog, inactivity, wall-clock and GC constants whatever these say.
type EngineConfig struct {
	BacklogSeconds                 int `koanf:"backlog_seconds"`
	MaxInactiveSeconds             int `koanf:"max_inactive_seconds"`
	CollectorWallUpdateFreqSeconds int `koanf:"collector_wall_update_freq_seconds"`
	GCGraceSeconds                 int `koanf:"gc_grace_seconds"`
	IntervalSeconds                int `koanf:"interval_seconds"`
}

// ViewIOConfig controls where the engine's periodic view snapshots go:
// a framed file dump, a message-bus topic, or both.
type ViewIOConfig struct {
	FileDir      string   `koanf:"file_dir"`
	BusTopic     string   `koanf:"bus_topic"`
	BusBrokers   []string `koanf:"bus_brokers"`
	ASCIIPreview bool     `koanf:"ascii_preview"`
	Compress     bool     `koanf:"compress"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPVIEW_KAFKA__BROKERS → kafka.brokers
	if err := k.Load(env.Provider("BGPVIEW_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPVIEW_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpview-collector-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			ClientID:      "bgpview-collector",
			FetchMaxBytes: 52428800,
			Records: ConsumerConfig{
				GroupID:         "bgpview-collector",
				Kind:            "json",
				MaxPayloadBytes: 16 * 1024 * 1024,
			},
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Engine: EngineConfig{
			BacklogSeconds:                 60,
			MaxInactiveSeconds:             3600,
			CollectorWallUpdateFreqSeconds: 10_000,
			GCGraceSeconds:                 24 * 3600,
			IntervalSeconds:                300,
		},
		ViewIO: ViewIOConfig{
			FileDir: "./views",
		},
		Snapshot: SnapshotConfig{
			RetentionDays:   30,
			Timezone:        "UTC",
			MaintenanceMins: 60,
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if len(cfg.Kafka.Records.Topics) == 1 && strings.Contains(cfg.Kafka.Records.Topics[0], ",") {
		cfg.Kafka.Records.Topics = strings.Split(cfg.Kafka.Records.Topics[0], ",")
	}
	if len(cfg.ViewIO.BusBrokers) == 1 && strings.Contains(cfg.ViewIO.BusBrokers[0], ",") {
		cfg.ViewIO.BusBrokers = strings.Split(cfg.ViewIO.BusBrokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Kafka.Records.GroupID == "" {
		return fmt.Errorf("config: kafka.records.group_id is required")
	}
	if len(c.Kafka.Records.Topics) == 0 {
		return fmt.Errorf("config: kafka.records.topics is required")
	}
	if c.Engine.BacklogSeconds <= 0 {
		return fmt.Errorf("config: engine.backlog_seconds must be > 0 (got %d)", c.Engine.BacklogSeconds)
	}
	if c.Engine.MaxInactiveSeconds <= 0 {
		return fmt.Errorf("config: engine.max_inactive_seconds must be > 0 (got %d)", c.Engine.MaxInactiveSeconds)
	}
	if c.Engine.GCGraceSeconds <= 0 {
		return fmt.Errorf("config: engine.gc_grace_seconds must be > 0 (got %d)", c.Engine.GCGraceSeconds)
	}
	if c.Engine.IntervalSeconds <= 0 {
		return fmt.Errorf("config: engine.interval_seconds must be > 0 (got %d)", c.Engine.IntervalSeconds)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Kafka.FetchMaxBytes <= 0 {
		return fmt.Errorf("config: kafka.fetch_max_bytes must be > 0 (got %d)", c.Kafka.FetchMaxBytes)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the Kafka TLS settings. Returns nil if TLS is disabled.
func (k *KafkaConfig) BuildTLSConfig() (*tls.Config, error) {
	if !k.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if k.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(k.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if k.TLS.CertFile != "" && k.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(k.TLS.CertFile, k.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the Kafka SASL settings. Returns nil if SASL is disabled.
func (k *KafkaConfig) BuildSASLMechanism() sasl.Mechanism {
	if !k.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(k.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: k.SASL.Username, Pass: k.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}

// Backlog, MaxInactive and Interval let callers use the engine's
// tunables as time.Duration without repeating the *time.Second
// conversion at every call site.
func (e EngineConfig) Backlog() time.Duration { return time.Duration(e.BacklogSeconds) * time.Second }
func (e EngineConfig) MaxInactive() time.Duration {
	return time.Duration(e.MaxInactiveSeconds) * time.Second
}
func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}
