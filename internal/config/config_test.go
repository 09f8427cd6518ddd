package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			FetchMaxBytes: 52428800,
			Records:       ConsumerConfig{GroupID: "g1", Topics: []string{"t1"}},
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost/test",
			MaxConns: 10,
			MinConns: 2,
		},
		Engine: EngineConfig{
			BacklogSeconds:     60,
			MaxInactiveSeconds: 3600,
			GCGraceSeconds:     24 * 3600,
			IntervalSeconds:    300,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty brokers")
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestValidate_NoRecordsGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Records.GroupID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty records group_id")
	}
}

func TestValidate_NoRecordsTopics(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Records.Topics = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty records topics")
	}
}

func TestValidate_BacklogSecondsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.BacklogSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for backlog_seconds = 0")
	}
}

func TestValidate_MaxInactiveSecondsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.MaxInactiveSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_inactive_seconds = 0")
	}
}

func TestValidate_IntervalSecondsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.IntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for interval_seconds = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
kafka:
  brokers:
    - "localhost:9092"
  records:
    topics:
      - "t1"
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvEmptyGroupIDFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPVIEW_KAFKA__RECORDS__GROUP_ID", "")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for empty records group_id via env")
	}
}
