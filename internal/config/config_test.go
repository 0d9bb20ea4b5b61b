package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", `
log_level: debug
ingest:
  source: simulator
api:
  alarm_order: desc
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	// Unset fields fall back to defaults.
	if cfg.Monitor.Interval != 5*time.Second {
		t.Fatalf("interval default = %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Cooldown != 60*time.Second {
		t.Fatalf("cooldown default = %s", cfg.Monitor.Cooldown)
	}
	if cfg.API.AlarmOrder != "desc" {
		t.Fatalf("alarm_order = %q", cfg.API.AlarmOrder)
	}
}

func TestLoadJSONAutodetect(t *testing.T) {
	path := writeTemp(t, "cfg.conf", `{"log_level":"warn","ingest":{"source":"simulator"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", "   \n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestValidateKafkaRequiresBrokers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Source = "kafka"
	if err := Validate(cfg); err == nil {
		t.Fatalf("kafka source without brokers must fail validation")
	}
	cfg.Ingest.Kafka = KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "traffic.counts", GroupID: "trafficmon"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Source = "rtsp"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unknown ingest source must fail validation")
	}
}

func TestManagerUpdatePersistsAndSwaps(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	next := DefaultConfig()
	next.LogLevel = "debug"
	if err := m.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if m.Get().LogLevel != "debug" {
		t.Fatalf("active config not swapped")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload saved file: %v", err)
	}
	if reloaded.LogLevel != "debug" {
		t.Fatalf("update was not persisted")
	}
}

func TestManagerNeedsReload(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if needs, err := m.NeedsReload(); err != nil || needs {
		t.Fatalf("fresh manager must not need reload: needs=%v err=%v", needs, err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if needs, err := m.NeedsReload(); err != nil || !needs {
		t.Fatalf("touched file must need reload: needs=%v err=%v", needs, err)
	}

	if _, err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if needs, _ := m.NeedsReload(); needs {
		t.Fatalf("reload must clear the pending change")
	}

	if needs, err := NewStaticManager(nil).NeedsReload(); err != nil || needs {
		t.Fatalf("static manager never needs reload: needs=%v err=%v", needs, err)
	}
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	m := NewStaticManager(nil)
	bad := DefaultConfig()
	bad.API.AlarmOrder = "newest"
	if err := m.Update(bad); err == nil {
		t.Fatalf("invalid config must be rejected")
	}
	if m.Get().API.AlarmOrder != "asc" {
		t.Fatalf("rejected update must leave active config untouched")
	}
}
