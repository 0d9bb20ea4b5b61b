package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Monitor  MonitorConfig `json:"monitor" yaml:"monitor"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Publish  PublishConfig `json:"publish" yaml:"publish"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Video    VideoConfig   `json:"video" yaml:"video"`
	API      APIConfig     `json:"api" yaml:"api"`
}

type MonitorConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

type IngestConfig struct {
	Source    string          `json:"source" yaml:"source"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type SimulatorConfig struct {
	Seed int64 `json:"seed" yaml:"seed"`
}

type PublishConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type VideoConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	FPS     int  `json:"fps" yaml:"fps"`
	Width   int  `json:"width" yaml:"width"`
	Height  int  `json:"height" yaml:"height"`
}

type APIConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Addr       string `json:"addr" yaml:"addr"`
	AlarmOrder string `json:"alarm_order" yaml:"alarm_order"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Monitor: MonitorConfig{
			Interval: 5 * time.Second,
			Cooldown: 60 * time.Second,
		},
		Ingest: IngestConfig{
			Source:    "simulator",
			Simulator: SimulatorConfig{Seed: 0},
		},
		Publish: PublishConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "trafficmon",
		},
		Storage: StorageConfig{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "file:trafficmon.db?_pragma=busy_timeout(5000)",
		},
		Video: VideoConfig{Enabled: true, FPS: 10, Width: 640, Height: 480},
		API:   APIConfig{Enabled: true, Addr: ":8080", AlarmOrder: "asc"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = 5 * time.Second
	}
	if cfg.Monitor.Cooldown <= 0 {
		cfg.Monitor.Cooldown = 60 * time.Second
	}
	if cfg.Ingest.Source == "" {
		cfg.Ingest.Source = "simulator"
	}
	if cfg.Publish.SubjectPrefix == "" {
		cfg.Publish.SubjectPrefix = "trafficmon"
	}
	if cfg.Video.FPS <= 0 {
		cfg.Video.FPS = 10
	}
	if cfg.Video.Width <= 0 {
		cfg.Video.Width = 640
	}
	if cfg.Video.Height <= 0 {
		cfg.Video.Height = 480
	}
	if cfg.API.AlarmOrder == "" {
		cfg.API.AlarmOrder = "asc"
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Ingest.Source) {
	case "simulator", "kafka":
	default:
		return fmt.Errorf("ingest.source must be simulator or kafka, got %q", cfg.Ingest.Source)
	}
	if cfg.Ingest.Source == "kafka" {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Publish.Enabled && cfg.Publish.URL == "" {
		return errors.New("publish.url required when publish.enabled is true")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.API.AlarmOrder != "asc" && cfg.API.AlarmOrder != "desc" {
		return errors.New("api.alarm_order must be asc or desc")
	}
	return nil
}

// Manager holds the active config behind an atomic pointer so readers
// never take a lock and never observe a half-updated config.
type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

// NeedsReload reports whether the backing file changed on disk since
// the config was last loaded or saved.
func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
