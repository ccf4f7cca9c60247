package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/mqtt"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/opcua"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/store"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

type Config struct {
	OPCUA     opcua.Config    `yaml:"opcua"`
	MQTT      mqtt.Config     `yaml:"mqtt"`
	Store     store.Config    `yaml:"store"`
	Relay     RelayConfig     `yaml:"relay"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type RelayConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type IngestConfig struct {
	MaxAttempts int               `yaml:"max_attempts"`
	RetryDelay  time.Duration     `yaml:"retry_delay"`
	Queue       ports.QueuePolicy `yaml:",inline"`
}

type BroadcastConfig struct {
	Addr         string        `yaml:"addr"`
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SnapshotSize int           `yaml:"snapshot_size"`
}

type SimulatorConfig struct {
	MachineID      string        `yaml:"machine_id"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	ConnectRetry   time.Duration `yaml:"connect_retry"`
	TempMin        float64       `yaml:"temp_min"`
	TempMax        float64       `yaml:"temp_max"`
	PressMin       float64       `yaml:"press_min"`
	PressMax       float64       `yaml:"press_max"`
}

// MetricsConfig holds one listen address per long-running command so that
// several commands can run on one host.
type MetricsConfig struct {
	RelayAddr     string `yaml:"relay_addr"`
	IngestAddr    string `yaml:"ingest_addr"`
	BroadcastAddr string `yaml:"broadcast_addr"`
	SimulateAddr  string `yaml:"simulate_addr"`
}

// Addr returns the metrics address for command, or "" for an unknown one.
func (m MetricsConfig) Addr(command string) string {
	switch command {
	case "relay":
		return m.RelayAddr
	case "ingest":
		return m.IngestAddr
	case "broadcast":
		return m.BroadcastAddr
	case "simulate":
		return m.SimulateAddr
	default:
		return ""
	}
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML from path, fills defaults and validates. Sections a
// subcommand does not use still get their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RequireStore reports whether the store section is complete; only the
// ingest and broadcast services need it.
func (c *Config) RequireStore() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}

// Default returns a configuration with every default applied and no store DSN.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Relay.PollInterval <= 0 {
		c.Relay.PollInterval = 5 * time.Second
	}
	if c.Relay.ReconnectInterval <= 0 {
		c.Relay.ReconnectInterval = 5 * time.Second
	}
	if c.Ingest.MaxAttempts <= 0 {
		c.Ingest.MaxAttempts = 15
	}
	if c.Ingest.RetryDelay <= 0 {
		c.Ingest.RetryDelay = 10 * time.Second
	}
	if c.Ingest.Queue.MaxQueueLen <= 0 {
		c.Ingest.Queue.MaxQueueLen = 1024
	}
	if c.Ingest.Queue.IdleSleep <= 0 {
		c.Ingest.Queue.IdleSleep = 5 * time.Millisecond
	}
	if c.Ingest.Queue.OnQueueFull == "" {
		c.Ingest.Queue.OnQueueFull = "block"
	}
	if c.Broadcast.Addr == "" {
		c.Broadcast.Addr = ":8000"
	}
	if c.Broadcast.Path == "" {
		c.Broadcast.Path = "/ws"
	}
	if c.Broadcast.PollInterval <= 0 {
		c.Broadcast.PollInterval = 100 * time.Millisecond
	}
	if c.Broadcast.SnapshotSize <= 0 {
		c.Broadcast.SnapshotSize = 10
	}
	if c.Simulator.MachineID == "" {
		c.Simulator.MachineID = "Machine2"
	}
	if c.Simulator.SampleInterval <= 0 {
		c.Simulator.SampleInterval = 15 * time.Second
	}
	if c.Simulator.ConnectRetry <= 0 {
		c.Simulator.ConnectRetry = 10 * time.Second
	}
	if c.Simulator.TempMin == 0 && c.Simulator.TempMax == 0 {
		c.Simulator.TempMin, c.Simulator.TempMax = 20.0, 35.0
	}
	if c.Simulator.PressMin == 0 && c.Simulator.PressMax == 0 {
		c.Simulator.PressMin, c.Simulator.PressMax = 995.0, 1025.0
	}
	if c.Metrics.RelayAddr == "" {
		c.Metrics.RelayAddr = ":9100"
	}
	if c.Metrics.IngestAddr == "" {
		c.Metrics.IngestAddr = ":9101"
	}
	if c.Metrics.BroadcastAddr == "" {
		c.Metrics.BroadcastAddr = ":9102"
	}
	if c.Metrics.SimulateAddr == "" {
		c.Metrics.SimulateAddr = ":9103"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	c.OPCUA.ApplyDefaults()
	c.MQTT.ApplyDefaults("")
	c.Store.ApplyDefaults()
}

func (c *Config) validate() error {
	if err := c.OPCUA.Validate(); err != nil {
		return fmt.Errorf("opcua config: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	if c.Store.ConnString != "" {
		if err := c.Store.Validate(); err != nil {
			return fmt.Errorf("store config: %w", err)
		}
	}
	switch c.Ingest.Queue.OnQueueFull {
	case "block", "drop":
	default:
		return fmt.Errorf("ingest.on_queue_full must be block or drop, got %q", c.Ingest.Queue.OnQueueFull)
	}
	if _, err := domain.MachineByID(c.Simulator.MachineID); err != nil {
		return fmt.Errorf("simulator config: %w", err)
	}
	if c.Simulator.TempMin > c.Simulator.TempMax || c.Simulator.PressMin > c.Simulator.PressMax {
		return fmt.Errorf("simulator ranges must have min <= max")
	}
	seen := make(map[string]string, 4)
	for _, cmd := range []string{"relay", "ingest", "broadcast", "simulate"} {
		addr := c.Metrics.Addr(cmd)
		if other, dup := seen[addr]; dup {
			return fmt.Errorf("metrics: %s and %s both listen on %q", other, cmd, addr)
		}
		seen[addr] = cmd
	}
	return nil
}
