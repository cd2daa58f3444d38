// Package ovsconfig loads the YAML startup configuration for the
// datapath process, in the same Load-and-default-fill shape this
// corpus's tzsp_server config loader uses.
package ovsconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level datapath configuration.
type Config struct {
	Pipelines PipelineConfig `yaml:"pipelines"`
	Vports    []VportConfig  `yaml:"vports"`
	Control   ControlConfig  `yaml:"control"`
	Logging   LoggingConfig  `yaml:"logging"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// PipelineConfig sizes the per-core forwarding loops.
type PipelineConfig struct {
	NumPipelines       int `yaml:"num_pipelines"`
	FlowTableSize      int `yaml:"flow_table_size"`
	RingSize           int `yaml:"ring_size"`
	BurstSize          int `yaml:"burst_size"`
	PollIntervalMicros int `yaml:"poll_interval_micros"`
}

// VportConfig describes one statically-provisioned vport. AutoID
// requests that the registry allocate the next free id within the
// type's range instead of claiming ID exactly: id 0 is a legitimate
// Phy-range id, so "unset" cannot be expressed by ID alone.
type VportConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"` // phy, client, kni, veth, vhost, memnic, bridge, vswitchd
	Device string `yaml:"device"`
	ID     uint32 `yaml:"id"`
	AutoID bool   `yaml:"auto_id"`
}

// ControlConfig holds control-channel settings. cmd/ovsdp-vswitchd does
// not read them: it builds every control ring at
// control.DefaultRingCapacity.
type ControlConfig struct {
	SocketPath   string `yaml:"socket_path"`
	RingCapacity int    `yaml:"ring_capacity"`
}

// LoggingConfig mirrors ovslog.Config's fields for YAML decoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses path, filling in the same defaults a fresh
// datapath install needs to come up without a hand-tuned config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ovsconfig: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ovsconfig: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pipelines.NumPipelines == 0 {
		cfg.Pipelines.NumPipelines = 1
	}
	if cfg.Pipelines.FlowTableSize == 0 {
		cfg.Pipelines.FlowTableSize = 8192
	}
	if cfg.Pipelines.RingSize == 0 {
		cfg.Pipelines.RingSize = 2048
	}
	if cfg.Pipelines.BurstSize == 0 {
		cfg.Pipelines.BurstSize = 32
	}
	if cfg.Pipelines.PollIntervalMicros == 0 {
		cfg.Pipelines.PollIntervalMicros = 100
	}
	if cfg.Control.RingCapacity == 0 {
		cfg.Control.RingCapacity = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9100"
	}
}
