// Package config loads bdcompanion settings from defaults, an optional
// .bdcompanion.yaml file and BDCOMPANION_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Peer policies for a second client connecting while one is tracked.
const (
	PeerReplace = "replace"
	PeerReject  = "reject"
)

// Extraction modes.
const (
	ModeRegex  = "regex"
	ModeSyntax = "syntax"
)

// Config represents the complete bdcompanion configuration.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge" mapstructure:"bridge"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Scan    ScanConfig    `yaml:"scan" mapstructure:"scan"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// BridgeConfig configures the endpoint the client companion connects to.
type BridgeConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	PeerPolicy   string        `yaml:"peer_policy" mapstructure:"peer_policy"`     // "replace" or "reject"
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // per-frame write deadline
}

// Addr returns the host:port listen address.
func (b BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// ExtractConfig selects how call sites are located.
type ExtractConfig struct {
	Mode      string `yaml:"mode" mapstructure:"mode"`             // "regex" or "syntax"
	CacheSize int    `yaml:"cache_size" mapstructure:"cache_size"` // documents kept by the action cache
}

// SourceConfig controls how module source received from the client is shown.
type SourceConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`             // where module source files are written
	Formatter string `yaml:"formatter" mapstructure:"formatter"` // command run on the file, e.g. "prettier --write"
	Open      string `yaml:"open" mapstructure:"open"`           // command that opens the file, e.g. "code"
}

// ScanConfig limits workspace scans.
type ScanConfig struct {
	MaxFileSize int `yaml:"max_file_size" mapstructure:"max_file_size"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			PeerPolicy:   PeerReplace,
			WriteTimeout: 10 * time.Second,
		},
		Extract: ExtractConfig{
			Mode:      ModeRegex,
			CacheSize: 256,
		},
		Source: SourceConfig{
			Dir: ".bdcompanion/modules",
		},
		Scan: ScanConfig{
			MaxFileSize: 1_000_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
