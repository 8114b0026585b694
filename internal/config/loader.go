package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the workspace root.
const FileName = ".bdcompanion.yaml"

// Loader reads configuration for one workspace.
type Loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a loader for rootDir. If configFile is non-empty it is
// read instead of rootDir/.bdcompanion.yaml and must exist.
func NewLoader(rootDir, configFile string) *Loader {
	return &Loader{rootDir: rootDir, configFile: configFile}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (BDCOMPANION_*)
// 2. Config file
// 3. Default values
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
	}

	// BDCOMPANION_BRIDGE_PORT overrides bridge.port and so on.
	v.SetEnvPrefix("BDCOMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Parse reads YAML config content on top of the defaults, ignoring the
// environment, and validates the result.
func Parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Bridge.PeerPolicy = strings.ToLower(cfg.Bridge.PeerPolicy)
	cfg.Extract.Mode = strings.ToLower(cfg.Extract.Mode)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var keys = []string{
	"bridge.host",
	"bridge.port",
	"bridge.peer_policy",
	"bridge.write_timeout",
	"extract.mode",
	"extract.cache_size",
	"source.dir",
	"source.formatter",
	"source.open",
	"scan.max_file_size",
	"log.level",
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("bridge.host", d.Bridge.Host)
	v.SetDefault("bridge.port", d.Bridge.Port)
	v.SetDefault("bridge.peer_policy", d.Bridge.PeerPolicy)
	v.SetDefault("bridge.write_timeout", d.Bridge.WriteTimeout)

	v.SetDefault("extract.mode", d.Extract.Mode)
	v.SetDefault("extract.cache_size", d.Extract.CacheSize)

	v.SetDefault("source.dir", d.Source.Dir)
	v.SetDefault("source.formatter", d.Source.Formatter)
	v.SetDefault("source.open", d.Source.Open)

	v.SetDefault("scan.max_file_size", d.Scan.MaxFileSize)

	v.SetDefault("log.level", d.Log.Level)
}

// DefaultYAML renders the defaults as a commented configuration file body.
func DefaultYAML() string {
	d := Default()
	return fmt.Sprintf(`bridge:
  host: %s
  port: %d
  # replace: a new client connection takes over; reject: keep the first one
  peer_policy: %s
  write_timeout: %s
extract:
  # regex or syntax (tree-sitter, JS/TS only)
  mode: %s
  cache_size: %d
source:
  dir: %s
  # formatter: prettier --write
  # open: code
scan:
  max_file_size: %d
log:
  level: %s`,
		d.Bridge.Host, d.Bridge.Port, d.Bridge.PeerPolicy, d.Bridge.WriteTimeout,
		d.Extract.Mode, d.Extract.CacheSize,
		d.Source.Dir,
		d.Scan.MaxFileSize,
		d.Log.Level)
}
