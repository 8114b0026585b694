package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPort indicates a listen port outside 1-65535
	ErrInvalidPort = errors.New("invalid bridge port")

	// ErrInvalidPeerPolicy indicates an unknown second-peer policy
	ErrInvalidPeerPolicy = errors.New("invalid peer policy")

	// ErrInvalidMode indicates an unknown extraction mode
	ErrInvalidMode = errors.New("invalid extract mode")

	// ErrInvalidLevel indicates an unknown log level
	ErrInvalidLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is usable.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Bridge.Port < 1 || cfg.Bridge.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Bridge.Port))
	}
	switch strings.ToLower(cfg.Bridge.PeerPolicy) {
	case PeerReplace, PeerReject:
	default:
		errs = append(errs, fmt.Errorf("%w: must be '%s' or '%s', got '%s'", ErrInvalidPeerPolicy, PeerReplace, PeerReject, cfg.Bridge.PeerPolicy))
	}
	if cfg.Bridge.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("bridge write_timeout must not be negative, got %s", cfg.Bridge.WriteTimeout))
	}

	switch strings.ToLower(cfg.Extract.Mode) {
	case ModeRegex, ModeSyntax:
	default:
		errs = append(errs, fmt.Errorf("%w: must be '%s' or '%s', got '%s'", ErrInvalidMode, ModeRegex, ModeSyntax, cfg.Extract.Mode))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level))
	}

	return errors.Join(errs...)
}
