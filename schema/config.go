package schema

import (
	"strings"
	"time"
)

// BridgeConfig defines bridge behavior.
type BridgeConfig struct {
	// Namespace is the global object on the surface exposing the command API.
	Namespace string
	// EvalTimeout bounds each evaluating call.
	EvalTimeout time.Duration
	// RefreshTimeout force-resets a refresh that was never answered. Zero
	// keeps the refresh pending until the surface responds.
	RefreshTimeout time.Duration
}

// DefaultNamespace is the surface object holding the command API.
const DefaultNamespace = "timelineApi"

// DefaultEvalTimeout bounds evaluating calls.
const DefaultEvalTimeout = 2000 * time.Millisecond

// NormalizeBridgeConfig applies defaults and validates the config.
func NormalizeBridgeConfig(cfg BridgeConfig) (BridgeConfig, error) {
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if err := ValidateNamespace(cfg.Namespace); err != nil {
		return BridgeConfig{}, err
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = DefaultEvalTimeout
	}
	if cfg.RefreshTimeout < 0 {
		cfg.RefreshTimeout = 0
	}
	return cfg, nil
}
