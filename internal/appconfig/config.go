package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/timelinebridge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Bridge        BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Surface       SurfaceConfig `mapstructure:"surface" yaml:"surface"`
	Chrome        ChromeConfig  `mapstructure:"chrome" yaml:"chrome"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Surface transports.
const (
	TransportWebSocket = "websocket"
	TransportChrome    = "chrome"
)

// BridgeConfig controls the bridge core.
type BridgeConfig struct {
	Namespace        string `mapstructure:"namespace" yaml:"namespace"`
	EvalTimeoutMS    int    `mapstructure:"eval_timeout_ms" yaml:"eval_timeout_ms"`
	RefreshTimeoutMS int    `mapstructure:"refresh_timeout_ms" yaml:"refresh_timeout_ms"`
}

// SurfaceConfig selects and locates the UI surface.
type SurfaceConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	URL       string `mapstructure:"url" yaml:"url"`
	UIDir     string `mapstructure:"ui_dir" yaml:"ui_dir"`
	SeedFile  string `mapstructure:"seed_file" yaml:"seed_file"`
}

// ChromeConfig configures the browser used by the chrome transport.
type ChromeConfig struct {
	Headless bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath string         `mapstructure:"exec_path" yaml:"exec_path"`
	Flags    map[string]any `mapstructure:"flags" yaml:"flags"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	BasePath      string `mapstructure:"base_path" yaml:"base_path"`
	StreamHistory int    `mapstructure:"stream_history" yaml:"stream_history"`
}

// BridgeSettings converts the bridge section to core settings.
func (c Config) BridgeSettings() schema.BridgeConfig {
	return schema.BridgeConfig{
		Namespace:      c.Bridge.Namespace,
		EvalTimeout:    time.Duration(c.Bridge.EvalTimeoutMS) * time.Millisecond,
		RefreshTimeout: time.Duration(c.Bridge.RefreshTimeoutMS) * time.Millisecond,
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Bridge: BridgeConfig{
			Namespace:        schema.DefaultNamespace,
			EvalTimeoutMS:    int(schema.DefaultEvalTimeout / time.Millisecond),
			RefreshTimeoutMS: 0,
		},
		Surface: SurfaceConfig{
			Transport: TransportWebSocket,
			URL:       "",
			UIDir:     "",
			SeedFile:  "",
		},
		Chrome: ChromeConfig{
			Headless: true,
			ExecPath: "",
			Flags:    map[string]any{},
		},
		HTTP: HTTPConfig{
			Addr:          "127.0.0.1:27490",
			BaseURL:       "",
			BasePath:      "",
			StreamHistory: 1000,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".timelinebridge", "config.yaml"), nil
}
