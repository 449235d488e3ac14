package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/solara-labs/solara-chain/pkg/types"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. These settings can
// vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network types.NetID `json:"network"`
	DataDir string      `json:"datadir"`

	// Workers is the stateless-validation worker pool width.
	// Zero means one worker per CPU.
	Workers int `json:"workers"`

	// Logging
	Log LogConfig `json:"log"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Default returns the default node configuration for the given network.
func Default(network types.NetID) *Config {
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Workers: 0,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultDataDir returns the platform-specific default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".solara"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Solara")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Solara")
	default:
		return filepath.Join(home, ".solara")
	}
}

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != types.NetMainnet && cfg.Network != types.NetTestnet {
		return fmt.Errorf("network must be mainnet or testnet")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	return nil
}
