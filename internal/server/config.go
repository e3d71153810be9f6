package server

import (
	"fmt"
	"time"

	"github.com/zeusync/worldsync/internal/core/transport"
)

// Config holds authority configuration.
type Config struct {
	// Network settings
	Name          string            `yaml:"name"`
	ListenAddr    string            `yaml:"listen_addr"`
	Transport     transport.Backend `yaml:"transport"`
	MaxClients    int               `yaml:"max_clients"`
	SendQueueSize int               `yaml:"send_queue_size"`

	// Health monitoring
	ClientTimeout time.Duration `yaml:"client_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// World settings
	Level            string            `yaml:"level"`
	Mode             string            `yaml:"mode"`
	LevelOptions     map[string]string `yaml:"level_options"`
	AllowLevelChange bool              `yaml:"allow_level_change"`

	// Gameplay
	PvPEnabled           bool    `yaml:"pvp_enabled"`
	PvPDamageMultiplier  float32 `yaml:"pvp_damage_multiplier"`
	DamageShareThreshold float32 `yaml:"damage_share_threshold"`
	DuplicateDistanceSq  float32 `yaml:"duplicate_distance_sq"`

	// Unreliable packets per second and burst, per client
	UnreliableRate  float64 `yaml:"unreliable_rate"`
	UnreliableBurst int     `yaml:"unreliable_burst"`

	// Optional outer surfaces; empty disables them
	StatusAddr  string `yaml:"status_addr"`
	CapturePath string `yaml:"capture_path"`

	LogLevel string `yaml:"log_level"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		Name:                 "worldsync",
		ListenAddr:           ":13698",
		Transport:            transport.BackendTCP,
		MaxClients:           4,
		SendQueueSize:        256,
		ClientTimeout:        30 * time.Second,
		SweepInterval:        time.Second,
		AllowLevelChange:     true,
		PvPDamageMultiplier:  1,
		DamageShareThreshold: 0.3,
		DuplicateDistanceSq:  0.04,
		UnreliableRate:       120,
		UnreliableBurst:      240,
		LogLevel:             "info",
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidConfig)
	case c.Transport != transport.BackendTCP && c.Transport != transport.BackendQUIC:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	case c.MaxClients <= 0:
		return fmt.Errorf("%w: max_clients must be positive", ErrInvalidConfig)
	case c.ClientTimeout <= 0:
		return fmt.Errorf("%w: client_timeout must be positive", ErrInvalidConfig)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidConfig)
	case c.DamageShareThreshold < 0 || c.DamageShareThreshold > 1:
		return fmt.Errorf("%w: damage_share_threshold must be within [0, 1]", ErrInvalidConfig)
	case c.DuplicateDistanceSq < 0:
		return fmt.Errorf("%w: duplicate_distance_sq must not be negative", ErrInvalidConfig)
	case c.UnreliableRate <= 0 || c.UnreliableBurst <= 0:
		return fmt.Errorf("%w: unreliable_rate and unreliable_burst must be positive", ErrInvalidConfig)
	}
	return nil
}
