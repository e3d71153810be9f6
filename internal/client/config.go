package client

import (
	"fmt"
	"time"

	"github.com/zeusync/worldsync/internal/core/transport"
)

// Config holds client configuration.
type Config struct {
	ServerAddr       string            `yaml:"server_addr"`
	Transport        transport.Backend `yaml:"transport"`
	Name             string            `yaml:"name"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	SendQueueSize    int               `yaml:"send_queue_size"`

	// Tick settings
	TickRate      int           `yaml:"tick_rate"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Movement gating
	MinMoveDistance  float32       `yaml:"min_move_distance"`
	MinRotationDeg   float32       `yaml:"min_rotation_deg"`
	PlayerStaleAfter time.Duration `yaml:"player_stale_after"`
	EntityStaleAfter time.Duration `yaml:"entity_stale_after"`

	// Item categories that are despawned locally instead of synchronized
	ExcludedCategories []string `yaml:"excluded_categories"`

	LogLevel string `yaml:"log_level"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:         "127.0.0.1:13698",
		Transport:          transport.BackendTCP,
		Name:               "Player",
		HandshakeTimeout:   10 * time.Second,
		SendQueueSize:      256,
		TickRate:           15,
		SweepInterval:      time.Second,
		MinMoveDistance:    0.01,
		MinRotationDeg:     2,
		PlayerStaleAfter:   250 * time.Millisecond,
		EntityStaleAfter:   time.Second,
		ExcludedCategories: []string{"body", "spell", "wardrobe"},
		LogLevel:           "info",
	}
}

func (c Config) Validate() error {
	switch {
	case c.ServerAddr == "":
		return fmt.Errorf("%w: server_addr is empty", ErrInvalidConfig)
	case c.Transport != transport.BackendTCP && c.Transport != transport.BackendQUIC:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive", ErrInvalidConfig)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep_interval must be positive", ErrInvalidConfig)
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("%w: handshake_timeout must be positive", ErrInvalidConfig)
	case c.MinMoveDistance < 0 || c.MinRotationDeg < 0:
		return fmt.Errorf("%w: movement thresholds must not be negative", ErrInvalidConfig)
	case c.PlayerStaleAfter <= 0 || c.EntityStaleAfter <= 0:
		return fmt.Errorf("%w: stale intervals must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) playerGate() Gate {
	return Gate{MinDistance: c.MinMoveDistance, MinAngleDeg: c.MinRotationDeg, StaleAfter: c.PlayerStaleAfter}
}

func (c Config) entityGate() Gate {
	return Gate{MinDistance: c.MinMoveDistance, MinAngleDeg: c.MinRotationDeg, StaleAfter: c.EntityStaleAfter}
}
