package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldsync/internal/client"
	"github.com/zeusync/worldsync/internal/core/transport"
	"github.com/zeusync/worldsync/internal/server"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
server:
  name: arena
  transport: quic
  max_clients: 8
  client_timeout: 45s
  pvp_enabled: true
  level_options:
    difficulty: hard
client:
  name: Ada
  tick_rate: 30
  excluded_categories: [spell]
`))
	require.NoError(t, err)

	assert.Equal(t, "arena", cfg.Server.Name)
	assert.Equal(t, transport.BackendQUIC, cfg.Server.Transport)
	assert.Equal(t, 8, cfg.Server.MaxClients)
	assert.Equal(t, 45*time.Second, cfg.Server.ClientTimeout)
	assert.True(t, cfg.Server.PvPEnabled)
	assert.Equal(t, map[string]string{"difficulty": "hard"}, cfg.Server.LevelOptions)
	assert.Equal(t, ":13698", cfg.Server.ListenAddr, "unset keys keep defaults")

	assert.Equal(t, "Ada", cfg.Client.Name)
	assert.Equal(t, 30, cfg.Client.TickRate)
	assert.Equal(t, []string{"spell"}, cfg.Client.ExcludedCategories)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.PlayerStaleAfter)

	assert.NoError(t, cfg.Validate())
}

func TestDecodeEmptyYieldsDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("server:\n  max_player: 3\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "worldsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  max_clients: 2\n"), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Server.MaxClients)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.MaxClients = 0
	cfg.Client.TickRate = 0
	err := cfg.Validate()
	assert.ErrorIs(t, err, server.ErrInvalidConfig)
	assert.ErrorIs(t, err, client.ErrInvalidConfig)
}
