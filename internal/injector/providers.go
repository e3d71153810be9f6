package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/worldsync/internal/client"
	"github.com/zeusync/worldsync/internal/config"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/server"
)

// Server bundles what cmd/server needs.
type Server struct {
	Authority *server.Authority
	Logger    log.Log
}

// Client bundles what cmd/client needs before dialing.
type Client struct {
	Config client.Config
	Logger log.Log
}

// LogLevel is the configured verbosity of the binary being assembled.
type LogLevel string

// ProvideLogger builds the process logger. The cleanup flushes it.
func ProvideLogger(level LogLevel) (*log.Logger, func(), error) {
	lvl, err := log.ParseLevel(string(level))
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(lvl)
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideServerConfig(cfg config.Config) server.Config { return cfg.Server }

func ProvideClientConfig(cfg config.Config) client.Config { return cfg.Client }

func ProvideServerLogLevel(cfg server.Config) LogLevel { return LogLevel(cfg.LogLevel) }

func ProvideClientLogLevel(cfg client.Config) LogLevel { return LogLevel(cfg.LogLevel) }

var LoggerSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
)

var ServerSet = wire.NewSet(
	ProvideServerConfig,
	ProvideServerLogLevel,
	LoggerSet,
	server.NewAuthority,
)

var ClientSet = wire.NewSet(
	ProvideClientConfig,
	ProvideClientLogLevel,
	LoggerSet,
)
