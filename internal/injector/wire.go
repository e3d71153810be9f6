//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/worldsync/internal/config"
)

func InitializeServer(cfg config.Config) (*Server, func(), error) {
	wire.Build(ServerSet, wire.Struct(new(Server), "*"))
	return nil, nil, nil
}

func InitializeClient(cfg config.Config) (*Client, func(), error) {
	wire.Build(ClientSet, wire.Struct(new(Client), "*"))
	return nil, nil, nil
}
