//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"catalog-staging/infrastructure/config"
)

// InitializeContainer builds the full dependency graph via wire
func InitializeContainer(ctx context.Context) (*Container, error) {
	wire.Build(
		config.LoadConfig,
		ProvideLogger,
		ProvideSessionStore,
		ProvideGateway,
		ProvideListeners,
		ProvideManager,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil
}
