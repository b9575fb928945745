//go:build !wireinject

package di

import (
	"context"

	"catalog-staging/infrastructure/config"
)

// InitializeContainer builds the full dependency graph. Kept in sync
// with the wire.Build declaration in wire.go.
func InitializeContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := ProvideSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := ProvideGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	listeners, err := ProvideListeners(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	manager := ProvideManager(cfg, gateway, sessions, logger, listeners)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		Gateway:  gateway,
		Manager:  manager,
	}, nil
}
