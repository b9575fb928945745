// Package di wires the application together. Providers are written in
// google/wire style; InitializeContainer is the hand-maintained
// injector kept in sync with wire.go.
package di

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"catalog-staging/application/ports"
	"catalog-staging/application/session"
	"catalog-staging/domain/staging"
	"catalog-staging/infrastructure/config"
	dynamostore "catalog-staging/infrastructure/persistence/dynamodb"
	"catalog-staging/infrastructure/persistence/memory"
	"catalog-staging/infrastructure/messaging/eventbridge"
	"catalog-staging/infrastructure/remote"
	"catalog-staging/pkg/errors"
)

// Container holds the application's wired dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Sessions ports.SessionStore
	Gateway  ports.RemoteGateway
	Manager  *session.Manager
}

// ProvideLogger builds the zap logger for the configured environment
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build()
}

// ProvideSessionStore builds the configured session store backend
func ProvideSessionStore(ctx context.Context, cfg *config.Config) (ports.SessionStore, error) {
	switch cfg.SessionStoreKind {
	case config.SessionStoreMemory:
		return memory.NewSessionStore(), nil
	case config.SessionStoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, errors.Wrap(err, "failed to load AWS config")
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamostore.NewSessionStore(client, cfg.SessionTable), nil
	default:
		return nil, errors.NewValidationError("unknown session store: " + cfg.SessionStoreKind)
	}
}

// ProvideGateway builds the connector gateway
func ProvideGateway(cfg *config.Config, logger *zap.Logger) (ports.RemoteGateway, error) {
	return remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.ConnectorBaseURL,
		Timeout: cfg.ConnectorTimeout,
		Logger:  logger,
	})
}

// ProvideListeners builds the store listeners wired into every
// workspace. With an event bus configured, staging events fan out to
// EventBridge.
func ProvideListeners(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]staging.Listener, error) {
	if cfg.EventBusName == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	client := awseventbridge.NewFromConfig(awsCfg)
	publisher := eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	return []staging.Listener{publisher.Forwarder()}, nil
}

// ProvideManager builds the session workspace manager
func ProvideManager(
	cfg *config.Config,
	gateway ports.RemoteGateway,
	sessions ports.SessionStore,
	logger *zap.Logger,
	listeners []staging.Listener,
) *session.Manager {
	return session.NewManager(session.ManagerConfig{
		Gateway:       gateway,
		Sessions:      sessions,
		Logger:        logger,
		MaxHistory:    cfg.MaxHistory,
		AutosaveDelay: cfg.AutosaveDelay,
		Listeners:     listeners,
	})
}
