// Package ports declares the interfaces the application layer needs
// from infrastructure. Implementations live under infrastructure and
// are bound in the dependency injection container.
package ports

import (
	"context"

	"catalog-staging/domain/hierarchy"
	"catalog-staging/domain/staging"
)

// CommittedBatch records one successful commit for the history feed
type CommittedBatch struct {
	BatchID            string                    `json:"batch_id"`
	SessionID          string                    `json:"session_id"`
	UserID             string                    `json:"user_id,omitempty"`
	CommittedAt        string                    `json:"committed_at"`
	ChangesProcessed   int                       `json:"changes_processed"`
	AdditionsProcessed int                       `json:"additions_processed"`
	DeletionsProcessed int                       `json:"deletions_processed"`
	AdditionDetails    []staging.AdditionDetail  `json:"addition_details,omitempty"`
	DeletionDetails    []staging.DeletionDetail  `json:"deletion_details,omitempty"`
}

// SessionStore persists per-session staging state: the working
// snapshot plus the log of committed batches
type SessionStore interface {
	staging.SnapshotStore

	AppendHistory(ctx context.Context, sessionID string, batch CommittedBatch) error
	History(ctx context.Context, sessionID string, limit int) ([]CommittedBatch, error)
}

// RemoteGateway talks to the connector service that fronts the
// catalog backend
type RemoteGateway interface {
	FetchHierarchy(ctx context.Context) (*hierarchy.Tree, error)
	ValidateChanges(ctx context.Context, payload staging.CommitPayload) (*staging.ValidationResult, error)
	CommitChanges(ctx context.Context, payload staging.CommitPayload) (*staging.CommitResult, error)
}

// EventBus publishes staging events to external consumers
type EventBus interface {
	Publish(ctx context.Context, events []staging.Event) error
}
