// Package commit drives the validate/confirm/submit flow that moves
// staged changes to the connector.
package commit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog-staging/application/ports"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/errors"
)

// State names the coordinator's position in the commit flow
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateConfirmingWarning State = "confirming_warnings"
	StateSubmitting        State = "submitting"
)

// ConfirmFunc decides whether a commit proceeds despite warnings. It
// is consulted once per commit attempt that produced warnings.
type ConfirmFunc func(warnings []string) bool

// ConfirmAll proceeds past any warnings
func ConfirmAll(_ []string) bool { return true }

// DeclineAll aborts on any warning
func DeclineAll(_ []string) bool { return false }

// Coordinator runs commits for one staging session. Only one commit
// may be in flight at a time; concurrent attempts are rejected with a
// conflict error while pending changes stay untouched.
type Coordinator struct {
	mu        sync.Mutex
	state     State
	store     *staging.Store
	gateway   ports.RemoteGateway
	sessions  ports.SessionStore
	sessionID string
	logger    *zap.Logger
}

// Config configures a commit coordinator
type Config struct {
	Store     *staging.Store
	Gateway   ports.RemoteGateway
	Sessions  ports.SessionStore
	SessionID string
	Logger    *zap.Logger
}

// NewCoordinator creates a coordinator over a staging store
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		state:     StateIdle,
		store:     cfg.Store,
		gateway:   cfg.Gateway,
		sessions:  cfg.Sessions,
		sessionID: cfg.SessionID,
		logger:    logger,
	}
}

// State returns the coordinator's current position in the flow
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Validate sends the pending payload to the connector for a dry run.
// Transport failures never surface as errors; they come back as an
// invalid result carrying the failure message, so callers render the
// outcome the same way either path.
func (c *Coordinator) Validate(ctx context.Context) *staging.ValidationResult {
	payload := c.store.PrepareChangesForCommit()

	result, err := c.gateway.ValidateChanges(ctx, payload)
	if err != nil {
		c.logger.Warn("validation request failed", zap.Error(err))
		return &staging.ValidationResult{
			Valid:    false,
			Errors:   []string{err.Error()},
			Warnings: []string{},
		}
	}
	return result
}

// Commit runs the full flow: persist a snapshot, validate, confirm
// warnings, submit, then reconcile local state with the result. On any
// failure the pending changes are retained so the admin can retry.
func (c *Coordinator) Commit(ctx context.Context, confirm ConfirmFunc) (*staging.CommitResult, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.finish()

	// staged work survives a crash mid-commit
	c.store.Flush(ctx)

	c.setState(StateValidating)
	validation := c.Validate(ctx)
	if !validation.Valid {
		return &staging.CommitResult{Success: false, Errors: validation.Errors}, nil
	}

	if len(validation.Warnings) > 0 {
		c.setState(StateConfirmingWarning)
		if confirm == nil || !confirm(validation.Warnings) {
			return &staging.CommitResult{
				Success: false,
				Errors:  []string{"User cancelled due to warnings"},
			}, nil
		}
	}

	c.setState(StateSubmitting)
	payload := c.store.PrepareChangesForCommit()
	result, err := c.gateway.CommitChanges(ctx, payload)
	if err != nil {
		c.logger.Error("commit request failed", zap.Error(err))
		c.store.Flush(ctx)
		return &staging.CommitResult{Success: false, Errors: []string{err.Error()}}, nil
	}

	if !result.Success {
		c.store.Flush(ctx)
		return result, nil
	}

	c.applyResult(ctx, result)
	return result, nil
}

// applyResult reconciles local state after a successful commit:
// staged deletions are applied to the tree, temp ids are swapped for
// server-assigned ids, pending state is cleared and the batch is
// logged to the session history.
func (c *Coordinator) applyResult(ctx context.Context, result *staging.CommitResult) {
	tree := c.store.Tree()

	for _, deletion := range c.store.PendingDeletions() {
		if !tree.Contains(deletion.NodeID) {
			continue
		}
		var err error
		switch {
		case deletion.DeleteChildren:
			_, err = tree.RemoveSubtree(deletion.NodeID)
		case deletion.NewParentID != "":
			if err = tree.ReparentChildren(deletion.NodeID, deletion.NewParentID); err == nil {
				err = tree.Remove(deletion.NodeID)
			}
		default:
			err = tree.Remove(deletion.NodeID)
		}
		if err != nil {
			c.logger.Warn("failed to apply committed deletion",
				zap.String("nodeId", deletion.NodeID), zap.Error(err))
		}
	}

	for _, detail := range result.AdditionDetails {
		if detail.RealID == "" || !tree.Contains(detail.TempID) {
			continue
		}
		if err := tree.RenameNode(detail.TempID, detail.RealID); err != nil {
			c.logger.Warn("failed to reconcile temp id",
				zap.String("tempId", detail.TempID),
				zap.String("realId", detail.RealID),
				zap.Error(err))
		}
	}

	c.store.ClearAll(ctx)

	if c.sessions != nil {
		batch := ports.CommittedBatch{
			BatchID:            uuid.NewString(),
			SessionID:          c.sessionID,
			CommittedAt:        time.Now().UTC().Format(time.RFC3339),
			ChangesProcessed:   result.ChangesProcessed,
			AdditionsProcessed: result.AdditionsProcessed,
			DeletionsProcessed: result.DeletionsProcessed,
			AdditionDetails:    result.AdditionDetails,
			DeletionDetails:    result.DeletionDetails,
		}
		if err := c.sessions.AppendHistory(ctx, c.sessionID, batch); err != nil {
			c.logger.Warn("failed to record committed batch", zap.Error(err))
		}
	}

	c.store.NotifyCommitted(result)
}

// begin claims the in-flight slot
func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return errors.NewConflictError("a commit is already in progress")
	}
	c.state = StateValidating
	return nil
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}
