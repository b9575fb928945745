// Package session assembles per-admin staging workspaces: a fetched
// hierarchy, a change store bound to the session's snapshot, and a
// commit coordinator.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalog-staging/application/commit"
	"catalog-staging/application/ports"
	"catalog-staging/domain/hierarchy"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/errors"
)

// Workspace bundles everything one session edits against
type Workspace struct {
	SessionID   string
	Tree        *hierarchy.Tree
	Store       *staging.Store
	Coordinator *commit.Coordinator
}

// ManagerConfig configures the workspace manager
type ManagerConfig struct {
	Gateway       ports.RemoteGateway
	Sessions      ports.SessionStore
	Logger        *zap.Logger
	MaxHistory    int
	AutosaveDelay time.Duration
	Listeners     []staging.Listener
}

// Manager creates and caches workspaces keyed by session id. A
// workspace is built lazily on first touch: the hierarchy is fetched
// from the connector and any persisted snapshot is restored onto it.
type Manager struct {
	mu         sync.Mutex
	workspaces map[string]*Workspace

	gateway       ports.RemoteGateway
	sessions      ports.SessionStore
	logger        *zap.Logger
	maxHistory    int
	autosaveDelay time.Duration
	listeners     []staging.Listener
}

// NewManager creates a workspace manager
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		workspaces:    make(map[string]*Workspace),
		gateway:       cfg.Gateway,
		sessions:      cfg.Sessions,
		logger:        logger,
		maxHistory:    cfg.MaxHistory,
		autosaveDelay: cfg.AutosaveDelay,
		listeners:     cfg.Listeners,
	}
}

// Get returns the workspace for a session, building it on first use
func (m *Manager) Get(ctx context.Context, sessionID string) (*Workspace, error) {
	if sessionID == "" {
		return nil, errors.NewValidationError("session id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[sessionID]; ok {
		return ws, nil
	}

	ws, err := m.build(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.workspaces[sessionID] = ws
	return ws, nil
}

// Refresh discards a cached workspace and rebuilds it from the
// connector. The evicted store is closed first so its pending state is
// persisted and its autosave timer cannot fire after replacement; the
// rebuilt workspace re-applies the persisted changes to the fresh tree.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*Workspace, error) {
	m.evict(ctx, sessionID)
	return m.Get(ctx, sessionID)
}

// Drop evicts a cached workspace, closing its store so pending edits
// are flushed and no stale autosave fires afterwards
func (m *Manager) Drop(ctx context.Context, sessionID string) {
	m.evict(ctx, sessionID)
}

func (m *Manager) evict(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[sessionID]; ok {
		ws.Store.Close(ctx)
		delete(m.workspaces, sessionID)
	}
}

// SessionHistory returns committed batches for a session, newest first
func (m *Manager) SessionHistory(ctx context.Context, sessionID string, limit int) ([]ports.CommittedBatch, error) {
	if m.sessions == nil {
		return nil, nil
	}
	return m.sessions.History(ctx, sessionID, limit)
}

// Flush persists every cached workspace's snapshot. Called on
// shutdown so debounced autosaves are not lost.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.workspaces {
		ws.Store.Flush(ctx)
	}
}

func (m *Manager) build(ctx context.Context, sessionID string) (*Workspace, error) {
	tree, err := m.gateway.FetchHierarchy(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch hierarchy")
	}

	store := staging.NewStore(tree, staging.StoreConfig{
		SessionID:     sessionID,
		Snapshots:     m.sessions,
		Logger:        m.logger,
		MaxHistory:    m.maxHistory,
		AutosaveDelay: m.autosaveDelay,
	})
	for _, l := range m.listeners {
		store.AddListener(l)
	}

	m.restore(ctx, sessionID, store)

	coord := commit.NewCoordinator(commit.Config{
		Store:     store,
		Gateway:   m.gateway,
		Sessions:  m.sessions,
		SessionID: sessionID,
		Logger:    m.logger,
	})

	return &Workspace{
		SessionID:   sessionID,
		Tree:        tree,
		Store:       store,
		Coordinator: coord,
	}, nil
}

// restore loads a persisted snapshot if one exists. A corrupt blob is
// logged and skipped; the session starts clean rather than failing.
func (m *Manager) restore(ctx context.Context, sessionID string, store *staging.Store) {
	if m.sessions == nil {
		return
	}

	blob, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		if !errors.IsNotFound(err) {
			m.logger.Warn("failed to load session snapshot",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
		return
	}

	snap, err := staging.DecodeSnapshot(blob)
	if err != nil {
		m.logger.Warn("discarding corrupt session snapshot",
			zap.String("sessionId", sessionID), zap.Error(err))
		return
	}

	store.Restore(snap)
	store.ApplyRestoredChanges()
	m.logger.Info("restored session snapshot",
		zap.String("sessionId", sessionID),
		zap.Int("pendingChanges", store.TotalChangeCount()))
}
