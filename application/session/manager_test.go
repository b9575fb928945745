package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-staging/application/ports"
	"catalog-staging/domain/hierarchy"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/errors"
)

type stubGateway struct {
	mu      sync.Mutex
	fetches int
}

func (g *stubGateway) FetchHierarchy(context.Context) (*hierarchy.Tree, error) {
	g.mu.Lock()
	g.fetches++
	g.mu.Unlock()

	tree := hierarchy.NewTree()
	cat, err := hierarchy.NewNode("cat-1", hierarchy.TypeCatalog, "Spring Catalog")
	if err != nil {
		return nil, err
	}
	if err := tree.AddNode(cat, ""); err != nil {
		return nil, err
	}
	prod, err := hierarchy.NewNode("prod-1", hierarchy.TypeProduct, "Tent")
	if err != nil {
		return nil, err
	}
	if err := tree.AddNode(prod, "cat-1"); err != nil {
		return nil, err
	}
	return tree, nil
}

func (g *stubGateway) ValidateChanges(context.Context, staging.CommitPayload) (*staging.ValidationResult, error) {
	return &staging.ValidationResult{Valid: true}, nil
}

func (g *stubGateway) CommitChanges(context.Context, staging.CommitPayload) (*staging.CommitResult, error) {
	return &staging.CommitResult{Success: true}, nil
}

type stubSessions struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newStubSessions() *stubSessions {
	return &stubSessions{blobs: make(map[string][]byte)}
}

func (s *stubSessions) Save(_ context.Context, sessionID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[sessionID] = blob
	return nil
}

func (s *stubSessions) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[sessionID]
	if !ok {
		return nil, errors.NewNotFoundError("session")
	}
	return blob, nil
}

func (s *stubSessions) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sessionID)
	return nil
}

func (s *stubSessions) AppendHistory(context.Context, string, ports.CommittedBatch) error {
	return nil
}

func (s *stubSessions) History(context.Context, string, int) ([]ports.CommittedBatch, error) {
	return nil, nil
}

func TestManager_Get_BuildsWorkspaceOnce(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{}
	mgr := NewManager(ManagerConfig{Gateway: gateway, Sessions: newStubSessions()})

	ws1, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, ws1.Store)
	require.NotNil(t, ws1.Coordinator)
	assert.True(t, ws1.Tree.Contains("cat-1"))

	ws2, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, ws1, ws2)
	assert.Equal(t, 1, gateway.fetches)

	_, err = mgr.Get(ctx, "")
	assert.Error(t, err)
}

func TestManager_Get_SeparateSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(ManagerConfig{Gateway: &stubGateway{}, Sessions: newStubSessions()})

	wsA, err := mgr.Get(ctx, "sess-a")
	require.NoError(t, err)
	wsB, err := mgr.Get(ctx, "sess-b")
	require.NoError(t, err)

	wsA.Store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")

	assert.Equal(t, 1, wsA.Store.TotalChangeCount())
	assert.Equal(t, 0, wsB.Store.TotalChangeCount())
}

func TestManager_Refresh_RestoresSnapshotOntoFreshTree(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions()
	mgr := NewManager(ManagerConfig{Gateway: &stubGateway{}, Sessions: sessions})

	ws, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	ws.Store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")

	refreshed, err := mgr.Refresh(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotSame(t, ws, refreshed)

	// the persisted edit is replayed onto the refetched tree
	assert.Equal(t, 1, refreshed.Store.TotalChangeCount())
	assert.Equal(t, "Big Tent", refreshed.Tree.Node("prod-1").Name())
}

func TestManager_Refresh_StaleAutosaveCannotOverwriteNewState(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions()
	mgr := NewManager(ManagerConfig{
		Gateway:       &stubGateway{},
		Sessions:      sessions,
		AutosaveDelay: 20 * time.Millisecond,
	})

	ws, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)

	// arms the first store's debounce timer
	ws.Store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")

	refreshed, err := mgr.Refresh(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.Store.TotalChangeCount())

	refreshed.Store.DiscardAll(ctx)

	// past the evicted store's debounce window; a stale save here
	// would resurrect the discarded edit
	time.Sleep(60 * time.Millisecond)

	rebuilt, err := mgr.Refresh(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rebuilt.Store.TotalChangeCount())
}

func TestManager_Drop_ClosesStore(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions()
	mgr := NewManager(ManagerConfig{Gateway: &stubGateway{}, Sessions: sessions})

	ws, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	ws.Store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")

	mgr.Drop(ctx, "sess-1")

	// the pending edit was flushed on eviction
	blob, err := sessions.Load(ctx, "sess-1")
	require.NoError(t, err)
	snap, err := staging.DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.Len(t, snap.PendingChanges, 1)
}

func TestManager_Restore_CorruptSnapshotStartsClean(t *testing.T) {
	ctx := context.Background()
	sessions := newStubSessions()
	sessions.blobs["sess-1"] = []byte("{corrupt")
	mgr := NewManager(ManagerConfig{Gateway: &stubGateway{}, Sessions: sessions})

	ws, err := mgr.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, ws.Store.TotalChangeCount())
}
