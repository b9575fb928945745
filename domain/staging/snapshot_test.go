package staging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-staging/domain/hierarchy"
)

// memorySnapshots is a test double for the session store
type memorySnapshots struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  bool
	saves int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{blobs: make(map[string][]byte)}
}

func (m *memorySnapshots) Save(_ context.Context, sessionID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.fail {
		return assert.AnError
	}
	m.blobs[sessionID] = blob
	return nil
}

func (m *memorySnapshots) Load(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[sessionID]
	if !ok {
		return nil, assert.AnError
	}
	return blob, nil
}

func (m *memorySnapshots) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, sessionID)
	return nil
}

func (m *memorySnapshots) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memorySnapshots) blob(sessionID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[sessionID]
	return blob, ok
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	require.NoError(t, store.RecordDeletion(ctx, DeletionInfo{NodeID: "grp-1", DeleteChildren: true}))
	_, err := store.RecordAddition(ctx, NodeData{
		TempID: "temp_product_1", Type: hierarchy.TypeProduct, Name: "Rug", ParentID: "grp-1",
	})
	require.NoError(t, err)

	blob, err := EncodeSnapshot(store.Snapshot())
	require.NoError(t, err)

	snap, err := DecodeSnapshot(blob)
	require.NoError(t, err)

	restored := NewStore(testTree(t), StoreConfig{SessionID: "sess-1"})
	restored.Restore(snap)
	restored.ApplyRestoredChanges()

	assert.Equal(t, 3, restored.TotalChangeCount())
	assert.True(t, restored.IsMarkedForDeletion("grp-1"))
	assert.True(t, restored.IsMarkedForAddition("temp_product_1"))

	// field edits and staged nodes are replayed onto the fresh tree
	assert.Equal(t, "Big Tent", restored.Tree().Node("prod-1").Name())
	node := restored.Tree().Node("temp_product_1")
	require.NotNil(t, node)
	assert.True(t, node.Staged())
	assert.Equal(t, "grp-1", node.ParentID())

	// the undo log survives with its cursor
	assert.True(t, restored.CanUndo())
	assert.Equal(t, 3, restored.history.Len())
}

func TestStore_ApplyRestoredChanges_MissingParentFallsBackToRoot(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	_, err := store.RecordAddition(ctx, NodeData{
		TempID: "temp_product_1", Type: hierarchy.TypeProduct, Name: "Rug", ParentID: "grp-1",
	})
	require.NoError(t, err)

	snap, err := DecodeSnapshot(mustEncode(t, store.Snapshot()))
	require.NoError(t, err)

	// a refreshed tree where the staged node's parent no longer exists
	tree := hierarchy.NewTree()
	cat, err := hierarchy.NewNode("cat-1", hierarchy.TypeCatalog, "Spring Catalog")
	require.NoError(t, err)
	require.NoError(t, tree.AddNode(cat, ""))

	restored := NewStore(tree, StoreConfig{SessionID: "sess-1"})
	restored.Restore(snap)
	restored.ApplyRestoredChanges()

	node := restored.Tree().Node("temp_product_1")
	require.NotNil(t, node)
	assert.Equal(t, "", node.ParentID())
}

func TestStore_Restore_SkipsUnknownKinds(t *testing.T) {
	snap := Snapshot{
		PendingChanges: []NodeEntry{{
			NodeID: "prod-1",
			Changes: []Change{
				{ID: "c1", Kind: "teleport", NodeID: "prod-1"},
				{ID: "c2", Kind: KindFieldChange, NodeID: "prod-1", FieldName: "name", OldValue: "a", NewValue: "b"},
			},
		}},
		HistoryIndex: -1,
	}

	store := testStore(t)
	store.Restore(snap)

	assert.Equal(t, 1, store.TotalChangeCount())
}

func TestDecodeSnapshot_MissingHistoryIndexDefaultsToEnd(t *testing.T) {
	blob := []byte(`{"pendingChanges":[],"changeHistory":[{"type":"field-change","change":{"id":"c1","kind":"field-change","nodeId":"n1","fieldName":"name","timestamp":"2026-01-01T00:00:00Z"}}]}`)

	snap, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.HistoryIndex)
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not json"))
	assert.Error(t, err)
}

func TestStore_SavePersistsSnapshots(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemorySnapshots()
	store := NewStore(testTree(t), StoreConfig{SessionID: "sess-1", Snapshots: snapshots})

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	store.Flush(ctx)

	blob, ok := snapshots.blob("sess-1")
	require.True(t, ok)

	snap, err := DecodeSnapshot(blob)
	require.NoError(t, err)
	require.Len(t, snap.PendingChanges, 1)
	assert.Equal(t, "prod-1", snap.PendingChanges[0].NodeID)
}

func TestStore_ClearAll_DeletesPersistedSnapshot(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemorySnapshots()
	store := NewStore(testTree(t), StoreConfig{SessionID: "sess-1", Snapshots: snapshots})

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	store.Flush(ctx)
	_, ok := snapshots.blob("sess-1")
	require.True(t, ok)

	store.ClearAll(ctx)
	_, ok = snapshots.blob("sess-1")
	assert.False(t, ok)
}

func TestStore_SaveFailureFallsBackToMinimalForm(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemorySnapshots()
	snapshots.fail = true
	store := NewStore(testTree(t), StoreConfig{SessionID: "sess-1", Snapshots: snapshots})

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	store.Flush(ctx)

	// the full save and the minimal retry were both attempted
	assert.Equal(t, 2, snapshots.saveCount())
}

func TestStore_FieldEditsAreDebounced(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemorySnapshots()
	store := NewStore(testTree(t), StoreConfig{
		SessionID: "sess-1", Snapshots: snapshots, AutosaveDelay: time.Hour,
	})

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	assert.Equal(t, 0, snapshots.saveCount())

	// structural changes persist immediately
	require.NoError(t, store.RecordDeletion(ctx, DeletionInfo{NodeID: "grp-1", DeleteChildren: true}))
	assert.Equal(t, 1, snapshots.saveCount())

	store.Flush(ctx)
	assert.Equal(t, 2, snapshots.saveCount())
}

func TestStore_CloseStopsAutosave(t *testing.T) {
	ctx := context.Background()
	snapshots := newMemorySnapshots()
	store := NewStore(testTree(t), StoreConfig{
		SessionID: "sess-1", Snapshots: snapshots, AutosaveDelay: 10 * time.Millisecond,
	})

	store.RecordFieldChange(ctx, "prod-1", "name", "Tent", "Big Tent")
	store.Close(ctx)
	saved := snapshots.saveCount()
	assert.Greater(t, saved, 0)

	// the armed debounce must not fire after close
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, saved, snapshots.saveCount())

	// a closed store never schedules or saves again
	store.RecordFieldChange(ctx, "prod-1", "name", "Big Tent", "Huge Tent")
	store.Flush(ctx)
	assert.Equal(t, saved, snapshots.saveCount())
}

func TestMinimalSnapshot_StripsHistoryAndAdditionFields(t *testing.T) {
	active := true
	snap := Snapshot{
		PendingAdditions: []NodeData{{
			TempID:   "temp_product_1",
			Type:     hierarchy.TypeProduct,
			Name:     "Rug",
			IsActive: &active,
			ParentID: "grp-1",
			Fields:   map[string]interface{}{"productCode": "RUG-01"},
		}},
		ChangeHistory: []HistoryEntry{{Kind: KindFieldChange}},
		HistoryIndex:  0,
	}

	min := minimalSnapshot(snap)

	assert.Nil(t, min.ChangeHistory)
	assert.Equal(t, -1, min.HistoryIndex)
	require.Len(t, min.PendingAdditions, 1)
	assert.Equal(t, "Rug", min.PendingAdditions[0].Name)
	assert.Nil(t, min.PendingAdditions[0].Fields)
	assert.Nil(t, min.PendingAdditions[0].IsActive)
}

func mustEncode(t *testing.T, snap Snapshot) []byte {
	t.Helper()
	blob, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	return blob
}
