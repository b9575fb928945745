package staging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldChange(nodeID, field string, old, new interface{}) *Change {
	return &Change{
		ID:        newChangeID(),
		Kind:      KindFieldChange,
		NodeID:    nodeID,
		FieldName: field,
		OldValue:  old,
		NewValue:  new,
		Timestamp: nowStamp(),
	}
}

func TestHistoryLog_PushAndCursor(t *testing.T) {
	log := NewHistoryLog(10)

	assert.False(t, log.CanUndo())
	assert.False(t, log.CanRedo())

	log.Push(fieldChange("n1", "name", "a", "b"))
	log.Push(fieldChange("n1", "name", "b", "c"))

	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 1, log.Cursor())
	assert.True(t, log.CanUndo())
	assert.False(t, log.CanRedo())
}

func TestHistoryLog_UndoRedo(t *testing.T) {
	log := NewHistoryLog(10)
	log.Push(fieldChange("n1", "name", "a", "b"))
	log.Push(fieldChange("n2", "code", "x", "y"))

	entry := log.Undo()
	require.NotNil(t, entry)
	assert.Equal(t, "n2", entry.Change.NodeID)
	assert.Equal(t, 0, log.Cursor())
	assert.True(t, log.CanRedo())

	entry = log.Undo()
	require.NotNil(t, entry)
	assert.Equal(t, "n1", entry.Change.NodeID)
	assert.Nil(t, log.Undo())

	entry = log.Redo()
	require.NotNil(t, entry)
	assert.Equal(t, "n1", entry.Change.NodeID)

	entry = log.Redo()
	require.NotNil(t, entry)
	assert.Equal(t, "n2", entry.Change.NodeID)
	assert.Nil(t, log.Redo())
}

func TestHistoryLog_PushTruncatesRedoTail(t *testing.T) {
	log := NewHistoryLog(10)
	log.Push(fieldChange("n1", "name", "a", "b"))
	log.Push(fieldChange("n1", "name", "b", "c"))
	log.Push(fieldChange("n1", "name", "c", "d"))

	require.NotNil(t, log.Undo())
	require.NotNil(t, log.Undo())

	// pushing from the middle discards the two undone entries
	log.Push(fieldChange("n1", "code", "", "X"))

	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 1, log.Cursor())
	assert.False(t, log.CanRedo())

	entry := log.Undo()
	require.NotNil(t, entry)
	assert.Equal(t, "code", entry.Change.FieldName)
}

func TestHistoryLog_EvictionHoldsCursor(t *testing.T) {
	log := NewHistoryLog(3)
	for i := 0; i < 3; i++ {
		log.Push(fieldChange("n1", fmt.Sprintf("f%d", i), nil, i))
	}
	assert.Equal(t, 2, log.Cursor())

	// a fourth push evicts the oldest entry without advancing the cursor
	log.Push(fieldChange("n1", "f3", nil, 3))
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, 2, log.Cursor())

	// the newest entry is now beyond the cursor and reachable via redo
	entry := log.Redo()
	require.NotNil(t, entry)
	assert.Equal(t, "f3", entry.Change.FieldName)
}

func TestHistoryLog_Restore(t *testing.T) {
	log := NewHistoryLog(3)

	entries := []HistoryEntry{
		{Kind: KindFieldChange, Change: fieldChange("n1", "a", nil, 1)},
		{Kind: KindFieldChange, Change: fieldChange("n1", "b", nil, 2)},
	}

	// an out-of-range cursor from an old snapshot is clamped
	log.restore(entries, 7)
	assert.Equal(t, 1, log.Cursor())

	log.restore(entries, -9)
	assert.Equal(t, -1, log.Cursor())

	// restoring more entries than the bound keeps the newest
	many := make([]HistoryEntry, 5)
	for i := range many {
		many[i] = HistoryEntry{Kind: KindFieldChange, Change: fieldChange("n1", fmt.Sprintf("f%d", i), nil, i)}
	}
	log.restore(many, 4)
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, 2, log.Cursor())
	assert.Equal(t, "f2", log.Entries()[0].Change.FieldName)
}
