package staging

// DefaultMaxHistory bounds the undo/redo log
const DefaultMaxHistory = 50

// HistoryEntry is one recorded step in the undo/redo log
type HistoryEntry struct {
	Kind   ChangeKind `json:"type"`
	Change *Change    `json:"change"`
}

// HistoryLog is a bounded undo/redo log with a cursor. The cursor
// points at the most recently applied entry, -1 when nothing is
// applied. Pushing while the cursor sits mid-log discards the redo
// tail; overflowing the bound evicts the oldest entry while holding
// the cursor steady, so the oldest step silently becomes unreachable.
type HistoryLog struct {
	entries []HistoryEntry
	cursor  int
	max     int
}

// NewHistoryLog creates a log bounded to max entries. Non-positive
// max falls back to DefaultMaxHistory.
func NewHistoryLog(max int) *HistoryLog {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &HistoryLog{cursor: -1, max: max}
}

// Len returns the number of retained entries
func (h *HistoryLog) Len() int { return len(h.entries) }

// Cursor returns the current cursor position
func (h *HistoryLog) Cursor() int { return h.cursor }

// CanUndo reports whether an entry is available to undo
func (h *HistoryLog) CanUndo() bool { return h.cursor >= 0 }

// CanRedo reports whether an entry is available to redo
func (h *HistoryLog) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Push records a change as the newest entry
func (h *HistoryLog) Push(change *Change) {
	if h.cursor < len(h.entries)-1 {
		h.entries = h.entries[:h.cursor+1]
	}

	h.entries = append(h.entries, HistoryEntry{Kind: change.Kind, Change: change})

	if len(h.entries) > h.max {
		h.entries = h.entries[1:]
	} else {
		h.cursor++
	}
}

// Undo returns the entry at the cursor and steps back, or nil when
// there is nothing to undo
func (h *HistoryLog) Undo() *HistoryEntry {
	if h.cursor < 0 {
		return nil
	}
	entry := &h.entries[h.cursor]
	h.cursor--
	return entry
}

// Redo steps forward and returns the entry now at the cursor, or nil
// when there is nothing to redo
func (h *HistoryLog) Redo() *HistoryEntry {
	if h.cursor >= len(h.entries)-1 {
		return nil
	}
	h.cursor++
	return &h.entries[h.cursor]
}

// Clear drops all entries and resets the cursor
func (h *HistoryLog) Clear() {
	h.entries = nil
	h.cursor = -1
}

// Entries returns a copy of the retained entries, oldest first
func (h *HistoryLog) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// restore replaces the log contents, clamping the cursor into range
func (h *HistoryLog) restore(entries []HistoryEntry, cursor int) {
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	h.entries = entries
	if cursor > len(entries)-1 {
		cursor = len(entries) - 1
	}
	if cursor < -1 {
		cursor = -1
	}
	h.cursor = cursor
}
