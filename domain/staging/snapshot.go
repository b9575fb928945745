package staging

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// SnapshotKey identifies the persisted blob for a session
const SnapshotKey = "hierarchy-changes"

// NodeEntry groups a node's pending records in a snapshot
type NodeEntry struct {
	NodeID  string   `json:"nodeId"`
	Changes []Change `json:"changes"`
}

// Snapshot is the serializable state of a change store
type Snapshot struct {
	PendingChanges   []NodeEntry    `json:"pendingChanges"`
	PendingAdditions []NodeData     `json:"pendingAdditions"`
	ChangeHistory    []HistoryEntry `json:"changeHistory"`
	HistoryIndex     int            `json:"historyIndex"`
	Timestamp        string         `json:"timestamp"`
}

// EncodeSnapshot serializes a snapshot for the session store
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot deserializes a snapshot, tolerating older blobs: a
// missing history index defaults to the end of the restored log.
func DecodeSnapshot(blob []byte) (Snapshot, error) {
	snap := Snapshot{HistoryIndex: -2}
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, err
	}
	if snap.HistoryIndex == -2 {
		snap.HistoryIndex = len(snap.ChangeHistory) - 1
	}
	return snap, nil
}

// Snapshot captures the store's current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		PendingChanges:   []NodeEntry{},
		PendingAdditions: []NodeData{},
		HistoryIndex:     s.history.Cursor(),
		Timestamp:        nowStamp(),
	}

	for _, nodeID := range s.order {
		nc := s.pending[nodeID]
		snap.PendingChanges = append(snap.PendingChanges, NodeEntry{
			NodeID:  nodeID,
			Changes: collectChanges(nc),
		})
		if nc.addition != nil {
			snap.PendingAdditions = append(snap.PendingAdditions, *nc.addition.Addition)
		}
	}
	snap.ChangeHistory = s.history.Entries()
	return snap
}

// Restore replaces the store's state from a snapshot. Entries with an
// unrecognized kind are skipped rather than failing the whole load.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]*nodeChanges)
	s.order = nil

	for _, entry := range snap.PendingChanges {
		for i := range entry.Changes {
			change := entry.Changes[i]
			nc := s.node(entry.NodeID)
			switch change.Kind {
			case KindFieldChange:
				nc.fields[change.FieldName] = &change
			case KindAddition:
				if change.Addition != nil {
					nc.addition = &change
				}
			case KindDeletion:
				if change.Deletion != nil {
					nc.deletion = &change
				}
			default:
				s.logger.Warn("skipping snapshot entry with unknown kind",
					zap.String("kind", string(change.Kind)),
					zap.String("nodeId", entry.NodeID))
			}
			s.drop(entry.NodeID, nc)
		}
	}

	s.history.restore(snap.ChangeHistory, snap.HistoryIndex)
}

// ApplyRestoredChanges replays restored pending records onto a freshly
// fetched tree: staged additions are re-attached and field edits are
// re-applied. Records for nodes the server no longer knows are left
// pending but not applied.
func (s *Store) ApplyRestoredChanges() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, nodeID := range s.order {
		nc := s.pending[nodeID]

		if nc.addition != nil && !s.tree.Contains(nodeID) {
			s.attachRestoredAddition(nodeID, nc.addition.Addition)
		}

		node := s.tree.Node(nodeID)
		if node == nil {
			continue
		}
		for fieldName, change := range nc.fields {
			node.SetField(fieldName, change.NewValue)
		}
	}
}

func (s *Store) attachRestoredAddition(nodeID string, data *NodeData) {
	node, err := newStagedNode(nodeID, data)
	if err != nil {
		s.logger.Warn("failed to rebuild staged addition", zap.String("nodeId", nodeID), zap.Error(err))
		return
	}
	parentID := data.ParentID
	if parentID != "" && !s.tree.Contains(parentID) {
		parentID = ""
	}
	if err := s.tree.AddStagedNode(node, parentID); err != nil {
		s.logger.Warn("failed to attach staged addition", zap.String("nodeId", nodeID), zap.Error(err))
	}
}

// save persists a snapshot. Callers hold the lock. When the full
// snapshot cannot be stored, a minimal form without history or
// free-form addition fields is attempted so staged work survives.
func (s *Store) save(ctx context.Context) {
	if s.snapshots == nil || s.closed {
		return
	}

	snap := s.snapshotLocked()
	blob, err := EncodeSnapshot(snap)
	if err == nil {
		err = s.snapshots.Save(ctx, s.sessionID, blob)
		if err == nil {
			return
		}
	}
	s.logger.Warn("failed to save snapshot, trying minimal form", zap.Error(err))

	blob, err = EncodeSnapshot(minimalSnapshot(snap))
	if err != nil {
		s.logger.Error("failed to encode minimal snapshot", zap.Error(err))
		return
	}
	if err := s.snapshots.Save(ctx, s.sessionID, blob); err != nil {
		s.logger.Error("failed to save minimal snapshot", zap.Error(err))
	}
}

// minimalSnapshot strips history and free-form addition fields,
// keeping just enough to restore the pending records
func minimalSnapshot(snap Snapshot) Snapshot {
	out := Snapshot{
		PendingChanges:   snap.PendingChanges,
		PendingAdditions: make([]NodeData, 0, len(snap.PendingAdditions)),
		HistoryIndex:     -1,
		Timestamp:        snap.Timestamp,
	}
	for _, add := range snap.PendingAdditions {
		out.PendingAdditions = append(out.PendingAdditions, NodeData{
			TempID:   add.TempID,
			Type:     add.Type,
			Name:     add.Name,
			ParentID: add.ParentID,
		})
	}
	return out
}
