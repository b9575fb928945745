package staging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalog-staging/domain/hierarchy"
	"catalog-staging/pkg/errors"
)

// DefaultAutosaveDelay is how long the store waits after a field edit
// before persisting a snapshot
const DefaultAutosaveDelay = 5 * time.Second

// SnapshotStore persists encoded store snapshots between requests
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, blob []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
}

// nodeChanges holds the pending records for one node. At most one
// record per field plus at most one addition and one deletion.
type nodeChanges struct {
	fields   map[string]*Change
	addition *Change
	deletion *Change
}

func (nc *nodeChanges) count() int {
	n := len(nc.fields)
	if nc.addition != nil {
		n++
	}
	if nc.deletion != nil {
		n++
	}
	return n
}

func (nc *nodeChanges) empty() bool { return nc.count() == 0 }

// StoreConfig configures a change store
type StoreConfig struct {
	SessionID     string
	Snapshots     SnapshotStore
	Logger        *zap.Logger
	MaxHistory    int
	AutosaveDelay time.Duration
}

// Store tracks pending edits for one admin session. All methods are
// safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	tree      *hierarchy.Tree
	pending   map[string]*nodeChanges
	order     []string
	history   *HistoryLog
	listeners *listenerSet
	logger    *zap.Logger

	sessionID     string
	snapshots     SnapshotStore
	autosaveDelay time.Duration
	autosaveTimer *time.Timer
	closed        bool
}

// NewStore creates a change store over the given hierarchy
func NewStore(tree *hierarchy.Tree, cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := cfg.AutosaveDelay
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &Store{
		tree:          tree,
		pending:       make(map[string]*nodeChanges),
		history:       NewHistoryLog(cfg.MaxHistory),
		listeners:     newListenerSet(logger),
		logger:        logger,
		sessionID:     cfg.SessionID,
		snapshots:     cfg.Snapshots,
		autosaveDelay: delay,
	}
}

// Tree returns the hierarchy this store edits
func (s *Store) Tree() *hierarchy.Tree { return s.tree }

// AddListener registers a listener and returns its removal function.
// The removal function may be called concurrently with store mutations.
func (s *Store) AddListener(l Listener) func() {
	s.mu.Lock()
	id := s.listeners.add(l)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners.remove(id)
	}
}

// RecordFieldChange stages a field edit. Empty node or field names are
// ignored. An edit to a node staged for addition mutates the addition
// payload in place instead of producing a field-change record, so a
// later commit creates the node once with its final values. Repeat
// edits to the same field keep the original old value so a discard
// restores the value the server knows.
func (s *Store) RecordFieldChange(ctx context.Context, nodeID, fieldName string, oldValue, newValue interface{}) {
	if strings.TrimSpace(nodeID) == "" || strings.TrimSpace(fieldName) == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if nc, ok := s.pending[nodeID]; ok && nc.addition != nil {
		nc.addition.Addition.SetField(fieldName, newValue)
		if node := s.tree.Node(nodeID); node != nil {
			node.SetField(fieldName, newValue)
		}
		s.listeners.notify(Event{Type: EventChangeAdded, Data: nc.addition})
		s.scheduleSave()
		return
	}

	change := &Change{
		ID:        newChangeID(),
		Kind:      KindFieldChange,
		NodeID:    nodeID,
		FieldName: fieldName,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: nowStamp(),
	}

	nc := s.node(nodeID)
	if prior, ok := nc.fields[fieldName]; ok {
		change.OldValue = prior.OldValue
	}
	nc.fields[fieldName] = change

	if node := s.tree.Node(nodeID); node != nil {
		node.SetField(fieldName, newValue)
	}

	s.history.Push(change)
	s.listeners.notify(Event{Type: EventChangeAdded, Data: change})
	s.scheduleSave()
}

// RecordAddition stages a new node. A missing temp id is minted from
// the node type. The staged node is attached to the tree immediately
// so it renders alongside committed nodes. Re-recording the same temp
// id replaces the pending payload.
func (s *Store) RecordAddition(ctx context.Context, data NodeData) (string, error) {
	if !hierarchy.IsValidType(data.Type) {
		return "", errors.NewValidationError("invalid node type: " + data.Type)
	}
	if strings.TrimSpace(data.Name) == "" {
		return "", errors.NewValidationError("addition requires a name")
	}
	if data.TempID == "" {
		data.TempID = NewTempID(data.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tree.Contains(data.TempID) {
		node, err := newStagedNode(data.TempID, &data)
		if err != nil {
			return "", err
		}
		if err := s.tree.AddStagedNode(node, data.ParentID); err != nil {
			return "", err
		}
	}

	change := &Change{
		ID:        newChangeID(),
		Kind:      KindAddition,
		NodeID:    data.TempID,
		Addition:  &data,
		Timestamp: nowStamp(),
	}
	s.node(data.TempID).addition = change

	s.history.Push(change)
	s.listeners.notify(Event{Type: EventAdditionTracked, Data: change})
	s.save(ctx)
	return data.TempID, nil
}

// RecordDeletion stages a node deletion. Node type and name are filled
// from the tree when the caller omits them.
func (s *Store) RecordDeletion(ctx context.Context, info DeletionInfo) error {
	if strings.TrimSpace(info.NodeID) == "" {
		return errors.NewValidationError("deletion requires a node id")
	}
	if info.DeleteChildren && info.NewParentID != "" {
		return errors.NewValidationError("deleteChildren and newParentId are mutually exclusive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if node := s.tree.Node(info.NodeID); node != nil {
		if info.NodeType == "" {
			info.NodeType = node.Type()
		}
		if info.NodeName == "" {
			info.NodeName = node.Name()
		}
	}
	if info.NewParentID != "" && !s.tree.Contains(info.NewParentID) {
		return errors.NewNotFoundError("new parent node " + info.NewParentID)
	}

	change := &Change{
		ID:        newChangeID(),
		Kind:      KindDeletion,
		NodeID:    info.NodeID,
		Deletion:  &info,
		Timestamp: nowStamp(),
	}
	s.node(info.NodeID).deletion = change

	s.history.Push(change)
	s.listeners.notify(Event{Type: EventDeletionTracked, Data: change})
	s.save(ctx)
	return nil
}

// DiscardField drops a pending field change and restores the original
// value on the tree
func (s *Store) DiscardField(ctx context.Context, nodeID, fieldName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	if !ok {
		return
	}
	change, ok := nc.fields[fieldName]
	if !ok {
		return
	}

	if node := s.tree.Node(nodeID); node != nil {
		node.SetField(fieldName, change.OldValue)
	}
	delete(nc.fields, fieldName)
	s.drop(nodeID, nc)
	s.save(ctx)
}

// DiscardNode drops all pending records for a node. Field edits are
// rolled back on the tree and a staged addition node is detached.
func (s *Store) DiscardNode(ctx context.Context, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardNodeLocked(nodeID)
	s.save(ctx)
}

func (s *Store) discardNodeLocked(nodeID string) {
	nc, ok := s.pending[nodeID]
	if !ok {
		return
	}

	if node := s.tree.Node(nodeID); node != nil {
		for fieldName, change := range nc.fields {
			node.SetField(fieldName, change.OldValue)
		}
	}
	if nc.addition != nil && s.tree.Contains(nodeID) {
		s.removeStagedSubtree(nodeID)
	}

	delete(s.pending, nodeID)
	s.order = removeFromOrder(s.order, nodeID)
	s.listeners.notify(Event{Type: EventChangesDiscarded, Data: map[string]string{"nodeId": nodeID}})
}

// DiscardAll drops every pending record and clears the undo history
func (s *Store) DiscardAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, nodeID := range append([]string(nil), s.order...) {
		s.discardNodeLocked(nodeID)
	}
	s.history.Clear()
	s.save(ctx)
}

// UndoAddition removes a staged addition and detaches its node, along
// with any staged descendants
func (s *Store) UndoAddition(ctx context.Context, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	if !ok || nc.addition == nil {
		return
	}

	nc.addition = nil
	s.drop(nodeID, nc)
	s.removeStagedSubtree(nodeID)

	s.listeners.notify(Event{Type: EventAdditionUndone, Data: map[string]string{"nodeId": nodeID}})
	s.save(ctx)
}

// UndoDeletion removes a staged deletion, leaving other pending
// records for the node intact
func (s *Store) UndoDeletion(ctx context.Context, nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	if !ok || nc.deletion == nil {
		return
	}

	nc.deletion = nil
	s.drop(nodeID, nc)

	s.listeners.notify(Event{Type: EventDeletionUndone, Data: map[string]string{"nodeId": nodeID}})
	s.save(ctx)
}

// Undo steps the history cursor back. Only field changes are rolled
// back on the tree; structural steps move the cursor without touching
// pending additions or deletions, which have their own undo paths.
func (s *Store) Undo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.history.Undo()
	if entry == nil {
		return false
	}

	if entry.Kind == KindFieldChange {
		change := entry.Change
		if node := s.tree.Node(change.NodeID); node != nil {
			node.SetField(change.FieldName, change.OldValue)
		}
		if nc, ok := s.pending[change.NodeID]; ok {
			delete(nc.fields, change.FieldName)
			s.drop(change.NodeID, nc)
		}
	}

	s.save(ctx)
	return true
}

// Redo steps the history cursor forward, re-applying a field change
func (s *Store) Redo(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.history.Redo()
	if entry == nil {
		return false
	}

	if entry.Kind == KindFieldChange {
		change := entry.Change
		if node := s.tree.Node(change.NodeID); node != nil {
			node.SetField(change.FieldName, change.NewValue)
		}
		s.node(change.NodeID).fields[change.FieldName] = change
	}

	s.save(ctx)
	return true
}

// CanUndo reports whether a history step is available to undo
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

// CanRedo reports whether a history step is available to redo
func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// NodeChanges returns all pending records for a node
func (s *Store) NodeChanges(nodeID string) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	if !ok {
		return nil
	}
	return collectChanges(nc)
}

// NodeChangeCount returns the number of pending records for a node
func (s *Store) NodeChangeCount(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nc, ok := s.pending[nodeID]; ok {
		return nc.count()
	}
	return 0
}

// TotalChangeCount returns the number of pending records across all
// nodes
func (s *Store) TotalChangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, nc := range s.pending {
		total += nc.count()
	}
	return total
}

// AllChanges returns every pending record, grouped by node in the
// order nodes were first touched
func (s *Store) AllChanges() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Change
	for _, nodeID := range s.order {
		out = append(out, collectChanges(s.pending[nodeID])...)
	}
	return out
}

// ModifiedNodeCount returns the number of nodes with pending records
func (s *Store) ModifiedNodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// IsMarkedForDeletion reports whether a node has a staged deletion
func (s *Store) IsMarkedForDeletion(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	return ok && nc.deletion != nil
}

// IsMarkedForAddition reports whether a node is a staged addition
func (s *Store) IsMarkedForAddition(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	nc, ok := s.pending[nodeID]
	return ok && nc.addition != nil
}

// PendingAdditions returns the staged addition payloads
func (s *Store) PendingAdditions() []NodeData {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []NodeData
	for _, nodeID := range s.order {
		if nc := s.pending[nodeID]; nc.addition != nil {
			out = append(out, *nc.addition.Addition)
		}
	}
	return out
}

// PendingDeletions returns the staged deletion payloads
func (s *Store) PendingDeletions() []DeletionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingDeletionsLocked()
}

func (s *Store) pendingDeletionsLocked() []DeletionInfo {
	var out []DeletionInfo
	for _, nodeID := range s.order {
		if nc := s.pending[nodeID]; nc.deletion != nil {
			out = append(out, *nc.deletion.Deletion)
		}
	}
	return out
}

// PrepareChangesForCommit flattens the pending records into the wire
// payload. Addition payloads are normalized per node type so the
// connector always sees the full field set it expects.
func (s *Store) PrepareChangesForCommit() CommitPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := CommitPayload{
		Changes:   []FieldChangeRecord{},
		Deletions: []DeletionRecord{},
		Additions: []AdditionPayload{},
	}

	for _, nodeID := range s.order {
		nc := s.pending[nodeID]
		nodeType := s.tree.TypeOf(nodeID)

		if nc.deletion != nil {
			info := nc.deletion.Deletion
			recType := info.NodeType
			if recType == "" {
				recType = nodeType
			}
			payload.Deletions = append(payload.Deletions, DeletionRecord{
				NodeID:         nodeID,
				NodeType:       recType,
				NodeName:       info.NodeName,
				DeleteChildren: info.DeleteChildren,
				NewParentID:    info.NewParentID,
				Timestamp:      nc.deletion.Timestamp,
			})
		}

		if nc.addition != nil {
			payload.Additions = append(payload.Additions,
				normalizeAddition(nodeID, nc.addition.Addition, nc.addition.Timestamp))
		}

		for _, change := range sortedFieldChanges(nc) {
			payload.Changes = append(payload.Changes, FieldChangeRecord{
				NodeID:    change.NodeID,
				NodeType:  nodeType,
				FieldName: change.FieldName,
				OldValue:  change.OldValue,
				NewValue:  change.NewValue,
				Timestamp: change.Timestamp,
			})
		}
	}

	return payload
}

// ClearAll drops every pending record, the history, and the persisted
// snapshot. Called after a successful commit.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]*nodeChanges)
	s.order = nil
	s.history.Clear()

	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
		s.autosaveTimer = nil
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, s.sessionID); err != nil && !errors.IsNotFound(err) {
			s.logger.Warn("failed to delete snapshot", zap.Error(err))
		}
	}
}

// NotifyCommitted broadcasts a successful commit to listeners
func (s *Store) NotifyCommitted(result *CommitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners.notify(Event{Type: EventChangesCommitted, Data: result})
}

// Flush persists any pending snapshot immediately. A closed store is
// a no-op.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
		s.autosaveTimer = nil
	}
	s.save(ctx)
}

// Close flushes pending state and retires the store. A closed store
// never saves again, so a debounce armed before eviction cannot
// overwrite the snapshot a replacement store writes later.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
		s.autosaveTimer = nil
	}
	s.save(ctx)
	s.closed = true
}

// node returns the change set for a node, creating it on first touch
func (s *Store) node(nodeID string) *nodeChanges {
	nc, ok := s.pending[nodeID]
	if !ok {
		nc = &nodeChanges{fields: make(map[string]*Change)}
		s.pending[nodeID] = nc
		s.order = append(s.order, nodeID)
	}
	return nc
}

// drop removes a node's change set when it has emptied
func (s *Store) drop(nodeID string, nc *nodeChanges) {
	if !nc.empty() {
		return
	}
	delete(s.pending, nodeID)
	s.order = removeFromOrder(s.order, nodeID)
}

// removeStagedSubtree detaches a staged node and its descendants from
// the tree, dropping any pending records they accumulated
func (s *Store) removeStagedSubtree(nodeID string) {
	if !s.tree.Contains(nodeID) {
		return
	}
	removed, err := s.tree.RemoveSubtree(nodeID)
	if err != nil {
		s.logger.Warn("failed to remove staged node", zap.String("nodeId", nodeID), zap.Error(err))
		return
	}
	for _, rid := range removed {
		if rid == nodeID {
			continue
		}
		if _, ok := s.pending[rid]; ok {
			delete(s.pending, rid)
			s.order = removeFromOrder(s.order, rid)
		}
	}
}

// scheduleSave arms the debounced autosave timer
func (s *Store) scheduleSave() {
	if s.snapshots == nil || s.closed {
		return
	}
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
	}
	s.autosaveTimer = time.AfterFunc(s.autosaveDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.save(context.Background())
	})
}

func collectChanges(nc *nodeChanges) []Change {
	var out []Change
	if nc.deletion != nil {
		out = append(out, *nc.deletion)
	}
	if nc.addition != nil {
		out = append(out, *nc.addition)
	}
	for _, change := range sortedFieldChanges(nc) {
		out = append(out, *change)
	}
	return out
}

// sortedFieldChanges returns a node's field changes ordered by
// timestamp then field name so payloads are deterministic
func sortedFieldChanges(nc *nodeChanges) []*Change {
	out := make([]*Change, 0, len(nc.fields))
	for _, change := range nc.fields {
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].FieldName < out[j].FieldName
	})
	return out
}

func removeFromOrder(order []string, nodeID string) []string {
	for i, id := range order {
		if id == nodeID {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// normalizeAddition builds the wire map for one staged addition,
// filling type-specific defaults the connector requires
func normalizeAddition(nodeID string, data *NodeData, timestamp string) AdditionPayload {
	out := AdditionPayload{
		"nodeId":      nodeID,
		"type":        data.Type,
		"name":        data.Name,
		"description": data.Description,
		"isActive":    data.Active(),
		"tempId":      data.TempID,
		"timestamp":   timestamp,
	}

	field := func(name string, fallback interface{}) interface{} {
		if v, ok := data.Fields[name]; ok && v != nil {
			return v
		}
		return fallback
	}

	switch data.Type {
	case hierarchy.TypeCatalog:
		out["code"] = field("code", "")
		out["catalogType"] = field("catalogType", "Sales")
		out["effectiveStartDate"] = field("effectiveStartDate", "")
		out["effectiveEndDate"] = field("effectiveEndDate", "")
	case hierarchy.TypeCategory:
		out["parentCategoryId"] = field("parentCategoryId", nil)
		out["parentId"] = orNil(data.ParentID)
		out["catalogId"] = field("catalogId", nil)
		out["isNavigational"] = field("isNavigational", false)
		out["sortOrder"] = field("sortOrder", nil)
		out["code"] = field("code", nil)
		out["externalId__c"] = field("externalId__c", nil)
	case hierarchy.TypeProduct:
		out["productCode"] = field("productCode", "")
		out["stockKeepingUnit"] = field("stockKeepingUnit", "")
		out["family"] = field("family", "")
		out["categoryId"] = field("categoryId", nil)
		out["parentId"] = orNil(data.ParentID)
		out["catalogId"] = field("catalogId", nil)
	}

	return out
}

// newStagedNode builds the tree node for a staged addition
func newStagedNode(nodeID string, data *NodeData) (*hierarchy.Node, error) {
	node, err := hierarchy.NewNode(nodeID, data.Type, data.Name)
	if err != nil {
		return nil, err
	}
	if data.Description != "" {
		node.SetField("description", data.Description)
	}
	for k, v := range data.Fields {
		node.SetField(k, v)
	}
	return node, nil
}

func orNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
