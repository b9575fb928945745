package hierarchy

import (
	"catalog-staging/pkg/errors"
)

// Tree is an arena of nodes with explicit parent/child links. Child
// order is preserved as nodes are added. The tree is not safe for
// concurrent use; callers synchronize through the staging store.
type Tree struct {
	nodes    map[string]*Node
	children map[string][]string
	roots    []string
}

// NewTree creates an empty hierarchy
func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
	}
}

// Len returns the number of nodes in the tree
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node with the given id, or nil
func (t *Tree) Node(id string) *Node {
	return t.nodes[id]
}

// Contains reports whether a node with the given id exists
func (t *Tree) Contains(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// TypeOf returns the node's type, or "unknown" when the id is not in
// the tree. Lookups against ids removed by a concurrent refresh must
// not fail the caller.
func (t *Tree) TypeOf(id string) string {
	if n, ok := t.nodes[id]; ok {
		return n.nodeType
	}
	return TypeUnknown
}

// AddNode inserts a node under the given parent. An empty parentID
// makes the node a root. Re-adding an existing id is a conflict.
func (t *Tree) AddNode(node *Node, parentID string) error {
	if node == nil {
		return errors.NewValidationError("node cannot be nil")
	}
	if _, exists := t.nodes[node.id]; exists {
		return errors.NewConflictError("node already exists: " + node.id)
	}
	if parentID != "" {
		if _, ok := t.nodes[parentID]; !ok {
			return errors.NewNotFoundError("parent node " + parentID)
		}
	}

	node.parentID = parentID
	t.nodes[node.id] = node
	if parentID == "" {
		t.roots = append(t.roots, node.id)
	} else {
		t.children[parentID] = append(t.children[parentID], node.id)
	}
	return nil
}

// AddStagedNode inserts a node flagged as a staged addition
func (t *Tree) AddStagedNode(node *Node, parentID string) error {
	if node == nil {
		return errors.NewValidationError("node cannot be nil")
	}
	node.staged = true
	return t.AddNode(node, parentID)
}

// Roots returns the root node ids in insertion order
func (t *Tree) Roots() []string {
	out := make([]string, len(t.roots))
	copy(out, t.roots)
	return out
}

// Children returns the child ids of a node in insertion order
func (t *Tree) Children(id string) []string {
	kids := t.children[id]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}

// Remove deletes a single node. Its children are left in place and
// must be reparented or removed by the caller first.
func (t *Tree) Remove(id string) error {
	node, ok := t.nodes[id]
	if !ok {
		return errors.NewNotFoundError("node " + id)
	}
	if len(t.children[id]) > 0 {
		return errors.NewConflictError("node has children: " + id)
	}

	t.detach(node)
	delete(t.nodes, id)
	delete(t.children, id)
	return nil
}

// RemoveSubtree deletes a node and all of its descendants. It returns
// the ids removed, parent before children.
func (t *Tree) RemoveSubtree(id string) ([]string, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, errors.NewNotFoundError("node " + id)
	}

	removed := t.collect(id)
	t.detach(node)
	for _, rid := range removed {
		delete(t.nodes, rid)
		delete(t.children, rid)
	}
	return removed, nil
}

// ReparentChildren moves all children of fromID under toID, appended
// after toID's existing children. An empty toID promotes them to
// roots.
func (t *Tree) ReparentChildren(fromID, toID string) error {
	if _, ok := t.nodes[fromID]; !ok {
		return errors.NewNotFoundError("node " + fromID)
	}
	if toID != "" {
		if _, ok := t.nodes[toID]; !ok {
			return errors.NewNotFoundError("node " + toID)
		}
	}

	kids := t.children[fromID]
	if len(kids) == 0 {
		return nil
	}
	delete(t.children, fromID)

	for _, kid := range kids {
		t.nodes[kid].parentID = toID
	}
	if toID == "" {
		t.roots = append(t.roots, kids...)
	} else {
		t.children[toID] = append(t.children[toID], kids...)
	}
	return nil
}

// RenameNode rewrites a node's id in place, preserving its position
// and children. Used to reconcile temporary ids with server-assigned
// ids after a commit.
func (t *Tree) RenameNode(oldID, newID string) error {
	node, ok := t.nodes[oldID]
	if !ok {
		return errors.NewNotFoundError("node " + oldID)
	}
	if _, exists := t.nodes[newID]; exists {
		return errors.NewConflictError("node already exists: " + newID)
	}

	node.id = newID
	node.staged = false
	delete(t.nodes, oldID)
	t.nodes[newID] = node

	if kids, ok := t.children[oldID]; ok {
		delete(t.children, oldID)
		t.children[newID] = kids
		for _, kid := range kids {
			t.nodes[kid].parentID = newID
		}
	}

	if node.parentID == "" {
		replaceID(t.roots, oldID, newID)
	} else {
		replaceID(t.children[node.parentID], oldID, newID)
	}
	return nil
}

// SnapshotNode is the serializable nested form of a subtree
type SnapshotNode struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Staged   bool                   `json:"staged,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Children []*SnapshotNode        `json:"children,omitempty"`
}

// Snapshot returns the whole tree as nested snapshot nodes
func (t *Tree) Snapshot() []*SnapshotNode {
	out := make([]*SnapshotNode, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.snapshotNode(id))
	}
	return out
}

func (t *Tree) snapshotNode(id string) *SnapshotNode {
	node := t.nodes[id]
	sn := &SnapshotNode{
		ID:     node.id,
		Type:   node.nodeType,
		Name:   node.name,
		Staged: node.staged,
	}
	if len(node.fields) > 0 {
		sn.Fields = node.Fields()
	}
	for _, kid := range t.children[id] {
		sn.Children = append(sn.Children, t.snapshotNode(kid))
	}
	return sn
}

// detach removes the node's id from its parent's child list or the
// root list, dropping the child slice entirely when it empties.
func (t *Tree) detach(node *Node) {
	if node.parentID == "" {
		t.roots = removeID(t.roots, node.id)
		return
	}
	kids := removeID(t.children[node.parentID], node.id)
	if len(kids) == 0 {
		delete(t.children, node.parentID)
	} else {
		t.children[node.parentID] = kids
	}
}

// collect returns id and all descendant ids, parents first
func (t *Tree) collect(id string) []string {
	out := []string{id}
	for _, kid := range t.children[id] {
		out = append(out, t.collect(kid)...)
	}
	return out
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func replaceID(ids []string, oldID, newID string) {
	for i, v := range ids {
		if v == oldID {
			ids[i] = newID
			return
		}
	}
}
