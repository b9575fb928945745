// Package hierarchy holds the in-memory product hierarchy the admin
// session works against. Nodes are kept in a flat arena keyed by id so
// the tree can be snapshotted and serialized without cycles.
package hierarchy

import (
	"strings"

	"catalog-staging/pkg/errors"
)

// Node types recognized by the hierarchy
const (
	TypeCatalog   = "catalog"
	TypeCategory  = "category"
	TypeProduct   = "product"
	TypeComponent = "component"
	TypeUnknown   = "unknown"
)

// Node is a single entry in the product hierarchy
type Node struct {
	id       string
	nodeType string
	name     string
	parentID string
	fields   map[string]interface{}
	staged   bool
}

// NewNode creates a hierarchy node
func NewNode(id, nodeType, name string) (*Node, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewValidationError("node id cannot be empty")
	}
	if !IsValidType(nodeType) {
		return nil, errors.NewValidationError("invalid node type: " + nodeType)
	}
	return &Node{
		id:       id,
		nodeType: nodeType,
		name:     name,
		fields:   make(map[string]interface{}),
	}, nil
}

// IsValidType reports whether t names a known node type
func IsValidType(t string) bool {
	switch t {
	case TypeCatalog, TypeCategory, TypeProduct, TypeComponent:
		return true
	}
	return false
}

// ID returns the node identifier
func (n *Node) ID() string { return n.id }

// Type returns the node type
func (n *Node) Type() string { return n.nodeType }

// Name returns the display name
func (n *Node) Name() string { return n.name }

// ParentID returns the id of the parent node, empty for roots
func (n *Node) ParentID() string { return n.parentID }

// Staged reports whether this node is a staged addition that does not
// exist on the server yet
func (n *Node) Staged() bool { return n.staged }

// Field returns a named attribute value
func (n *Node) Field(name string) (interface{}, bool) {
	if name == "name" {
		return n.name, true
	}
	v, ok := n.fields[name]
	return v, ok
}

// Fields returns a copy of the node's attribute map
func (n *Node) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(n.fields))
	for k, v := range n.fields {
		out[k] = v
	}
	return out
}

// SetField updates a named attribute. The "name" field is special
// cased onto the display name so staged edits show up in the tree.
func (n *Node) SetField(name string, value interface{}) {
	if name == "name" {
		if s, ok := value.(string); ok {
			n.name = s
			return
		}
	}
	n.fields[name] = value
}
