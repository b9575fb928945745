// Package staging tracks pending edits against the product hierarchy
// before they are committed to the connector. Field edits, additions
// and deletions are kept per node so at most one record of each kind
// exists for a node at a time.
package staging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeKind discriminates the variants of a pending change
type ChangeKind string

const (
	KindFieldChange ChangeKind = "field-change"
	KindAddition    ChangeKind = "addition"
	KindDeletion    ChangeKind = "deletion"
)

// Change is a single pending edit. Exactly one of the variant payloads
// is set, according to Kind: field changes carry FieldName/OldValue/
// NewValue, additions carry Addition, deletions carry Deletion.
type Change struct {
	ID        string        `json:"id"`
	Kind      ChangeKind    `json:"kind"`
	NodeID    string        `json:"nodeId"`
	FieldName string        `json:"fieldName,omitempty"`
	OldValue  interface{}   `json:"oldValue,omitempty"`
	NewValue  interface{}   `json:"newValue,omitempty"`
	Addition  *NodeData     `json:"addition,omitempty"`
	Deletion  *DeletionInfo `json:"deletion,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// NodeData is the payload of a staged addition
type NodeData struct {
	TempID      string                 `json:"tempId"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	IsActive    *bool                  `json:"isActive,omitempty"`
	ParentID    string                 `json:"parentId,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// Active returns IsActive, defaulting to true when unset
func (n *NodeData) Active() bool {
	if n.IsActive == nil {
		return true
	}
	return *n.IsActive
}

// Field returns a type-specific attribute from the addition payload
func (n *NodeData) Field(name string) (interface{}, bool) {
	v, ok := n.Fields[name]
	return v, ok
}

// SetField updates an attribute on the addition payload. Staged
// additions absorb later field edits directly instead of producing
// separate field-change records.
func (n *NodeData) SetField(name string, value interface{}) {
	switch name {
	case "name":
		if s, ok := value.(string); ok {
			n.Name = s
			return
		}
	case "description":
		if s, ok := value.(string); ok {
			n.Description = s
			return
		}
	case "isActive":
		if b, ok := value.(bool); ok {
			n.IsActive = &b
			return
		}
	}
	if n.Fields == nil {
		n.Fields = make(map[string]interface{})
	}
	n.Fields[name] = value
}

// DeletionInfo is the payload of a staged deletion. DeleteChildren and
// NewParentID are mutually exclusive: either the subtree goes with the
// node, or children move to NewParentID first.
type DeletionInfo struct {
	NodeID         string `json:"nodeId"`
	NodeType       string `json:"nodeType"`
	NodeName       string `json:"nodeName"`
	DeleteChildren bool   `json:"deleteChildren"`
	NewParentID    string `json:"newParentId,omitempty"`
}

// FieldChangeRecord is the wire form of a field change in a commit
type FieldChangeRecord struct {
	NodeID    string      `json:"nodeId"`
	NodeType  string      `json:"nodeType"`
	FieldName string      `json:"fieldName"`
	OldValue  interface{} `json:"oldValue"`
	NewValue  interface{} `json:"newValue"`
	Timestamp string      `json:"timestamp"`
}

// DeletionRecord is the wire form of a deletion in a commit
type DeletionRecord struct {
	NodeID         string `json:"nodeId"`
	NodeType       string `json:"nodeType"`
	NodeName       string `json:"nodeName"`
	DeleteChildren bool   `json:"deleteChildren"`
	NewParentID    string `json:"newParentId,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// AdditionPayload is the wire form of an addition in a commit. The
// field set varies by node type, so it stays a free-form map that
// PrepareChangesForCommit normalizes per type.
type AdditionPayload map[string]interface{}

// CommitPayload is the request body for validate and commit
type CommitPayload struct {
	Changes   []FieldChangeRecord `json:"changes"`
	Deletions []DeletionRecord    `json:"deletions"`
	Additions []AdditionPayload   `json:"additions"`
}

// Empty reports whether the payload carries no work
func (p CommitPayload) Empty() bool {
	return len(p.Changes) == 0 && len(p.Deletions) == 0 && len(p.Additions) == 0
}

// ValidationResult is the connector's verdict on a payload
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AdditionDetail reports a server-created record for a staged addition
type AdditionDetail struct {
	TempID   string `json:"tempId"`
	RealID   string `json:"real_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
}

// DeletionDetail reports the records affected by one deletion
type DeletionDetail struct {
	Deleted    []string `json:"deleted,omitempty"`
	Reparented []string `json:"reparented,omitempty"`
}

// CommitResult is the connector's response to a commit
type CommitResult struct {
	Success            bool             `json:"success"`
	ChangesProcessed   int              `json:"changes_processed"`
	AdditionsProcessed int              `json:"additions_processed"`
	DeletionsProcessed int              `json:"deletions_processed"`
	AdditionDetails    []AdditionDetail `json:"addition_details,omitempty"`
	DeletionDetails    []DeletionDetail `json:"deletion_details,omitempty"`
	Errors             []string         `json:"errors,omitempty"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// NewTempID mints a client-side id for a staged addition. Temp ids are
// replaced by server-assigned ids during commit reconciliation.
func NewTempID(nodeType string) string {
	return fmt.Sprintf("temp_%s_%s", nodeType, uuid.NewString())
}

// newChangeID mints an id for a change record
func newChangeID() string {
	return "change_" + uuid.NewString()
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
