// Package memory provides an in-process session store for development
// and tests.
package memory

import (
	"context"
	"sync"

	"catalog-staging/application/ports"
	"catalog-staging/pkg/errors"
)

// SessionStore keeps snapshots and commit history in process memory.
// State does not survive a restart; production deployments use the
// DynamoDB store.
type SessionStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	history map[string][]ports.CommittedBatch
}

// NewSessionStore creates an empty in-memory session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		blobs:   make(map[string][]byte),
		history: make(map[string][]ports.CommittedBatch),
	}
}

// Save stores a snapshot blob for a session
func (s *SessionStore) Save(_ context.Context, sessionID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[sessionID] = stored
	return nil
}

// Load returns a session's snapshot blob
func (s *SessionStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[sessionID]
	if !ok {
		return nil, errors.NewNotFoundError("session")
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Delete removes a session's snapshot blob
func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, sessionID)
	return nil
}

// AppendHistory records a committed batch for a session
func (s *SessionStore) AppendHistory(_ context.Context, sessionID string, batch ports.CommittedBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[sessionID] = append(s.history[sessionID], batch)
	return nil
}

// History returns a session's committed batches, newest first
func (s *SessionStore) History(_ context.Context, sessionID string, limit int) ([]ports.CommittedBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := s.history[sessionID]
	out := make([]ports.CommittedBatch, 0, len(batches))
	for i := len(batches) - 1; i >= 0; i-- {
		out = append(out, batches[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
