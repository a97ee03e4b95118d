// Package memory keeps wizard state in process memory. It backs tests and
// the ephemeral store driver.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
)

// Store is an in-process storage.Store.
type Store struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{values: map[string]map[string][]byte{}}
}

// Get returns a copy of the stored value.
func (s *Store) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, storage.ErrNotConfigured
	}
	value, ok := s.values[strings.TrimSpace(sessionID)][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set stores a copy of value.
func (s *Store) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	bucket, ok := s.values[sessionID]
	if !ok {
		bucket = map[string][]byte{}
		s.values[sessionID] = bucket
	}
	bucket[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes keys.
func (s *Store) Remove(ctx context.Context, sessionID string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrNotConfigured
	}
	bucket := s.values[strings.TrimSpace(sessionID)]
	for _, key := range keys {
		delete(bucket, key)
	}
	return nil
}

// Close marks the store unusable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
