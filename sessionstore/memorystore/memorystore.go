// Package memorystore provides an in-memory sessionstore.Store used for
// tests and single-instance deployments. Expiry is lazy: stale records are
// dropped when observed, matching the store-driven TTL semantics of the
// Redis implementation closely enough for the relay's purposes.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/ggoodman/mcp-sse-relay/sessionstore"
)

// Store is an in-memory TTL-keyed existence record.
type Store struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]time.Time)}
}

func (s *Store) Put(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sessionstore.DefaultTTL
	}
	s.mu.Lock()
	s.entries[id] = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(s.entries, id)
		return false, nil
	}
	return true, nil
}

func (s *Store) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sessionstore.DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[id]
	if !ok || time.Now().After(exp) {
		// Nothing live to refresh; the record either never existed or
		// already expired. Not an error on a best-effort path.
		delete(s.entries, id)
		return nil
	}
	s.entries[id] = time.Now().Add(ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

var _ sessionstore.Store = (*Store)(nil)
