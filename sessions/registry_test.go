package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubTransport struct {
	id string
}

func (s *stubTransport) SessionID() string                           { return s.id }
func (s *stubTransport) CreatedAt() time.Time                        { return time.Time{} }
func (s *stubTransport) State() State                                { return StateOpen }
func (s *stubTransport) Send(ctx context.Context, frame []byte) error { return nil }
func (s *stubTransport) HandleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	return nil, nil
}
func (s *stubTransport) Close(ctx context.Context, reason error) {}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	st := &stubTransport{id: "s1"}

	if err := r.Register("s1", st); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	got, ok := r.Lookup("s1")
	if !ok {
		t.Fatal("Lookup() missed a registered session")
	}
	if got != Transport(st) {
		t.Fatalf("Lookup() returned wrong transport: %v", got)
	}

	if _, ok := r.Lookup("absent"); ok {
		t.Fatal("Lookup() returned a transport for an unknown id")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("s1", &stubTransport{id: "s1"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := r.Register("s1", &stubTransport{id: "s1"}); err != ErrDuplicateSession {
		t.Fatalf("Register() duplicate: got %v, want ErrDuplicateSession", err)
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("s1", &stubTransport{id: "s1"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	r.Remove("s1")
	if _, ok := r.Lookup("s1"); ok {
		t.Fatal("Lookup() hit after Remove()")
	}

	// Removing an absent id must be safe.
	r.Remove("s1")
	r.Remove("never-registered")

	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			if err := r.Register(id, &stubTransport{id: id}); err != nil {
				t.Errorf("Register(%s) failed: %v", id, err)
				return
			}
			if _, ok := r.Lookup(id); !ok {
				t.Errorf("Lookup(%s) missed", id)
			}
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 25 {
		t.Fatalf("Len() = %d, want 25", r.Len())
	}
}

func TestRegistryRange(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Register(id, &stubTransport{id: id}); err != nil {
			t.Fatalf("Register(%s) failed: %v", id, err)
		}
	}

	seen := map[string]bool{}
	r.Range(func(id string, tr Transport) bool {
		seen[id] = true
		// Mutating during Range must not deadlock.
		r.Remove(id)
		return true
	})

	if len(seen) != 3 {
		t.Fatalf("Range visited %d entries, want 3", len(seen))
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after removals, want 0", r.Len())
	}
}
