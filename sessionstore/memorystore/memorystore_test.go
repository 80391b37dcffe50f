package memorystore

import (
	"context"
	"testing"
	"time"
)

func TestPutExistsDelete(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "s1")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if ok {
		t.Fatal("Exists() true for a session that was never put")
	}

	if err := s.Put(ctx, "s1", time.Minute); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	ok, err = s.Exists(ctx, "s1")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !ok {
		t.Fatal("Exists() false right after Put()")
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if ok, _ := s.Exists(ctx, "s1"); ok {
		t.Fatal("Exists() true after Delete()")
	}

	// Deleting an absent id must be safe.
	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() of absent id failed: %v", err)
	}
}

// TestTTLExpiry covers the property that a session with no calls for longer
// than its TTL becomes absent without explicit teardown.
func TestTTLExpiry(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "s1", 50*time.Millisecond); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if ok, _ := s.Exists(ctx, "s1"); ok {
		t.Fatal("Exists() true after the TTL elapsed")
	}
}

// TestRefreshKeepsAlive covers the property that a session refreshed at
// intervals shorter than the TTL never expires.
func TestRefreshKeepsAlive(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	const ttl = 120 * time.Millisecond

	if err := s.Put(ctx, "s1", ttl); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	// Refresh well within each TTL window, over several multiples of it.
	for i := 0; i < 8; i++ {
		time.Sleep(40 * time.Millisecond)
		if err := s.Refresh(ctx, "s1", ttl); err != nil {
			t.Fatalf("Refresh() failed: %v", err)
		}
	}

	if ok, _ := s.Exists(ctx, "s1"); !ok {
		t.Fatal("Exists() false while the session was being refreshed")
	}

	// Stop refreshing; the record must now expire.
	time.Sleep(ttl + 60*time.Millisecond)
	if ok, _ := s.Exists(ctx, "s1"); ok {
		t.Fatal("Exists() true after refreshes stopped")
	}
}

func TestRefreshAbsent(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	// Refreshing an absent or already-expired record is a best-effort no-op.
	if err := s.Refresh(ctx, "never", time.Minute); err != nil {
		t.Fatalf("Refresh() of absent id failed: %v", err)
	}
	if ok, _ := s.Exists(ctx, "never"); ok {
		t.Fatal("Refresh() resurrected an absent record")
	}
}
