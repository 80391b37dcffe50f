package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/mcp-sse-relay/sessions"
)

type fakeStore struct {
	exists    bool
	existsErr error

	existsCalls atomic.Int64
	refreshed   chan string
}

func newFakeStore(exists bool, existsErr error) *fakeStore {
	return &fakeStore{exists: exists, existsErr: existsErr, refreshed: make(chan string, 8)}
}

func (s *fakeStore) Put(ctx context.Context, id string, ttl time.Duration) error { return nil }

func (s *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	s.existsCalls.Add(1)
	return s.exists, s.existsErr
}

func (s *fakeStore) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	select {
	case s.refreshed <- id:
	default:
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error { return nil }
func (s *fakeStore) Close() error                                { return nil }

type fakeTransport struct {
	ack []byte
	err error
}

func (t *fakeTransport) SessionID() string                            { return "fake" }
func (t *fakeTransport) CreatedAt() time.Time                         { return time.Time{} }
func (t *fakeTransport) State() sessions.State                        { return sessions.StateOpen }
func (t *fakeTransport) Send(ctx context.Context, frame []byte) error { return nil }
func (t *fakeTransport) HandleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	return t.ack, t.err
}
func (t *fakeTransport) Close(ctx context.Context, reason error) {}

func TestRouteMissingSessionID(t *testing.T) {
	store := newFakeStore(true, nil)
	r := New(sessions.NewRegistry(), store)

	_, err := r.Route(context.Background(), "", []byte("payload"))
	if !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("Route() = %v, want ErrMissingSessionID", err)
	}
	if store.existsCalls.Load() != 0 {
		t.Fatal("Route() queried the store for an empty session id")
	}
}

// A session absent from the shared store is expired no matter what the local
// registry says.
func TestRouteExpiredRegardlessOfRegistry(t *testing.T) {
	reg := sessions.NewRegistry()
	if err := reg.Register("s1", &fakeTransport{}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	r := New(reg, newFakeStore(false, nil))

	_, err := r.Route(context.Background(), "s1", []byte("payload"))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Route() = %v, want ErrSessionExpired", err)
	}
}

// A session present in the store but absent locally is the cross-instance
// case and must never collapse into the expired case.
func TestRouteTransportUnreachable(t *testing.T) {
	r := New(sessions.NewRegistry(), newFakeStore(true, nil))

	_, err := r.Route(context.Background(), "s1", []byte("payload"))
	if !errors.Is(err, ErrTransportUnreachable) {
		t.Fatalf("Route() = %v, want ErrTransportUnreachable", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Fatal("ErrTransportUnreachable must be distinct from ErrSessionExpired")
	}
}

// Unknown store state fails closed rather than reading as "not found".
func TestRouteStoreFailure(t *testing.T) {
	reg := sessions.NewRegistry()
	if err := reg.Register("s1", &fakeTransport{}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	r := New(reg, newFakeStore(false, errors.New("connection refused")))

	_, err := r.Route(context.Background(), "s1", []byte("payload"))
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Route() = %v, want *StoreError", err)
	}
}

func TestRouteEndpointFailure(t *testing.T) {
	reg := sessions.NewRegistry()
	if err := reg.Register("s1", &fakeTransport{err: errors.New("boom")}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	r := New(reg, newFakeStore(true, nil))

	_, err := r.Route(context.Background(), "s1", []byte("payload"))
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Route() = %v, want *ProtocolError", err)
	}

	// An endpoint failure fails the call without tearing the session down.
	if _, ok := reg.Lookup("s1"); !ok {
		t.Fatal("endpoint failure removed the transport from the registry")
	}
}

func TestRouteSuccess(t *testing.T) {
	reg := sessions.NewRegistry()
	if err := reg.Register("s1", &fakeTransport{ack: []byte(`{"pong":true}`)}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	store := newFakeStore(true, nil)
	r := New(reg, store, WithSessionTTL(time.Minute))

	ack, err := r.Route(context.Background(), "s1", []byte(`"ping"`))
	if err != nil {
		t.Fatalf("Route() failed: %v", err)
	}
	if string(ack) != `{"pong":true}` {
		t.Fatalf("Route() ack = %q", ack)
	}

	// The TTL refresh is detached; observe it rather than racing it.
	select {
	case id := <-store.refreshed:
		if id != "s1" {
			t.Fatalf("refreshed session %q, want s1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Route() never refreshed the liveness record")
	}
}

func TestRouteBareSuccess(t *testing.T) {
	reg := sessions.NewRegistry()
	if err := reg.Register("s1", &fakeTransport{}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	r := New(reg, newFakeStore(true, nil))

	ack, err := r.Route(context.Background(), "s1", []byte(`{}`))
	if err != nil {
		t.Fatalf("Route() failed: %v", err)
	}
	if ack != nil {
		t.Fatalf("Route() ack = %q, want nil", ack)
	}
}
