// Package router correlates inbound calls to their session transports. It
// validates a call against the shared liveness record, resolves the
// transport via the process-local registry, forwards the payload, and
// translates faults into a taxonomy the HTTP layer can map to status codes.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-sse-relay/sessions"
	"github.com/ggoodman/mcp-sse-relay/sessionstore"
)

var (
	// ErrMissingSessionID means the call carried no session id.
	ErrMissingSessionID = errors.New("missing session id")

	// ErrSessionExpired means no liveness record exists for the session: it
	// was never opened, was torn down, or expired via TTL.
	ErrSessionExpired = errors.New("session unknown or expired")

	// ErrTransportUnreachable means a liveness record exists but the
	// transport is not registered in this process. This is the
	// cross-instance signature fault and is deliberately distinct from
	// ErrSessionExpired so operators can tell "unknown session" from
	// "wrong instance".
	ErrTransportUnreachable = errors.New("session transport not reachable from this instance")
)

// StoreError wraps a shared-store failure on the critical validation path.
// The router fails closed on unknown store state rather than treating it as
// "not found".
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("session store unavailable: %v", e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// ProtocolError wraps a failure from the application endpoint while
// handling a forwarded payload. It fails the call but does not tear down
// the session.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("endpoint failed to handle message: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// refreshTimeout bounds the detached TTL refresh so it cannot pile up
// goroutines behind a slow store.
const refreshTimeout = 5 * time.Second

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the slog logger used for best-effort path failures.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithSessionTTL sets the TTL applied when refreshing liveness records.
// Defaults to sessionstore.DefaultTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(r *Router) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// Router routes inbound call payloads to locally registered transports.
type Router struct {
	registry *sessions.Registry
	store    sessionstore.Store
	log      *slog.Logger
	ttl      time.Duration
}

// New constructs a Router over the given registry and store.
func New(registry *sessions.Registry, store sessionstore.Store, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		store:    store,
		log:      slog.Default(),
		ttl:      sessionstore.DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route validates sessionID, forwards payload to its transport, and returns
// the endpoint's synchronous acknowledgment (nil for a bare success).
//
// Fault mapping: empty id -> ErrMissingSessionID; store failure ->
// *StoreError; no liveness record -> ErrSessionExpired; record present but
// no local transport -> ErrTransportUnreachable; endpoint failure ->
// *ProtocolError. A call racing its session's teardown is rejected with
// ErrTransportUnreachable rather than queued.
func (r *Router) Route(ctx context.Context, sessionID string, payload []byte) ([]byte, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	ok, err := r.store.Exists(ctx, sessionID)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	if !ok {
		return nil, ErrSessionExpired
	}

	// Sliding expiry: detached so a slow or failing store never blocks or
	// fails the call. The record still expires naturally if this is lost.
	go r.refresh(context.WithoutCancel(ctx), sessionID)

	t, ok := r.registry.Lookup(sessionID)
	if !ok {
		return nil, ErrTransportUnreachable
	}

	ack, err := t.HandleMessage(ctx, payload)
	if err != nil {
		return nil, &ProtocolError{Err: err}
	}
	return ack, nil
}

func (r *Router) refresh(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	if err := r.store.Refresh(ctx, sessionID, r.ttl); err != nil {
		r.log.WarnContext(ctx, "session.refresh.fail",
			slog.String("session_id", sessionID),
			slog.String("err", err.Error()))
	}
}
