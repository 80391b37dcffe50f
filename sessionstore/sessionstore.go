// Package sessionstore defines the shared, externally visible
// session-existence record consumed by the relay. A record means "a
// transport for this session existed somewhere recently", not "is reachable
// from this process"; routing additionally requires the local registry hit.
//
// All operations are best-effort network calls that can fail independently
// of local state. Callers decide per call site whether a failure is on the
// critical validation path (fail closed) or best-effort (log and move on);
// see the router package for the policy.
package sessionstore

import (
	"context"
	"time"
)

// DefaultTTL is the liveness record lifetime applied when no TTL is
// configured. It is the system's only expiry mechanism for sessions
// abandoned without a clean close.
const DefaultTTL = time.Hour

// Store records session liveness visibly to every process instance.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put creates (or replaces) the liveness record for id with the given
	// TTL. Called once at stream-open.
	Put(ctx context.Context, id string, ttl time.Duration) error

	// Exists reports whether a liveness record for id is present. A false
	// return with nil error means the session is unknown or expired; an
	// error means the store's state is unknown and callers on the
	// validation path must fail closed.
	Exists(ctx context.Context, id string) (bool, error)

	// Refresh extends the liveness record's TTL. Called on each
	// successfully routed call; failures are acceptable since the record
	// will still expire naturally.
	Refresh(ctx context.Context, id string, ttl time.Duration) error

	// Delete removes the liveness record. Safe to call for an absent id.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the store.
	Close() error
}
