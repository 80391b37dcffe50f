package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransportClosed is returned by Send once the push channel has been
	// closed, whether by explicit teardown or a peer disconnect.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDuplicateSession indicates a Register call for an id that is already
	// bound. Session ids are generated with enough entropy that this is an
	// invariant violation, not a retryable condition.
	ErrDuplicateSession = errors.New("session id already registered")
)

// State is the lifecycle state of a session's transport as seen by the
// process that owns it.
type State string

const (
	// StateOpen means the push channel is writable and registered.
	StateOpen State = "open"
	// StateClosing means teardown has been triggered but not yet completed.
	StateClosing State = "closing"
	// StateClosed means the transport is fully torn down; local and shared
	// records are being (or have been) removed.
	StateClosed State = "closed"
)

// Session is the read/push view of a live session handed to application
// code. It is safe for concurrent use; concurrent Send calls are serialized
// by the underlying transport.
type Session interface {
	// SessionID returns the opaque token identifying this session.
	SessionID() string

	// CreatedAt returns the time the session's push channel was opened.
	CreatedAt() time.Time

	// State reports the transport's current lifecycle state.
	State() State

	// Send pushes one bounded-size frame down the session's channel. It
	// returns ErrTransportClosed if the channel is no longer writable. A
	// write failure against a live channel tears the session down.
	Send(ctx context.Context, frame []byte) error
}

// Transport owns the write/close lifecycle of one session's push channel.
// It is held by the Registry for its whole lifetime; the Registry entry is
// removed by the transport's teardown callback.
type Transport interface {
	Session

	// HandleMessage forwards one inbound call payload to the application
	// endpoint and returns its synchronous acknowledgment, if any. This is
	// the single required inbound-forwarding operation; there is no
	// alternative delivery path.
	HandleMessage(ctx context.Context, payload []byte) ([]byte, error)

	// Close triggers teardown. The first call transitions the transport
	// through StateClosing to StateClosed and invokes the registered
	// teardown callback synchronously before returning; subsequent calls
	// are no-ops. reason may be nil for a clean close.
	Close(ctx context.Context, reason error)
}

// Endpoint is the application-level peer that consumes protocol messages
// arriving over a session and produces any responses. Implementations may
// push additional frames asynchronously via sess.Send for as long as the
// session remains open.
type Endpoint interface {
	HandleMessage(ctx context.Context, sess Session, payload []byte) ([]byte, error)
}

// EndpointFunc adapts a function to the Endpoint interface.
type EndpointFunc func(ctx context.Context, sess Session, payload []byte) ([]byte, error)

func (f EndpointFunc) HandleMessage(ctx context.Context, sess Session, payload []byte) ([]byte, error) {
	return f(ctx, sess, payload)
}
