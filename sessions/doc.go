// Package sessions defines the core session abstractions shared by the relay
// transports and application code. A session is a logical conversation
// between a client and an application endpoint, identified by an opaque
// token and bound to exactly one live push channel at a time.
//
// Layers & Roles
//
//	Transport -> owns one push channel's write/close lifecycle
//	Registry  -> process-local authority mapping session ids to live transports
//	Endpoint  -> opaque application peer consuming/producing protocol messages
//
// # Registry Scope
//
// The Registry is deliberately process-local and carries no persistence: in a
// horizontally scaled deployment only the instance that accepted the push
// stream can reach a session's transport. Calls that land on any other
// instance fail with a distinguishable "transport unreachable" outcome
// rather than being proxied. The shared liveness record lives in the
// sessionstore package and answers the weaker question of whether a
// transport existed anywhere recently.
//
// # Lifecycle
//
// A transport is created at stream-open, registered, and stays StateOpen
// while the push channel is writable. Teardown (explicit close, write
// failure, or peer disconnect) moves it through StateClosing to StateClosed
// and fires its teardown callback exactly once, synchronously, so registry
// and store cleanup can never be skipped.
package sessions
