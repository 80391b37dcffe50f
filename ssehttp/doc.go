// Package ssehttp bridges a stateless request/response transport with a
// server-push streaming channel. It mounts as a standard net/http handler
// exposing two endpoints:
//
//   - GET (stream-open): establishes a long-lived Server-Sent Events
//     response, allocates a session id, and advertises the call endpoint to
//     the client as the first event. Protocol frames are pushed down this
//     channel until teardown.
//   - POST (call): carries one protocol message correlated to a session by
//     the sessionId query parameter. The message is validated against the
//     shared liveness store, routed to the locally registered transport, and
//     forwarded to the application endpoint.
//
// Construction
//
//	h, err := ssehttp.New(
//	    sessions.NewRegistry(),  // process-local transport registry
//	    store,                   // sessionstore.Store (redisstore for scale-out)
//	    endpoint,                // sessions.Endpoint application handler
//	)
//
// # Scaling
//
// Every instance shares one sessionstore.Store but owns its own Registry.
// A call that lands on an instance other than the one holding the session's
// push stream fails with a distinguishable 400 rather than being proxied;
// the client reconnects to obtain a session on a reachable instance. Message
// delivery across instance failures is out of scope.
//
// # Teardown
//
// Explicit close, a push write failure, or the peer disconnecting all funnel
// through the transport's idempotent close: the registry entry is removed
// and the liveness record deleted, each best-effort, both always attempted.
// Records left behind by an unclean exit expire via the store TTL.
package ssehttp
