package sessions

import "sync"

// Registry is the process-local mapping from session id to live Transport.
// It is the only authority on whether a transport is reachable from this
// process instance. A Registry carries no persistence: entries exist only
// between Register and Remove within one process lifetime.
//
// Construct one per process at startup and inject it into the components
// that need it; drain it via Range at process stop.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register binds id to t. It returns ErrDuplicateSession if id is already
// bound, which callers should treat as an invariant violation given unique
// id generation.
func (r *Registry) Register(id string, t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[id]; exists {
		return ErrDuplicateSession
	}
	r.transports[id] = t
	return nil
}

// Lookup returns the transport bound to id, if any. Absence is a normal
// outcome: in a multi-instance deployment the session may be live on another
// instance.
func (r *Registry) Lookup(id string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

// Remove erases the binding for id. It is safe to call for an id that is
// not bound.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

// Len reports the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports)
}

// Range calls f for each binding until f returns false. It operates on a
// snapshot so f may register or remove entries. Intended for process-stop
// drains; the registry is not iterated during normal routing.
func (r *Registry) Range(f func(id string, t Transport) bool) {
	r.mu.RLock()
	snapshot := make(map[string]Transport, len(r.transports))
	for id, t := range r.transports {
		snapshot[id] = t
	}
	r.mu.RUnlock()

	for id, t := range snapshot {
		if !f(id, t) {
			return
		}
	}
}
