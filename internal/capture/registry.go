package capture

import "sync"

// Registry is the shared map of live capture sessions. It also remembers
// ids whose teardown has been claimed, so a second stop on the same id is
// an idempotent no-op while an id that never existed stays a typed failure.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		closed:   make(map[string]struct{}),
	}
}

func (r *Registry) Create(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Claim marks the id as entering teardown and removes it from lookups made
// by new stop attempts. Returns the session, or false when the id is
// unknown or already claimed.
func (r *Registry) Claim(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, claimed := r.closed[id]; claimed {
		return nil, false
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	r.closed[id] = struct{}{}
	return s, true
}

// Remove drops a fully closed session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.closed[id] = struct{}{}
}

// WasClosed reports whether the id belonged to a session that has been
// stopped (or is stopping).
func (r *Registry) WasClosed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.closed[id]
	return ok
}

// ListActive returns the sessions currently in the Active state.
func (r *Registry) ListActive() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State() == StateActive {
			out = append(out, s)
		}
	}
	return out
}
