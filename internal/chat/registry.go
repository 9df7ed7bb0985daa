package chat

import "sync"

// Registry owns the mapping from normalized display name to the
// session holding it. A normalized name maps to at most one session at
// any time; Claim performs the taken-check and insert atomically so
// two racing claims for the same name produce exactly one winner.
type Registry struct {
	mu    sync.RWMutex
	names map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]*Session)}
}

// IsTaken reports whether a normalized name is currently registered.
func (r *Registry) IsTaken(normalized string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[normalized]
	return ok
}

// Claim registers the session under the normalized name. It returns
// false without modifying the registry if the name is already held.
func (r *Registry) Claim(normalized string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.names[normalized]; taken {
		return false
	}
	r.names[normalized] = s
	return true
}

// Remove drops the normalized name. Removing an absent name is a
// no-op, which keeps session termination idempotent.
func (r *Registry) Remove(normalized string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, normalized)
}

// Snapshot returns the registered sessions as of the call. The slice
// is a copy; iterating it never races with concurrent claims/removals,
// and callers can perform sends without holding the registry lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.names))
	for _, s := range r.names {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
