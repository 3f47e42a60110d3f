package chat

import "sync"

// Registry maps user ids to their live sessions on this process. A user may
// hold several sessions at once (one per device).
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]map[string]*Session)}
}

// Register adds s as a delivery target for userID. Earlier sessions of the
// same user stay registered.
func (r *Registry) Register(userID int64, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]*Session)
		r.users[userID] = set
	}
	set[s.ID] = s
}

// Remove drops s from userID's sessions. It only removes the exact session
// given, so a late disconnect of an old session cannot erase a newer one.
// It reports whether anything was removed.
func (r *Registry) Remove(userID int64, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if cur, ok := set[s.ID]; !ok || cur != s {
		return false
	}
	delete(set, s.ID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
	return true
}

// Resolve returns userID's live sessions. An empty result means the user has
// no open connection here.
func (r *Registry) Resolve(userID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.users {
		n += len(set)
	}
	return n
}
