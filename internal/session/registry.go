package session

import (
	"sort"
	"sync"
)

// Factory builds the session for a workflow on first use.
type Factory func(workflowID string) *Session

// Registry maps workflow ids to their live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
}

// NewRegistry returns an empty registry using factory for new sessions.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Get returns the session for workflowID, creating it if needed.
func (r *Registry) Get(workflowID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[workflowID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[workflowID]; ok {
		return s
	}
	s = r.factory(workflowID)
	r.sessions[workflowID] = s
	return s
}

// Lookup returns an existing session.
func (r *Registry) Lookup(workflowID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[workflowID]
	return s, ok
}

// Remove drops a session. Unsaved edits are lost.
func (r *Registry) Remove(workflowID string) {
	r.mu.Lock()
	delete(r.sessions, workflowID)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the workflow ids with a live session, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
