// Package registry provides a minimal name -> session lookup. It exists
// here only so the HTTP entrypoint in this repository has something to
// look sessions up in; a production deployment's registry would
// additionally own agent handshake, auth, and persistence, none of which
// this package attempts.
package registry

import (
	"sync"

	"github.com/blaxel-ai/session-core/internal/session"
)

// Registry maps session names to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// GetOrCreate returns the named session, creating it if this is the first
// reference. created reports whether this call created a new session.
func (r *Registry) GetOrCreate(name string) (sess *session.Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[name]; ok {
		return existing, false
	}
	sess = session.New(name)
	r.sessions[name] = sess
	return sess, true
}

// Lookup returns the named session if it exists.
func (r *Registry) Lookup(name string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[name]
	return sess, ok
}

// Remove drops a session from the registry. Callers are expected to have
// already fired its shutdown signal and waited out its subscribers.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.sessions, name)
	r.mu.Unlock()
}
