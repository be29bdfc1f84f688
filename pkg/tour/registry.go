package tour

import (
	"log/slog"
	"sync"
	"time"
)

// cleanupInterval is how often Get() triggers lazy eviction of idle sessions.
const cleanupInterval = 100

type regEntry struct {
	session    *Session
	lastAccess time.Time
}

// Registry is a thread-safe session registry. Each tour ID maps to one
// Session, created on first access. Sessions idle longer than the TTL are
// evicted and torn down.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*regEntry
	ttl      time.Duration
	newFn    func(tourID string) (*Session, error)
	getCalls int
}

// NewRegistry creates a registry that evicts sessions inactive longer than
// ttl. newFn builds a session when a tour ID is seen for the first time.
func NewRegistry(ttl time.Duration, newFn func(tourID string) (*Session, error)) *Registry {
	return &Registry{
		entries: make(map[string]*regEntry),
		ttl:     ttl,
		newFn:   newFn,
	}
}

// Get returns the session for the given tour, creating it if needed.
// Each call refreshes the session's last-access timestamp.
func (r *Registry) Get(tourID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.getCalls++
	if r.getCalls%cleanupInterval == 0 {
		r.cleanupLocked()
	}

	e, ok := r.entries[tourID]
	if !ok {
		sess, err := r.newFn(tourID)
		if err != nil {
			return nil, err
		}
		e = &regEntry{session: sess}
		r.entries[tourID] = e
	}
	e.lastAccess = time.Now()
	return e.session, nil
}

// Peek returns the session without creating or refreshing it.
func (r *Registry) Peek(tourID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tourID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Remove tears down and drops a session.
func (r *Registry) Remove(tourID string) {
	r.mu.Lock()
	e, ok := r.entries[tourID]
	delete(r.entries, tourID)
	r.mu.Unlock()

	if ok {
		e.session.teardown()
	}
}

// Cleanup evicts all sessions that have been inactive longer than the TTL.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()
}

func (r *Registry) cleanupLocked() {
	cutoff := time.Now().Add(-r.ttl)
	for id, e := range r.entries {
		if e.lastAccess.Before(cutoff) {
			slog.Debug("Tour registry: evicting idle session", "tour", id)
			delete(r.entries, id)
			go e.session.teardown()
		}
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown tears down every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*regEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.session.teardown()
	}
}
