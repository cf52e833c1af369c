package httpapi

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"fixit/internal/core"
)

// Session is one customer's form, addressed by a ULID.
type Session struct {
	ID        string
	Machine   *core.Machine
	CreatedAt time.Time

	lastSeen time.Time
}

// Registry holds live sessions in memory.
type Registry struct {
	newMachine func() *core.Machine
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry that builds machines with newMachine.
func NewRegistry(newMachine func() *core.Machine) *Registry {
	return &Registry{
		newMachine: newMachine,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:        ulid.Make().String(),
		Machine:   r.newMachine(),
		CreatedAt: now,
		lastSeen:  now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session and marks it as seen.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.now()
	}
	return s, ok
}

// Delete closes and forgets the session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Machine.Close()
	}
	return ok
}

// Sweep closes sessions idle for longer than maxIdle and returns how many went.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Machine.Close()
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Machine.Close()
	}
}
