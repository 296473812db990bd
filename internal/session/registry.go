package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-monitor/internal/overlay"
)

// Session is a registered controller together with the feed that reports
// the rendered size of its result image.
type Session struct {
	*Controller
	Feed      *overlay.ResizeFeed
	CreatedAt time.Time
}

// Factory builds the collaborators for a new session. Resize is filled in by the registry.
type Factory func(id string) (Options, error)

// Registry holds the live sessions, one per mounted view.
type Registry struct {
	factory  Factory
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// Create builds and registers a new idle session.
func (r *Registry) Create() (*Session, error) {
	id := uuid.New().String()

	var opts Options
	if r.factory != nil {
		var err error
		opts, err = r.factory(id)
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
	}

	feed := overlay.NewResizeFeed()
	opts.Resize = feed

	s := &Session{
		Controller: New(id, opts),
		Feed:       feed,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return s, nil
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Delete disposes and removes a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Dispose()
	}
	return ok
}

// List returns all sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Close disposes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}
