package narration

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"bharatvista/pkg/model"
)

// MonumentSource resolves monuments by id.
type MonumentSource interface {
	Get(id string) (*model.Monument, bool)
}

// Registry owns the live sessions of mounted views. A session that is not touched
// for the idle TTL is evicted, and every eviction closes the session so narration
// never outlives its view.
type Registry struct {
	monuments MonumentSource
	defaults  func() Options
	sessions  *cache.Cache
	logger    *slog.Logger

	mu    sync.Mutex
	holds map[string]int
}

// NewRegistry creates a registry. defaults is called for every new session so that
// persisted preferences (volume, language) are picked up. A non-positive idleTTL
// disables expiry.
func NewRegistry(monuments MonumentSource, defaults func() Options, idleTTL time.Duration) *Registry {
	ttl, sweep := cache.NoExpiration, time.Duration(0)
	if idleTTL > 0 {
		ttl, sweep = idleTTL, idleTTL/2
		if sweep < time.Second {
			sweep = time.Second
		}
	}
	r := &Registry{
		monuments: monuments,
		defaults:  defaults,
		sessions:  cache.New(ttl, sweep),
		logger:    slog.With("component", "narration_registry"),
		holds:     make(map[string]int),
	}
	r.sessions.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
			r.logger.Debug("Narration session evicted", "session", id)
		}
	})
	return r
}

// Open creates a session for the monument and returns its id.
func (r *Registry) Open(monumentID string) (string, *Session, error) {
	m, ok := r.monuments.Get(monumentID)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrMonumentNotFound, monumentID)
	}
	var opts Options
	if r.defaults != nil {
		opts = r.defaults()
	}
	s := NewSession(m, opts)
	id := uuid.NewString()
	r.sessions.SetDefault(id, s)
	r.logger.Info("Narration session opened", "session", id, "monument", m.ID, "mode", s.Mode())
	return id, s, nil
}

// Get returns a live session and extends its idle deadline.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	s := v.(*Session)
	if r.holds[id] == 0 {
		r.sessions.SetDefault(id, s)
	}
	// The janitor may have evicted (and closed) it between the lookup and the put.
	if s.Closed() {
		r.sessions.Delete(id)
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// Hold keeps a session from idling out until release is called. Holds nest; the
// idle deadline restarts when the last one is released.
func (r *Registry) Hold(id string) (release func(), err error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if _, ok := r.sessions.Get(id); !ok || s.Closed() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	r.holds[id]++
	r.sessions.Set(id, s, cache.NoExpiration)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.holds[id]--
			if r.holds[id] > 0 {
				return
			}
			delete(r.holds, id)
			if _, ok := r.sessions.Get(id); ok && !s.Closed() {
				r.sessions.SetDefault(id, s)
			}
		})
	}, nil
}

// Close tears down one session. It reports whether the session existed.
func (r *Registry) Close(id string) bool {
	if _, ok := r.sessions.Get(id); !ok {
		return false
	}
	r.sessions.Delete(id)
	return true
}

// CloseAll tears down every live session.
func (r *Registry) CloseAll() {
	r.sessions.DeleteExpired()
	for id := range r.sessions.Items() {
		r.sessions.Delete(id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int { return r.sessions.ItemCount() }
