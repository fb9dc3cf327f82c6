package session

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"flow-field/internal/grid"
)

// Config bounds a registry.
type Config struct {
	// MaxSessions caps live sessions; 0 means unlimited.
	MaxSessions int
	// OnGenerate observes every generation run.
	OnGenerate GenerateHook
}

// Registry maps ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextSeq  atomic.Uint64
	cfg      Config
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// Create registers a new session for m and generates its field. The registry
// takes ownership of m.
func (r *Registry) Create(m *grid.Map) (*Session, error) {
	if r.full() {
		return nil, ErrRegistryFull
	}

	seq := r.nextSeq.Add(1)
	id := fmt.Sprintf("f%d", seq)
	s, err := newSession(id, seq, m, r.cfg.OnGenerate)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Capacity may have been taken while generating
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrRegistryFull
	}
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"session": id,
		"size":    m.Size(),
		"active":  count,
	}).Info("Flow field session created")
	return s, nil
}

func (r *Registry) full() bool {
	if r.cfg.MaxSessions <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) >= r.cfg.MaxSessions
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete removes the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	log.WithField("session", id).Info("Flow field session deleted")
	return nil
}

// List returns summaries in creation order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].seq < sessions[j].seq
	})

	out := make([]Summary, len(sessions))
	for i, s := range sessions {
		out[i] = s.Summary()
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
