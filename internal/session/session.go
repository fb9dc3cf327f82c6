// Package session keeps live flow fields for the HTTP service.
//
// Each Session owns a map and its generated field. Edits go through Update,
// which applies the change to a copy, regenerates the whole field and only
// then swaps the result in, so readers never see a map and field that
// disagree. A failed edit leaves the session as it was.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session: not found")
	// ErrRegistryFull is returned when the registry is at capacity.
	ErrRegistryFull = errors.New("session: registry full")
)

// GenerateHook observes every generation run. err is nil on success.
type GenerateHook func(size int, elapsed time.Duration, reached int, err error)

// Summary describes a session without its cell data.
type Summary struct {
	ID        string     `json:"id"`
	Size      int        `json:"size"`
	Start     grid.Point `json:"start"`
	Goal      grid.Point `json:"goal"`
	Obstacles int        `json:"obstacles"`
	Reached   int        `json:"reached"`
	Version   uint64     `json:"version"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Session is one map and the field generated from it.
type Session struct {
	id  string
	seq uint64

	mu        sync.RWMutex
	m         *grid.Map
	field     *flowfield.Field
	spare     *flowfield.Field // generation target, swapped in on success
	version   uint64
	updatedAt time.Time

	hook GenerateHook
}

// New creates a standalone session outside any registry and generates its
// field. It takes ownership of m.
func New(id string, m *grid.Map, hook GenerateHook) (*Session, error) {
	return newSession(id, 0, m, hook)
}

func newSession(id string, seq uint64, m *grid.Map, hook GenerateHook) (*Session, error) {
	s := &Session{id: id, seq: seq, m: m, hook: hook}

	field, err := flowfield.New(m.Size())
	if err != nil {
		return nil, err
	}
	if err := s.generate(field, m); err != nil {
		return nil, err
	}
	s.field = field
	s.version = 1
	s.updatedAt = time.Now()
	return s, nil
}

// ID returns the registry id.
func (s *Session) ID() string {
	return s.id
}

// Summary returns the current state without cell data.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	return Summary{
		ID:        s.id,
		Size:      s.m.Size(),
		Start:     s.m.Start(),
		Goal:      s.m.Goal(),
		Obstacles: s.m.ObstacleCount(),
		Reached:   s.field.Reached(),
		Version:   s.version,
		UpdatedAt: s.updatedAt,
	}
}

// Snapshot returns the summary and a copy of the direction grid, taken
// under one lock so the two agree.
func (s *Session) Snapshot() (Summary, [][]flowfield.Direction) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked(), s.field.Snapshot()
}

// View calls fn with the current map and field under a read lock. fn must not
// keep either past its return or modify them.
func (s *Session) View(fn func(m *grid.Map, f *flowfield.Field) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.m, s.field)
}

// Update applies fn to a copy of the map and regenerates the field from it.
// If fn or generation fails nothing changes and the error is returned.
func (s *Session) Update(fn func(m *grid.Map) error) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.m.Clone()
	if err := fn(next); err != nil {
		return s.summaryLocked(), err
	}

	if s.spare == nil {
		spare, err := flowfield.New(next.Size())
		if err != nil {
			return s.summaryLocked(), err
		}
		s.spare = spare
	}
	if err := s.generate(s.spare, next); err != nil {
		return s.summaryLocked(), err
	}

	s.m = next
	s.field, s.spare = s.spare, s.field
	s.version++
	s.updatedAt = time.Now()
	return s.summaryLocked(), nil
}

func (s *Session) generate(f *flowfield.Field, m *grid.Map) error {
	started := time.Now()
	err := f.Generate(m)
	elapsed := time.Since(started)

	if s.hook != nil {
		s.hook(m.Size(), elapsed, f.Reached(), err)
	}

	logger := log.WithFields(log.Fields{
		"session": s.id,
		"size":    m.Size(),
		"elapsed": elapsed,
	})
	if err != nil {
		logger.WithError(err).Debug("Flow field generation rejected")
		return fmt.Errorf("generate %s: %w", s.id, err)
	}
	logger.WithField("reached", f.Reached()).Debug("Flow field generated")
	return nil
}
