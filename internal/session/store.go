// Package session holds live practice sessions in memory.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/typestream/internal/apperr"
	"github.com/verte-zerg/typestream/internal/clock"
	"github.com/verte-zerg/typestream/internal/model"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = apperr.New(apperr.CodeSessionNotFound, "Session not found")

// Store is the session store contract used by the API and the stream protocol.
type Store interface {
	Create() model.Session
	CreateWithText(text string, wordCount int) model.Session
	Get(id string) (model.Session, error)
	Update(id string, patch Patch) (model.Session, error)
	Modify(id string, fn func(*model.Session) error) (model.Session, error)
	Delete(id string) bool
}

// Patch lists the fields an update may change. Nil fields are left untouched.
type Patch struct {
	Text       *string
	Input      *string
	Status     *model.Status
	WordCount  *int
	StartTime  *time.Time
	EndTime    *time.Time
	LastUpdate *time.Time
	LastError  *string
	// ClearError resets LastError to null.
	ClearError bool
}

func (p Patch) apply(s *model.Session) {
	if p.Text != nil {
		s.Text = *p.Text
	}
	if p.Input != nil {
		s.Input = *p.Input
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.WordCount != nil {
		s.WordCount = *p.WordCount
	}
	if p.StartTime != nil {
		s.StartTime = timePtr(*p.StartTime)
	}
	if p.EndTime != nil {
		s.EndTime = timePtr(*p.EndTime)
	}
	if p.LastUpdate != nil {
		s.LastUpdate = timePtr(*p.LastUpdate)
	}
	if p.ClearError {
		s.LastError = nil
	}
	if p.LastError != nil {
		msg := *p.LastError
		s.LastError = &msg
	}
}

type entry struct {
	mu      sync.Mutex
	session model.Session
	touched time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	clock   clock.Clock
	newID   func() string
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the clock used for creation and touch times.
func WithClock(c clock.Clock) Option {
	return func(s *MemoryStore) {
		s.clock = c
	}
}

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *MemoryStore) {
		s.newID = fn
	}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		clock:   clock.System{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a new session in the initialized state.
func (s *MemoryStore) Create() model.Session {
	return s.CreateWithText("", 0)
}

// CreateWithText allocates a new session that already carries its practice text.
func (s *MemoryStore) CreateWithText(text string, wordCount int) model.Session {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, exists := s.entries[id]; !exists {
			break
		}
		id = s.newID()
	}
	sess := model.Session{
		ID:        id,
		Text:      text,
		Status:    model.StatusInitialized,
		WordCount: wordCount,
		CreatedAt: now,
	}
	s.entries[id] = &entry{session: sess, touched: now}
	return cloneSession(sess)
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(id string) (model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return model.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.session), nil
}

// Update merges patch into the session and returns the result.
func (s *MemoryStore) Update(id string, patch Patch) (model.Session, error) {
	return s.Modify(id, func(sess *model.Session) error {
		patch.apply(sess)
		return nil
	})
}

// Modify runs fn on the session under its lock. Changes are kept only when fn
// returns nil. The id cannot be changed.
func (s *MemoryStore) Modify(id string, fn func(*model.Session) error) (model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return model.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := cloneSession(e.session)
	if err := fn(&working); err != nil {
		return cloneSession(e.session), err
	}
	working.ID = e.session.ID
	e.session = working
	e.touched = s.clock.Now()
	return cloneSession(working), nil
}

// Delete removes the session and reports whether it existed.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes sessions not touched within ttl and returns their ids.
func (s *MemoryStore) Sweep(now time.Time, ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, e := range s.entries {
		e.mu.Lock()
		stale := e.touched.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(s.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return e, nil
}

func cloneSession(s model.Session) model.Session {
	out := s
	out.StartTime = clonePtr(s.StartTime)
	out.EndTime = clonePtr(s.EndTime)
	out.LastUpdate = clonePtr(s.LastUpdate)
	if s.LastError != nil {
		msg := *s.LastError
		out.LastError = &msg
	}
	return out
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
