// Package registry is the process-wide table of interview sessions.
package registry

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"yuzu/interview/internal/types"
)

var (
	ErrSessionExists        = errors.New("session already exists")
	ErrAtCapacity           = errors.New("session capacity reached")
	ErrUserHasActiveSession = errors.New("user already has an active session")
	ErrNotFound             = errors.New("session not found")
)

const DefaultMaxSessions = 50

// Session is what the registry and the control surface need from a live
// interview.
type Session interface {
	ID() string
	UserID() string
	CreatedAt() time.Time
	Initialize(ctx context.Context) error
	StartInterview() error
	EndInterview(reason string) error
	HandleIncomingAudio(frame []byte)
	SetAudioSink(fn func([]byte))
	Status() types.SessionStatus
	State() types.InterviewState
}

// Factory builds a session that has not connected yet.
type Factory func(sessionID, userID string) (Session, error)

type Registry struct {
	factory  Factory
	max      int
	now      func() time.Time
	onRemove func(sessionID string)

	mu     sync.RWMutex
	byID   map[string]Session
	byUser map[string]string
}

func New(factory Factory, maxSessions int) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Registry{
		factory: factory,
		max:     maxSessions,
		now:     time.Now,
		byID:    make(map[string]Session),
		byUser:  make(map[string]string),
	}
}

// CreateSession builds and registers a session. Capacity counts only
// sessions that have not reached a terminal phase.
func (r *Registry) CreateSession(sessionID, userID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[sessionID]; ok {
		metricRejections.WithLabelValues("duplicate").Inc()
		return nil, ErrSessionExists
	}
	if id, ok := r.byUser[userID]; ok {
		if s, live := r.byID[id]; live && !isTerminal(s) {
			metricRejections.WithLabelValues("user_busy").Inc()
			return nil, ErrUserHasActiveSession
		}
	}
	if r.activeLocked() >= r.max {
		metricRejections.WithLabelValues("capacity").Inc()
		return nil, ErrAtCapacity
	}
	s, err := r.factory(sessionID, userID)
	if err != nil {
		return nil, err
	}
	r.byID[sessionID] = s
	r.byUser[userID] = sessionID
	metricSessions.Set(float64(len(r.byID)))
	log.Printf("[registry] created session=%s user=%s active=%d/%d", sessionID, userID, r.activeLocked(), r.max)
	return s, nil
}

func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	return s, ok
}

// GetByUser returns the user's most recent session.
func (r *Registry) GetByUser(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	s, ok := r.byID[id]
	return s, ok
}

// Remove unregisters a session, abandoning it first if it is still live.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if ok {
		r.removeLocked(s)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.end(s, "removed")
	r.removed(s)
	return true
}

// OnRemove registers fn to run after a session leaves the table. Set it
// before the registry is shared.
func (r *Registry) OnRemove(fn func(sessionID string)) { r.onRemove = fn }

func (r *Registry) removed(s Session) {
	if r.onRemove != nil {
		r.onRemove(s.ID())
	}
}

func (r *Registry) removeLocked(s Session) {
	delete(r.byID, s.ID())
	if r.byUser[s.UserID()] == s.ID() {
		delete(r.byUser, s.UserID())
	}
	metricSessions.Set(float64(len(r.byID)))
}

func (r *Registry) end(s Session, reason string) {
	if isTerminal(s) {
		return
	}
	if err := s.EndInterview(reason); err != nil {
		log.Printf("[registry] end session=%s reason=%s err=%v", s.ID(), reason, err)
	}
}

// List returns sessions ordered by creation time.
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ActiveCount counts sessions that are not in a terminal phase.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, s := range r.byID {
		if !isTerminal(s) {
			n++
		}
	}
	return n
}

func (r *Registry) Capacity() int { return r.max }

// AtCapacity reports whether CreateSession would fail for capacity.
func (r *Registry) AtCapacity() bool { return r.ActiveCount() >= r.max }

// CleanupStale removes every session older than maxAge, abandoning the
// live ones, and returns how many were removed.
func (r *Registry) CleanupStale(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	r.mu.Lock()
	var stale []Session
	for _, s := range r.byID {
		if s.CreatedAt().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		r.removeLocked(s)
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.end(s, "stale")
		r.removed(s)
	}
	if len(stale) > 0 {
		metricCleaned.Add(float64(len(stale)))
		log.Printf("[registry] cleaned %d stale sessions (max_age=%s)", len(stale), maxAge)
	}
	return len(stale)
}

// StartSweeper runs CleanupStale every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.CleanupStale(maxAge)
			}
		}
	}()
}

// Shutdown abandons every live session. The table is left intact so final
// state stays readable.
func (r *Registry) Shutdown(reason string) {
	for _, s := range r.List() {
		r.end(s, reason)
	}
}

func isTerminal(s Session) bool {
	return s.Status().Phase.IsTerminal()
}
