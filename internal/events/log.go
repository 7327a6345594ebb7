// Package events keeps a bounded audit trail per interview session:
// transcripts, analyses, decisions, instructions and phase changes.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxPerSession = 200
	TypeTruncated        = "events_truncated"
)

type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Log struct {
	mu     sync.RWMutex
	max    int
	bySess map[string][]Event
	// dropped counts events discarded per session so far
	dropped map[string]int
}

func NewLog(maxPerSession int) *Log {
	if maxPerSession <= 1 {
		maxPerSession = DefaultMaxPerSession
	}
	return &Log{max: maxPerSession, bySess: make(map[string][]Event), dropped: make(map[string]int)}
}

// Append records an event. Past the cap the oldest events are dropped and
// one truncation marker at the tail keeps the total at the cap.
func (l *Log) Append(sessionID, typ string, payload map[string]any) Event {
	evt := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	evs := append(l.bySess[sessionID], evt)
	if len(evs) > l.max {
		kept := make([]Event, 0, len(evs))
		for _, e := range evs {
			if e.Type != TypeTruncated {
				kept = append(kept, e)
			}
		}
		drop := len(kept) - (l.max - 1)
		l.dropped[sessionID] += drop
		kept = append(kept[drop:], Event{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Type:      TypeTruncated,
			Timestamp: time.Now().UTC(),
			Payload:   map[string]any{"dropped": l.dropped[sessionID], "kept": l.max - 1},
		})
		evs = kept
	}
	l.bySess[sessionID] = evs
	return evt
}

func (l *Log) List(sessionID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.bySess[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Forget drops a session's trail.
func (l *Log) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.bySess, sessionID)
	delete(l.dropped, sessionID)
	l.mu.Unlock()
}
