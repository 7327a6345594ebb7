// Package persistence writes interview checkpoints and final records.
//
// A Persistence value belongs to one session. Checkpoints are written on a
// ticker while the interview runs; the terminal record is written exactly
// once. Store failures never propagate to the caller: they are logged and
// counted so a storage outage cannot end a live interview.
package persistence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"yuzu/interview/internal/types"
)

const (
	DefaultCheckpointInterval = 60 * time.Second
	writeTimeout              = 10 * time.Second
)

var ErrNotFound = errors.New("record not found")

// Store accepts checkpoints and final records.
type Store interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	SaveRecord(ctx context.Context, r Record) error
}

// RecordReader is implemented by stores that can read records back.
type RecordReader interface {
	GetRecord(ctx context.Context, sessionID string) (Record, error)
	ListRecords(ctx context.Context) ([]Record, error)
}

type Persistence struct {
	store    Store
	interval time.Duration

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	persisted bool
}

// New returns a Persistence writing to store. A nil store discards everything.
func New(store Store, interval time.Duration) *Persistence {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Persistence{store: store, interval: interval}
}

// StartCheckpointing snapshots getState every interval until
// StopCheckpointing or a terminal record is written. Calling it again
// restarts the ticker.
func (p *Persistence) StartCheckpointing(sessionID string, getState func() types.InterviewState) {
	p.StopCheckpointing()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.persisted || p.store == nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop, p.done = stop, done
	go func() {
		defer close(done)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				st := getState()
				if st.Phase.IsTerminal() {
					return
				}
				p.checkpoint(Checkpoint{SessionID: sessionID, SavedAt: time.Now().UTC(), State: st})
			}
		}
	}()
}

func (p *Persistence) StopCheckpointing() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Checkpoint writes one snapshot immediately.
func (p *Persistence) Checkpoint(state types.InterviewState) {
	if p.store == nil {
		return
	}
	p.checkpoint(Checkpoint{SessionID: state.SessionID, SavedAt: time.Now().UTC(), State: state.Clone()})
}

func (p *Persistence) checkpoint(cp Checkpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.store.SaveCheckpoint(ctx, cp); err != nil {
		metricFailures.WithLabelValues("checkpoint").Inc()
		log.Printf("[persist] checkpoint session=%s err=%v", cp.SessionID, err)
		return
	}
	metricWrites.WithLabelValues("checkpoint").Inc()
}

func (p *Persistence) PersistCompleted(state types.InterviewState) {
	p.persist(NewRecord(state, StatusCompleted, "completed", nil))
}

func (p *Persistence) PersistAbandoned(state types.InterviewState, reason string) {
	if reason == "" {
		reason = "abandoned"
	}
	p.persist(NewRecord(state, StatusAbandoned, reason, nil))
}

func (p *Persistence) PersistError(state types.InterviewState, cause error) {
	p.persist(NewRecord(state, StatusError, "error", cause))
}

// Persisted reports whether the terminal record has been handed to the store.
func (p *Persistence) Persisted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persisted
}

func (p *Persistence) persist(r Record) {
	p.mu.Lock()
	if p.persisted {
		p.mu.Unlock()
		log.Printf("[persist] record for session=%s already written, ignoring %s", r.SessionID, r.Status)
		return
	}
	p.persisted = true
	p.mu.Unlock()
	p.StopCheckpointing()
	if p.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	start := time.Now()
	err := p.store.SaveRecord(ctx, r)
	metricWriteMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricFailures.WithLabelValues("record").Inc()
		log.Printf("[persist] record session=%s status=%s err=%v", r.SessionID, r.Status, err)
		return
	}
	metricWrites.WithLabelValues("record").Inc()
	log.Printf("[persist] record session=%s status=%s questions=%d/%d", r.SessionID, r.Status, r.Metadata.CompletedQuestions, r.Metadata.TotalQuestions)
}
