package floor

import (
	"sync"
	"time"
)

const (
	DefaultMinRMS   = 500.0
	DefaultGuard    = 300 * time.Millisecond
	DefaultMinStart = 2
)

// Decision represents the action the floor manager wants to take.
type Decision struct {
	ShouldInterrupt bool
	TurnID          uint64
	Reason          string // e.g., "barge_in"
}

type Config struct {
	MinRMS   float64       // frames quieter than this never count as speech
	Guard    time.Duration // ignore user audio this long after the AI starts a turn
	MinStart int           // consecutive loud frames before interrupting
}

// Manager tracks who holds the floor: the AI while it is streaming a turn,
// the user otherwise. It is safe for concurrent use.
type Manager struct {
	cfg Config

	mu           sync.Mutex
	speaking     bool
	turnID       uint64
	turnStarted  time.Time
	guardUntil   time.Time
	consecSpeech int
	interrupted  bool
}

func New(cfg Config) *Manager {
	if cfg.MinRMS <= 0 {
		cfg.MinRMS = DefaultMinRMS
	}
	if cfg.Guard < 0 {
		cfg.Guard = 0
	}
	if cfg.MinStart <= 0 {
		cfg.MinStart = DefaultMinStart
	}
	return &Manager{cfg: cfg}
}

// OnAIAudio marks the AI as speaking. The first frame of a turn arms the
// barge-in guard.
func (m *Manager) OnAIAudio(now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speaking {
		return Decision{}
	}
	m.speaking = true
	m.turnID++
	m.turnStarted = now
	m.guardUntil = now.Add(m.cfg.Guard)
	m.consecSpeech = 0
	m.interrupted = false
	metricAITurns.Inc()
	return Decision{}
}

// OnAITurnEnded clears speaking regardless of why the turn ended.
func (m *Manager) OnAITurnEnded(now time.Time, reason string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speaking && !m.turnStarted.IsZero() {
		metricAITurnMS.Observe(float64(now.Sub(m.turnStarted).Milliseconds()))
	}
	m.speaking = false
	m.consecSpeech = 0
	return Decision{}
}

// OnUserAudio evaluates one inbound frame. At most one interrupt is
// requested per AI turn.
func (m *Manager) OnUserAudio(rms float64, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.speaking || m.interrupted {
		return Decision{}
	}
	if rms < m.cfg.MinRMS {
		m.consecSpeech = 0
		return Decision{}
	}
	if now.Before(m.guardUntil) {
		metricGuardBlocks.Inc()
		return Decision{}
	}
	m.consecSpeech++
	if m.consecSpeech < m.cfg.MinStart {
		return Decision{}
	}
	m.interrupted = true
	metricBargeIn.Inc()
	metricBargeInLatency.Observe(float64(now.Sub(m.guardUntil).Milliseconds()))
	return Decision{ShouldInterrupt: true, TurnID: m.turnID, Reason: "barge_in"}
}

func (m *Manager) IsAISpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}
