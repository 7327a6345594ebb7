// Package session runs one live interview. It wires caller audio to the
// voice model and the transcriber, tracks progress in the state machine,
// and acts on the decision engine whenever the caller falls silent.
//
// All mutation happens on a single loop goroutine. Connection pumps, the
// silence detector, analysis completions and the duration timer post
// closures into it; public methods that mutate wait for their closure to
// run. Status and State read the state machine directly.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yuzu/interview/internal/analysis"
	"yuzu/interview/internal/decision"
	"yuzu/interview/internal/events"
	"yuzu/interview/internal/floor"
	"yuzu/interview/internal/persistence"
	"yuzu/interview/internal/questions"
	"yuzu/interview/internal/router"
	"yuzu/interview/internal/silence"
	"yuzu/interview/internal/statemachine"
	"yuzu/interview/internal/stt"
	"yuzu/interview/internal/types"
	"yuzu/interview/internal/voice"
)

const (
	DefaultMaxDuration    = 30 * time.Minute
	DefaultConnectTimeout = 15 * time.Second
	DefaultGoodbyeGrace   = 5 * time.Second
	DefaultSpeechMinRMS   = 400.0

	ReasonCompleted = "completed"
	ReasonTimeout   = "timeout"
	ReasonError     = "error"
)

var (
	ErrClosed     = errors.New("session closed")
	ErrNotReady   = errors.New("session is not ready")
	ErrNoVoice    = errors.New("session: voice client is required")
	ErrNoSTT      = errors.New("session: stt provider is required")
	ErrNoQuestion = errors.New("session: question bank is required")
)

// VoiceClient is the realtime voice model connection.
type VoiceClient interface {
	Connect(ctx context.Context) error
	SendAudio(frame []byte) error
	SendControlInstruction(ins types.ControlInstruction) error
	Interrupt()
	Close() error
	IsReady() bool
	Transcribing() bool
	Events() <-chan voice.Event
}

// Analyzer runs answer analysis off the audio path.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) *analysis.Call
	CancelAll()
	HasPendingAnalysis() bool
}

type Config struct {
	SessionID   string
	UserID      string
	InterviewID string

	Questions *questions.Manager
	Voice     VoiceClient
	STT       stt.Provider
	Analyzer  Analyzer
	Store     persistence.Store
	Events    *events.Log

	Decision           decision.Config
	Floor              floor.Config
	SilenceThreshold   time.Duration
	MaxDuration        time.Duration
	CheckpointInterval time.Duration
	ConnectTimeout     time.Duration
	// GoodbyeGrace keeps the voice connection open after a completed
	// interview so the closing words reach the caller. Negative disables it.
	GoodbyeGrace time.Duration
	// SpeechMinRMS is the loudness below which a frame is not caller speech.
	SpeechMinRMS float64
}

type Session struct {
	cfg       Config
	id        string
	userID    string
	createdAt time.Time

	machine  *statemachine.Machine
	bank     *questions.Manager
	voice    VoiceClient
	stt      stt.Provider
	analyzer Analyzer
	router   *router.Router
	detector *silence.Detector
	floor    *floor.Manager
	engine   *decision.Engine
	persist  *persistence.Persistence
	audit    *events.Log

	ctx    context.Context
	cancel context.CancelFunc

	ops  chan func()
	quit chan struct{}

	sinkMu sync.RWMutex
	sink   func([]byte)

	// loop-owned
	stopping      bool
	timeout       *time.Timer
	lastAnalysis  map[int]types.AnalysisResult
	inflight      *analysis.Call
	analysisDirty bool
	pumps         sync.WaitGroup
}

// New builds a session in INITIALIZING. Nothing is dialled until Initialize.
func New(cfg Config) (*Session, error) {
	if cfg.Voice == nil {
		return nil, ErrNoVoice
	}
	if cfg.STT == nil {
		return nil, ErrNoSTT
	}
	if cfg.Questions == nil || cfg.Questions.TotalQuestions() == 0 {
		return nil, ErrNoQuestion
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.InterviewID == "" {
		cfg.InterviewID = uuid.NewString()
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = analysis.New(nil, 0)
	}
	if cfg.Events == nil {
		cfg.Events = events.NewLog(0)
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	switch {
	case cfg.GoodbyeGrace == 0:
		cfg.GoodbyeGrace = DefaultGoodbyeGrace
	case cfg.GoodbyeGrace < 0:
		cfg.GoodbyeGrace = 0
	}
	if cfg.SpeechMinRMS <= 0 {
		cfg.SpeechMinRMS = DefaultSpeechMinRMS
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = silence.DefaultThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:          cfg,
		id:           cfg.SessionID,
		userID:       cfg.UserID,
		createdAt:    time.Now(),
		machine:      statemachine.New(cfg.SessionID, cfg.UserID, cfg.InterviewID, cfg.Questions.AllQuestions()),
		bank:         cfg.Questions,
		voice:        cfg.Voice,
		stt:          cfg.STT,
		analyzer:     cfg.Analyzer,
		router:       router.New(),
		detector:     silence.New(cfg.SilenceThreshold),
		floor:        floor.New(cfg.Floor),
		engine:       decision.New(cfg.Decision, cfg.Questions),
		persist:      persistence.New(cfg.Store, cfg.CheckpointInterval),
		audit:        cfg.Events,
		ctx:          ctx,
		cancel:       cancel,
		ops:          make(chan func(), 256),
		quit:         make(chan struct{}),
		lastAnalysis: make(map[int]types.AnalysisResult),
	}

	s.router.AddDestination("voice", router.DestinationFunc{SendFunc: s.voice.SendAudio, ReadyFunc: s.voice.IsReady})
	s.router.AddDestination("stt", router.DestinationFunc{SendFunc: s.stt.SendAudio, ReadyFunc: s.stt.IsReady})
	s.router.OnActivity(func(frame []byte) {
		if router.RMS(frame) >= s.cfg.SpeechMinRMS {
			s.detector.OnAudioActivity()
		}
	})
	s.detector.OnSilence(func(ev silence.SilenceEvent) {
		s.post(func() { s.onSilence(ev) })
	})

	go s.loop()
	metricSessions.Inc()
	s.record("session_created", map[string]any{"user_id": s.userID, "interview_id": cfg.InterviewID, "questions": s.machine.TotalQuestions()})
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Initialize connects the voice model and the transcriber concurrently.
// Any failure is fatal: the session moves to ERROR and an error record is
// written.
func (s *Session) Initialize(ctx context.Context) error {
	if p := s.machine.Phase(); p != types.PhaseInitializing {
		return fmt.Errorf("%w: initialize from %s", statemachine.ErrInvalidTransition, p)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	var voiceErr, sttErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.voice.Connect(cctx); err != nil {
			voiceErr = fmt.Errorf("voice connect: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.stt.Start(cctx); err != nil {
			sttErr = fmt.Errorf("stt connect: %w", err)
		}
	}()
	wg.Wait()
	metricConnectMs.Observe(float64(time.Since(start).Milliseconds()))

	if err := errors.Join(voiceErr, sttErr); err != nil {
		log.Printf("[session] id=%s initialize failed: %v", s.id, err)
		_ = s.do(func() error { return s.end(ReasonError, err) })
		return err
	}

	s.pumps.Add(2)
	go s.pumpVoice()
	go s.pumpSTT()
	s.router.Start()

	return s.do(func() error {
		if err := s.machine.SetReady(); err != nil {
			return err
		}
		s.record("phase", map[string]any{"phase": types.PhaseReady})
		log.Printf("[session] id=%s ready (voice=%s stt=%s)", s.id, "connected", s.stt.ServiceName())
		return nil
	})
}

// StartInterview moves READY to ACTIVE and asks the first question.
func (s *Session) StartInterview() error {
	return s.do(func() error {
		if p := s.machine.Phase(); p != types.PhaseReady {
			return fmt.Errorf("%w: phase is %s", ErrNotReady, p)
		}
		if err := s.machine.StartInterview(); err != nil {
			return err
		}
		s.timeout = time.AfterFunc(s.cfg.MaxDuration, func() {
			s.post(func() {
				log.Printf("[session] id=%s max duration %s reached", s.id, s.cfg.MaxDuration)
				_ = s.end(ReasonTimeout, nil)
			})
		})
		s.persist.StartCheckpointing(s.id, s.machine.State)
		s.record("phase", map[string]any{"phase": types.PhaseActive})
		if err := s.machine.StartCurrentQuestion(); err != nil {
			return err
		}
		s.askCurrent()
		return nil
	})
}

// HandleIncomingAudio routes one caller frame. A loud frame while the AI
// holds the floor interrupts it first.
func (s *Session) HandleIncomingAudio(frame []byte) {
	if len(frame) == 0 || s.machine.Phase().IsTerminal() {
		return
	}
	now := time.Now()
	if d := s.floor.OnUserAudio(router.RMS(frame), now); d.ShouldInterrupt {
		s.voice.Interrupt()
		s.floor.OnAITurnEnded(now, d.Reason)
		metricBargeIns.Inc()
		s.record("barge_in", map[string]any{"turn_id": d.TurnID})
	}
	s.router.RouteAudio(frame)
}

// EndInterview finishes the session. "completed" ends normally; any other
// reason abandons it, except "error" which records a failure. Ending an
// already finished session is a no-op.
func (s *Session) EndInterview(reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "ended"
	}
	err := s.do(func() error { return s.end(reason, nil) })
	if errors.Is(err, ErrClosed) && s.machine.Phase().IsTerminal() {
		return nil
	}
	return err
}

// SetAudioSink receives the AI's outbound audio (PCM16LE, 24 kHz).
func (s *Session) SetAudioSink(fn func([]byte)) {
	s.sinkMu.Lock()
	s.sink = fn
	s.sinkMu.Unlock()
}

func (s *Session) emitAudio(pcm []byte) {
	s.sinkMu.RLock()
	fn := s.sink
	s.sinkMu.RUnlock()
	if fn != nil {
		fn(pcm)
	}
}

func (s *Session) Status() types.SessionStatus {
	st := s.machine.State()
	elapsed := time.Since(st.StartedAt)
	if st.CompletedAt != nil {
		elapsed = st.CompletedAt.Sub(st.StartedAt)
	}
	return types.SessionStatus{
		SessionID:            s.id,
		UserID:               s.userID,
		InterviewID:          st.InterviewID,
		Phase:                st.Phase,
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		TotalQuestions:       st.TotalQuestions,
		CreatedAt:            s.createdAt,
		ElapsedMs:            elapsed.Milliseconds(),
		VoiceReady:           s.voice.IsReady(),
		STTReady:             s.stt.IsReady(),
		AISpeaking:           s.floor.IsAISpeaking(),
		PendingAnalysis:      s.analyzer.HasPendingAnalysis(),
	}
}

func (s *Session) State() types.InterviewState { return s.machine.State() }

// RouterStats exposes per-destination audio counters.
func (s *Session) RouterStats() map[string]router.Stats { return s.router.Stats() }

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.quit }

func (s *Session) record(typ string, payload map[string]any) {
	s.audit.Append(s.id, typ, payload)
}
