// Package statemachine owns the InterviewState of one session and enforces
// its legal transitions.
package statemachine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"yuzu/interview/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidQuestion   = errors.New("invalid question index")
	ErrTerminal          = errors.New("interview is in a terminal phase")
)

// Machine is the only writer of its InterviewState. Reads return deep copies.
type Machine struct {
	mu    sync.RWMutex
	state types.InterviewState
	now   func() time.Time
}

// New builds an INITIALIZING state from the question bank.
func New(sessionID, userID, interviewID string, qs []types.Question) *Machine {
	m := &Machine{now: time.Now}
	st := types.InterviewState{
		SessionID:      sessionID,
		UserID:         userID,
		InterviewID:    interviewID,
		Phase:          types.PhaseInitializing,
		TotalQuestions: len(qs),
		StartedAt:      m.now().UTC(),
		Questions:      make([]types.QuestionData, len(qs)),
	}
	for i, q := range qs {
		st.Questions[i] = types.QuestionData{
			QuestionID:     q.ID,
			QuestionIndex:  i,
			QuestionText:   q.Text,
			State:          types.QuestionNotStarted,
			MissingAspects: []string{},
		}
	}
	m.state = st
	return m
}

func (m *Machine) State() types.InterviewState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

func (m *Machine) Phase() types.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase
}

func (m *Machine) CurrentIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentQuestionIndex
}

func (m *Machine) TotalQuestions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TotalQuestions
}

// CurrentQuestion returns a copy of the current question, or nil once every
// question has been completed.
func (m *Machine) CurrentQuestion() *types.QuestionData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.state.CurrentQuestionIndex
	if i < 0 || i >= len(m.state.Questions) {
		return nil
	}
	q := m.state.Questions[i].Clone()
	return &q
}

func (m *Machine) Question(i int) (types.QuestionData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.state.Questions) {
		return types.QuestionData{}, fmt.Errorf("%w: %d", ErrInvalidQuestion, i)
	}
	return m.state.Questions[i].Clone(), nil
}

func (m *Machine) SetReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(types.PhaseReady, types.PhaseInitializing)
}

func (m *Machine) StartInterview() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(types.PhaseActive, types.PhaseReady); err != nil {
		return err
	}
	m.state.StartedAt = m.now().UTC()
	return nil
}

// StartCurrentQuestion marks the current question IN_PROGRESS.
func (m *Machine) StartCurrentQuestion() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.currentLocked()
	if err != nil {
		return err
	}
	if q.State != types.QuestionNotStarted {
		return fmt.Errorf("%w: question %d is %s", ErrInvalidTransition, q.QuestionIndex, q.State)
	}
	m.startLocked(q)
	return nil
}

// AppendTranscript appends text to the current question, promoting it to
// IN_PROGRESS on first call.
func (m *Machine) AppendTranscript(text string) error {
	text = strings.TrimSpace(text)
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.currentLocked()
	if err != nil {
		return err
	}
	if q.State == types.QuestionFinalComplete {
		return fmt.Errorf("%w: question %d already complete", ErrInvalidTransition, q.QuestionIndex)
	}
	if q.State == types.QuestionNotStarted {
		m.startLocked(q)
	}
	if text == "" {
		return nil
	}
	if q.VerbatimTranscript == "" {
		q.VerbatimTranscript = text
	} else {
		q.VerbatimTranscript += " " + text
	}
	return nil
}

// ApplyAnalysis records analysis output on question i if it is not yet final.
// It reports whether the result was applied.
func (m *Machine) ApplyAnalysis(i int, r types.AnalysisResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase.IsTerminal() {
		return false, ErrTerminal
	}
	if i < 0 || i >= len(m.state.Questions) {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuestion, i)
	}
	q := &m.state.Questions[i]
	if q.State == types.QuestionFinalComplete {
		return false, nil
	}
	q.CompletionConfidence = r.CompletionConfidence
	q.IsOffTopic = r.IsOffTopic
	q.MissingAspects = append([]string{}, r.MissingAspects...)
	return true, nil
}

// CompleteCurrentQuestion finalizes the current question and advances the
// index; the phase becomes COMPLETING after the last question.
func (m *Machine) CompleteCurrentQuestion() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.currentLocked()
	if err != nil {
		return err
	}
	now := m.now().UTC()
	if q.StartedAt == nil {
		q.StartedAt = &now
	}
	q.State = types.QuestionFinalComplete
	q.CompletedAt = &now
	m.state.CurrentQuestionIndex++
	if m.state.CurrentQuestionIndex >= m.state.TotalQuestions {
		m.state.CurrentQuestionIndex = m.state.TotalQuestions
		m.state.Phase = types.PhaseCompleting
	}
	return nil
}

func (m *Machine) CompleteInterview() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminate(types.PhaseCompleted, "", types.PhaseActive, types.PhaseCompleting)
}

func (m *Machine) AbandonInterview() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminate(types.PhaseAbandoned, "", nonTerminal...)
}

func (m *Machine) SetError(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminate(types.PhaseError, msg, nonTerminal...)
}

var nonTerminal = []types.Phase{
	types.PhaseInitializing, types.PhaseReady, types.PhaseActive, types.PhaseCompleting,
}

func (m *Machine) terminate(to types.Phase, msg string, from ...types.Phase) error {
	if m.state.Phase == to {
		return nil
	}
	if err := m.transition(to, from...); err != nil {
		return err
	}
	now := m.now().UTC()
	m.state.CompletedAt = &now
	if msg != "" {
		m.state.ErrorMessage = msg
	}
	return nil
}

func (m *Machine) transition(to types.Phase, from ...types.Phase) error {
	cur := m.state.Phase
	for _, f := range from {
		if cur == f {
			m.state.Phase = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
}

func (m *Machine) currentLocked() (*types.QuestionData, error) {
	if m.state.Phase != types.PhaseActive {
		return nil, fmt.Errorf("%w: phase is %s", ErrInvalidTransition, m.state.Phase)
	}
	i := m.state.CurrentQuestionIndex
	if i < 0 || i >= len(m.state.Questions) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuestion, i)
	}
	return &m.state.Questions[i], nil
}

func (m *Machine) startLocked(q *types.QuestionData) {
	now := m.now().UTC()
	q.State = types.QuestionInProgress
	q.StartedAt = &now
}
