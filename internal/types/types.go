package types

import "time"

// Phase is the lifecycle phase of one interview.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseReady        Phase = "READY"
	PhaseActive       Phase = "ACTIVE"
	PhaseCompleting   Phase = "COMPLETING"
	PhaseCompleted    Phase = "COMPLETED"
	PhaseAbandoned    Phase = "ABANDONED"
	PhaseError        Phase = "ERROR"
)

// IsTerminal reports whether no further state mutation is permitted.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned || p == PhaseError
}

// QuestionState is the progress of a single question.
type QuestionState string

const (
	QuestionNotStarted    QuestionState = "NOT_STARTED"
	QuestionInProgress    QuestionState = "IN_PROGRESS"
	QuestionFinalComplete QuestionState = "FINAL_COMPLETE"
)

// Question is one entry of a question bank.
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	Text            string   `json:"text" yaml:"text"`
	ExpectedAspects []string `json:"expected_aspects,omitempty" yaml:"expected_aspects"`
	Context         string   `json:"context,omitempty" yaml:"context"`
}

// QuestionData is the per-question progress record held in InterviewState.
type QuestionData struct {
	QuestionID           string        `json:"question_id"`
	QuestionIndex        int           `json:"question_index"`
	QuestionText         string        `json:"question_text"`
	State                QuestionState `json:"state"`
	VerbatimTranscript   string        `json:"verbatim_transcript"`
	CompletionConfidence float64       `json:"completion_confidence"`
	IsOffTopic           bool          `json:"is_off_topic"`
	MissingAspects       []string      `json:"missing_aspects"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (q QuestionData) Clone() QuestionData {
	out := q
	out.MissingAspects = append([]string(nil), q.MissingAspects...)
	out.StartedAt = cloneTime(q.StartedAt)
	out.CompletedAt = cloneTime(q.CompletedAt)
	return out
}

// InterviewState is the single owned state value of one session.
type InterviewState struct {
	SessionID            string         `json:"session_id"`
	UserID               string         `json:"user_id"`
	InterviewID          string         `json:"interview_id"`
	Phase                Phase          `json:"phase"`
	CurrentQuestionIndex int            `json:"current_question_index"`
	TotalQuestions       int            `json:"total_questions"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	Questions            []QuestionData `json:"questions"`
	ErrorMessage         string         `json:"error_message,omitempty"`
}

// Clone returns a deep copy.
func (s InterviewState) Clone() InterviewState {
	out := s
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.Questions = make([]QuestionData, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q.Clone()
	}
	return out
}

// CompletedQuestions counts questions in FINAL_COMPLETE.
func (s InterviewState) CompletedQuestions() int {
	n := 0
	for _, q := range s.Questions {
		if q.State == QuestionFinalComplete {
			n++
		}
	}
	return n
}

// AnalysisResult is the transient completeness/relevance estimate of an answer.
type AnalysisResult struct {
	CompletionConfidence float64  `json:"completionConfidence"`
	IsOffTopic           bool     `json:"isOffTopic"`
	MissingAspects       []string `json:"missingAspects"`
	SuggestedFollowUp    *string  `json:"suggestedFollowUp"`
}

// DefaultAnalysis is substituted whenever analysis cannot produce a result.
func DefaultAnalysis() AnalysisResult {
	return AnalysisResult{CompletionConfidence: 0.5}
}

// Action is what the decision engine wants the session to do next.
type Action string

const (
	ActionStaySilent   Action = "STAY_SILENT"
	ActionAskFollowUp  Action = "ASK_FOLLOWUP"
	ActionRedirect     Action = "REDIRECT"
	ActionNextQuestion Action = "NEXT_QUESTION"
	ActionEndInterview Action = "END_INTERVIEW"
)

// InstructionType selects the phrasing sent to the voice AI.
type InstructionType string

const (
	InstructionAskQuestion  InstructionType = "ASK_QUESTION"
	InstructionAskFollowUp  InstructionType = "ASK_FOLLOWUP"
	InstructionRedirect     InstructionType = "REDIRECT"
	InstructionAcknowledge  InstructionType = "ACKNOWLEDGE"
	InstructionThankAndWait InstructionType = "THANK_AND_WAIT"
	InstructionEndInterview InstructionType = "END_INTERVIEW"
)

type ControlInstruction struct {
	Type    InstructionType `json:"type"`
	Content string          `json:"content"`
}

// DecisionResult carries the chosen action. Reason is for audit logs only.
type DecisionResult struct {
	Action      Action              `json:"action"`
	Instruction *ControlInstruction `json:"instruction,omitempty"`
	Reason      string              `json:"reason"`
}

type TranscriptType string

const (
	TranscriptPartial TranscriptType = "partial"
	TranscriptFinal   TranscriptType = "final"
)

// TranscriptEvent is a recognised span of user speech.
type TranscriptEvent struct {
	Type       TranscriptType `json:"type"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	StartTime  float64        `json:"start_time"`
	EndTime    float64        `json:"end_time"`
	IsFinal    bool           `json:"is_final"`
	Source     string         `json:"source,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// SessionStatus is the summary view of a live session.
type SessionStatus struct {
	SessionID            string    `json:"session_id"`
	UserID               string    `json:"user_id"`
	InterviewID          string    `json:"interview_id"`
	Phase                Phase     `json:"phase"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	TotalQuestions       int       `json:"total_questions"`
	CreatedAt            time.Time `json:"created_at"`
	ElapsedMs            int64     `json:"elapsed_ms"`
	VoiceReady           bool      `json:"voice_ready"`
	STTReady             bool      `json:"stt_ready"`
	AISpeaking           bool      `json:"ai_speaking"`
	PendingAnalysis      bool      `json:"pending_analysis"`
}
