package persistence

import (
	"time"

	"yuzu/interview/internal/types"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusError     Status = "error"
)

// Record is the durable result of one finished interview.
type Record struct {
	SessionID   string           `json:"sessionId" msgpack:"sessionId"`
	UserID      string           `json:"userId" msgpack:"userId"`
	InterviewID string           `json:"interviewId" msgpack:"interviewId"`
	StartedAt   time.Time        `json:"startedAt" msgpack:"startedAt"`
	CompletedAt time.Time        `json:"completedAt" msgpack:"completedAt"`
	Status      Status           `json:"status" msgpack:"status"`
	Questions   []QuestionRecord `json:"questions" msgpack:"questions"`
	Metadata    Metadata         `json:"metadata" msgpack:"metadata"`
}

type QuestionRecord struct {
	QuestionID           string     `json:"questionId" msgpack:"questionId"`
	QuestionIndex        int        `json:"questionIndex" msgpack:"questionIndex"`
	QuestionText         string     `json:"questionText" msgpack:"questionText"`
	VerbatimAnswer       string     `json:"verbatimAnswer" msgpack:"verbatimAnswer"`
	CompletionConfidence float64    `json:"completionConfidence" msgpack:"completionConfidence"`
	WasOffTopic          bool       `json:"wasOffTopic" msgpack:"wasOffTopic"`
	StartedAt            *time.Time `json:"startedAt,omitempty" msgpack:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
}

type Metadata struct {
	TotalQuestions     int         `json:"totalQuestions" msgpack:"totalQuestions"`
	CompletedQuestions int         `json:"completedQuestions" msgpack:"completedQuestions"`
	Phase              types.Phase `json:"phase" msgpack:"phase"`
	EndReason          string      `json:"endReason,omitempty" msgpack:"endReason,omitempty"`
	ErrorMessage       string      `json:"errorMessage,omitempty" msgpack:"errorMessage,omitempty"`
	ErrorStack         string      `json:"errorStack,omitempty" msgpack:"errorStack,omitempty"`
}

// Checkpoint is a periodic snapshot of a live interview.
type Checkpoint struct {
	SessionID string               `json:"sessionId" msgpack:"sessionId"`
	SavedAt   time.Time            `json:"savedAt" msgpack:"savedAt"`
	State     types.InterviewState `json:"state" msgpack:"state"`
}

// NewRecord converts a terminal state into a Record.
func NewRecord(s types.InterviewState, status Status, reason string, cause error) Record {
	completed := time.Now().UTC()
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}
	r := Record{
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		InterviewID: s.InterviewID,
		StartedAt:   s.StartedAt,
		CompletedAt: completed,
		Status:      status,
		Questions:   make([]QuestionRecord, 0, len(s.Questions)),
		Metadata: Metadata{
			TotalQuestions:     s.TotalQuestions,
			CompletedQuestions: s.CompletedQuestions(),
			Phase:              s.Phase,
			EndReason:          reason,
		},
	}
	for _, q := range s.Questions {
		q = q.Clone()
		r.Questions = append(r.Questions, QuestionRecord{
			QuestionID:           q.QuestionID,
			QuestionIndex:        q.QuestionIndex,
			QuestionText:         q.QuestionText,
			VerbatimAnswer:       q.VerbatimTranscript,
			CompletionConfidence: q.CompletionConfidence,
			WasOffTopic:          q.IsOffTopic,
			StartedAt:            q.StartedAt,
			CompletedAt:          q.CompletedAt,
		})
	}
	if status == StatusError {
		r.Metadata.ErrorMessage = s.ErrorMessage
		if cause != nil {
			if r.Metadata.ErrorMessage == "" {
				r.Metadata.ErrorMessage = cause.Error()
			}
			r.Metadata.ErrorStack = errorChain(cause)
		}
	}
	return r
}

// errorChain renders each wrapped layer of err on its own line.
func errorChain(err error) string {
	var out string
	for e := err; e != nil; {
		if out != "" {
			out += "\n"
		}
		out += e.Error()
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return out
}
