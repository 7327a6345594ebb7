// Package stt streams caller audio to a transcription provider and turns
// its responses into transcript events.
package stt

import (
	"context"
	"errors"

	"yuzu/interview/internal/types"
)

var (
	ErrNotConnected       = errors.New("stt: not connected")
	ErrQueueFull          = errors.New("stt: send queue full")
	ErrReconnectExhausted = errors.New("stt: reconnect attempts exhausted")
)

type EventKind string

const (
	EventTranscript    EventKind = "transcript"
	EventSpeechStarted EventKind = "speech_started"
	EventUtteranceEnd  EventKind = "utterance_end"
	EventMetadata      EventKind = "metadata"
	EventError         EventKind = "error"
)

// Event is emitted on a provider's Events channel. Transcript is set for
// EventTranscript, Err for EventError.
type Event struct {
	Kind       EventKind
	Transcript types.TranscriptEvent
	RequestID  string
	Err        error
}

// Provider is one live transcription stream.
type Provider interface {
	Start(ctx context.Context) error
	Stop() error
	SendAudio(frame []byte) error
	IsReady() bool
	ServiceName() string
	// Events is closed once the provider has stopped for good.
	Events() <-chan Event
}
