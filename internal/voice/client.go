// Package voice is a realtime client for the Gemini Live
// BidiGenerateContent websocket API.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"yuzu/interview/internal/types"
)

const (
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultVoice   = "Aoede"

	inputMimeType = "audio/pcm;rate=16000"
)

var (
	ErrNotConnected       = errors.New("voice: not connected")
	ErrSetupFailed        = errors.New("voice: setup failed")
	ErrReconnectExhausted = errors.New("voice: reconnect attempts exhausted")
	ErrUnknownInstruction = errors.New("voice: unknown instruction type")
)

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Voice             string
	SystemInstruction string
	// InputTranscription asks the server to transcribe caller audio.
	InputTranscription bool

	SetupTimeout         time.Duration
	WriteTimeout         time.Duration
	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
}

type EventKind string

const (
	EventAudio           EventKind = "audio"
	EventText            EventKind = "text"
	EventInputTranscript EventKind = "input_transcript"
	EventTurnComplete    EventKind = "turn_complete"
	EventInterrupted     EventKind = "interrupted"
	EventReconnected     EventKind = "reconnected"
	EventError           EventKind = "error"
)

type Event struct {
	Kind  EventKind
	Audio []byte // PCM16LE at 24kHz
	Text  string
	Err   error
}

// Client holds one Gemini Live conversation. Sends are safe for concurrent use.
type Client struct {
	cfg Config

	mu      sync.Mutex // guards conn and writes
	conn    *websocket.Conn
	events  chan Event
	closeCh chan struct{}
	closed  atomic.Bool
	ready   atomic.Bool
	// suppress drops the rest of the current model turn after Interrupt.
	suppress atomic.Bool
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	return &Client{
		cfg:     cfg,
		events:  make(chan Event, 256),
		closeCh: make(chan struct{}),
	}
}

func (c *Client) ServiceName() string { return "gemini-live" }

func (c *Client) IsReady() bool { return c.ready.Load() }

// Transcribing reports whether caller speech is currently being transcribed
// by the voice session.
func (c *Client) Transcribing() bool { return c.cfg.InputTranscription && c.ready.Load() }

// Events is closed when the client is closed or gives up reconnecting.
func (c *Client) Events() <-chan Event { return c.events }

// Connect dials the service, performs the setup handshake and starts the
// receive loop.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.ready.Store(true)
	go c.supervise(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("voice: bad url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	start := time.Now()
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.SetupTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: connect failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice: connect failed: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	log.Printf("[gemini] connected model=%s voice=%s in %dms", c.cfg.Model, c.cfg.Voice, time.Since(start).Milliseconds())
	return conn, nil
}

func (c *Client) handshake(conn *websocket.Conn) error {
	msg := setupMessage{Setup: setup{
		Model: "models/" + strings.TrimPrefix(c.cfg.Model, "models/"),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			}},
		},
		SystemInstruction: &content{Parts: []part{{Text: c.cfg.SystemInstruction}}},
	}}
	if c.cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}

	deadline := time.Now().Add(c.cfg.SetupTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSetupFailed, err)
		}
		var sm serverMessage
		if err := json.Unmarshal(data, &sm); err != nil {
			continue
		}
		if sm.Error != nil {
			return fmt.Errorf("%w: %s", ErrSetupFailed, sm.Error.Message)
		}
		if sm.SetupComplete != nil {
			return nil
		}
	}
}

// SendAudio streams one PCM16LE 16kHz frame.
func (c *Client) SendAudio(frame []byte) error {
	if !c.ready.Load() {
		return ErrNotConnected
	}
	err := c.send(realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []inlineData{{MimeType: inputMimeType, Data: base64.StdEncoding.EncodeToString(frame)}},
	}})
	if err == nil {
		metricAudioSentBytes.Add(float64(len(frame)))
	}
	return err
}

// SendControlInstruction phrases ins as a directive and sends it as a
// completed user turn.
func (c *Client) SendControlInstruction(ins types.ControlInstruction) error {
	text, err := Phrase(ins)
	if err != nil {
		return err
	}
	if err := c.SendText(text); err != nil {
		return err
	}
	metricInstructions.WithLabelValues(string(ins.Type)).Inc()
	return nil
}

// SendText sends a free-form user turn.
func (c *Client) SendText(text string) error {
	if !c.ready.Load() {
		return ErrNotConnected
	}
	c.suppress.Store(false)
	return c.send(clientContentMessage{ClientContent: clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}})
}

// Interrupt drops the remainder of the current model turn. Gemini Live has
// no client cancel message: with automatic activity detection the server
// cuts its own turn when it hears the caller audio that is already being
// streamed, and reports it as serverContent.interrupted.
func (c *Client) Interrupt() {
	if !c.suppress.Swap(true) {
		metricInterrupts.Inc()
	}
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.ready.Store(false)
	close(c.closeCh)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	return c.conn.Close()
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		metricSendErrors.Inc()
		return fmt.Errorf("voice: write: %w", err)
	}
	return nil
}

// supervise reads from conn and reconnects when it drops.
func (c *Client) supervise(conn *websocket.Conn) {
	defer close(c.events)
	attempt := 0
	for {
		healthy, err := c.readLoop(conn)
		if c.closed.Load() {
			return
		}
		c.ready.Store(false)
		conn.Close()
		log.Printf("[gemini] connection lost: %v", err)
		if healthy {
			attempt = 0
		}

		conn = nil
		for conn == nil {
			attempt++
			if attempt > c.cfg.MaxReconnectAttempts {
				log.Printf("[gemini] giving up after %d reconnect attempts", c.cfg.MaxReconnectAttempts)
				c.emit(Event{Kind: EventError, Err: ErrReconnectExhausted})
				return
			}
			select {
			case <-c.closeCh:
				return
			case <-time.After(time.Duration(attempt) * c.cfg.ReconnectBackoff):
			}
			metricReconnects.Inc()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SetupTimeout)
			next, err := c.dial(ctx)
			cancel()
			if err != nil {
				log.Printf("[gemini] reconnect attempt %d failed: %v", attempt, err)
				continue
			}
			conn = next
		}
		c.mu.Lock()
		if c.closed.Load() {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.suppress.Store(false)
		c.ready.Store(true)
		c.emit(Event{Kind: EventReconnected})
	}
}

func (c *Client) readLoop(conn *websocket.Conn) (healthy bool, err error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return healthy, err
		}
		healthy = true
		for _, ev := range c.handle(data) {
			c.emit(ev)
		}
	}
}

// handle demultiplexes one server message.
func (c *Client) handle(data []byte) []Event {
	var sm serverMessage
	if err := json.Unmarshal(data, &sm); err != nil {
		log.Printf("[gemini] JSON parse error: %v", err)
		return nil
	}
	if sm.Error != nil {
		metricServerErrors.Inc()
		return []Event{{Kind: EventError, Err: fmt.Errorf("voice: server error %d %s: %s", sm.Error.Code, sm.Error.Status, sm.Error.Message)}}
	}
	if sm.GoAway != nil {
		log.Printf("[gemini] server going away in %s", sm.GoAway.TimeLeft)
	}
	sc := sm.ServerContent
	if sc == nil {
		return nil
	}

	var out []Event
	if sc.InputTranscription != nil && strings.TrimSpace(sc.InputTranscription.Text) != "" {
		out = append(out, Event{Kind: EventInputTranscript, Text: sc.InputTranscription.Text})
	}
	suppressed := c.suppress.Load()
	if sc.ModelTurn != nil && !suppressed {
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/"):
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					log.Printf("[gemini] bad audio payload: %v", err)
					continue
				}
				metricAudioRecvBytes.Add(float64(len(pcm)))
				out = append(out, Event{Kind: EventAudio, Audio: pcm})
			case p.Text != "":
				out = append(out, Event{Kind: EventText, Text: p.Text})
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" && !suppressed {
		out = append(out, Event{Kind: EventText, Text: sc.OutputTranscription.Text})
	}
	if sc.Interrupted {
		c.suppress.Store(false)
		out = append(out, Event{Kind: EventInterrupted})
	}
	if sc.TurnComplete {
		c.suppress.Store(false)
		out = append(out, Event{Kind: EventTurnComplete})
	}
	return out
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.closeCh:
	default:
		metricEventDrops.Inc()
	}
}
