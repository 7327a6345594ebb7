package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"yuzu/interview/internal/types"
)

const (
	deepgramName       = "deepgram"
	defaultDeepgramURL = "wss://api.deepgram.com/v1/listen"
)

type DeepgramConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	Punctuate      bool
	SmartFormat    bool
	InterimResults bool
	VADEvents      bool
	UtteranceEndMs int
	EndpointingMs  int
	SampleRate     int
	Channels       int

	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	KeepAliveInterval    time.Duration
	SendQueue            int
}

// DefaultDeepgramConfig returns the settings used for interview audio.
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		Model:                "nova-2",
		Language:             "en-US",
		Punctuate:            true,
		SmartFormat:          true,
		InterimResults:       true,
		VADEvents:            true,
		UtteranceEndMs:       1500,
		EndpointingMs:        1000,
		SampleRate:           16000,
		Channels:             1,
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     time.Second,
		KeepAliveInterval:    8 * time.Second,
		SendQueue:            64,
	}
}

// Deepgram maintains a single live websocket connection to Deepgram
// for a session, sending PCM16 audio and receiving transcript events.
type Deepgram struct {
	cfg DeepgramConfig
	url string

	// Outbound audio queue; drop-on-full
	sendQ  chan []byte
	events chan Event

	ready   atomic.Bool
	stopped atomic.Bool

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	// Track last interim/final text for UtteranceEnd fallback (pump goroutine only)
	lastInterim string
	finalSeen   bool
}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	def := DefaultDeepgramConfig()
	cfg.Model = orDefault(cfg.Model, def.Model)
	cfg.Language = orDefault(cfg.Language, def.Language)
	cfg.UtteranceEndMs = nzd(cfg.UtteranceEndMs, def.UtteranceEndMs)
	cfg.EndpointingMs = nzd(cfg.EndpointingMs, def.EndpointingMs)
	cfg.SampleRate = nzd(cfg.SampleRate, def.SampleRate)
	cfg.Channels = nzd(cfg.Channels, def.Channels)
	cfg.MaxReconnectAttempts = nzd(cfg.MaxReconnectAttempts, def.MaxReconnectAttempts)
	cfg.SendQueue = nzd(cfg.SendQueue, def.SendQueue)
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = def.ReconnectBackoff
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = def.KeepAliveInterval
	}

	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("language", cfg.Language)
	q.Set("punctuate", strconv.FormatBool(cfg.Punctuate))
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("vad_events", strconv.FormatBool(cfg.VADEvents))
	q.Set("utterance_end_ms", strconv.Itoa(cfg.UtteranceEndMs))
	q.Set("endpointing", strconv.Itoa(cfg.EndpointingMs))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	base := orDefault(cfg.BaseURL, defaultDeepgramURL)

	return &Deepgram{
		cfg:    cfg,
		url:    base + "?" + q.Encode(),
		sendQ:  make(chan []byte, cfg.SendQueue),
		events: make(chan Event, 64),
	}
}

func (d *Deepgram) ServiceName() string { return deepgramName }

func (d *Deepgram) IsReady() bool { return d.ready.Load() }

func (d *Deepgram) Events() <-chan Event { return d.events }

// Start dials Deepgram and begins pumping. A failed first dial is returned
// to the caller; later disconnects are retried in the background.
func (d *Deepgram) Start(ctx context.Context) error {
	ws, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("deepgram connect: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.ws = ws
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()
	d.ready.Store(true)
	gaugeStreams.WithLabelValues(deepgramName).Inc()
	go d.run(runCtx, ws)
	return nil
}

// SendAudio enqueues a frame. Frames are dropped when the queue is full.
func (d *Deepgram) SendAudio(frame []byte) error {
	if !d.ready.Load() {
		return ErrNotConnected
	}
	select {
	case d.sendQ <- frame:
		metricAudioBytes.WithLabelValues(deepgramName).Add(float64(len(frame)))
		metricFrames.WithLabelValues(deepgramName, "queued").Inc()
		gaugeQueueDepth.WithLabelValues(deepgramName).Set(float64(len(d.sendQ)))
		return nil
	default:
		metricFrames.WithLabelValues(deepgramName, "dropped").Inc()
		return ErrQueueFull
	}
}

// Stop asks Deepgram to flush with CloseStream and tears the socket down.
func (d *Deepgram) Stop() error {
	if d.stopped.Swap(true) {
		return nil
	}
	d.ready.Store(false)
	d.mu.Lock()
	ws, cancel, done := d.ws, d.cancel, d.done
	d.mu.Unlock()
	if ws != nil {
		wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
		_ = ws.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		wcancel()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (d *Deepgram) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := make(http.Header)
	if d.cfg.APIKey != "" {
		hdr.Set("Authorization", "Token "+d.cfg.APIKey)
	}
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	ws, _, err := websocket.Dial(dctx, d.url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		log.Printf("[deepgram] connect error: %v", err)
		return nil, err
	}
	ws.SetReadLimit(1 << 20)
	log.Printf("[deepgram] connected in %dms", time.Since(start).Milliseconds())
	metricConnectMS.WithLabelValues(deepgramName).Observe(float64(time.Since(start).Milliseconds()))
	return ws, nil
}

func (d *Deepgram) run(ctx context.Context, ws *websocket.Conn) {
	defer close(d.events)
	defer close(d.done)
	defer gaugeStreams.WithLabelValues(deepgramName).Dec()

	attempt := 0
	for {
		healthy, err := d.pump(ctx, ws)
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
		if ctx.Err() != nil || d.stopped.Load() {
			return
		}
		d.ready.Store(false)
		log.Printf("[deepgram] connection lost: %v", err)
		if healthy {
			attempt = 0
		}

		ws = nil
		for ws == nil {
			attempt++
			if attempt > d.cfg.MaxReconnectAttempts {
				log.Printf("[deepgram] giving up after %d reconnect attempts", d.cfg.MaxReconnectAttempts)
				d.emit(Event{Kind: EventError, Err: ErrReconnectExhausted})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * d.cfg.ReconnectBackoff):
			}
			metricReconnects.WithLabelValues(deepgramName).Inc()
			next, err := d.dial(ctx)
			if err != nil {
				continue
			}
			ws = next
		}
		d.mu.Lock()
		d.ws = ws
		d.mu.Unlock()
		d.ready.Store(true)
	}
}

// pump runs one connection until it fails or ctx ends. healthy reports
// whether the provider sent anything on it.
func (d *Deepgram) pump(ctx context.Context, ws *websocket.Conn) (healthy bool, err error) {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		keepAlive := time.NewTicker(d.cfg.KeepAliveInterval)
		defer keepAlive.Stop()
		for {
			var msg []byte
			typ := websocket.MessageBinary
			select {
			case <-pctx.Done():
				return
			case msg = <-d.sendQ:
				if len(msg) == 0 {
					continue
				}
			case <-keepAlive.C:
				msg, typ = []byte(`{"type":"KeepAlive"}`), websocket.MessageText
			}
			wctx, wcancel := context.WithTimeout(pctx, 5*time.Second)
			err := ws.Write(wctx, typ, msg)
			wcancel()
			if err != nil {
				writeErr <- err
				cancel()
				return
			}
			gaugeQueueDepth.WithLabelValues(deepgramName).Set(float64(len(d.sendQ)))
		}
	}()

	for {
		_, data, err := ws.Read(pctx)
		if err != nil {
			select {
			case werr := <-writeErr:
				return healthy, werr
			default:
			}
			return healthy, err
		}
		healthy = true
		for _, ev := range d.handle(data) {
			d.emit(ev)
		}
	}
}

// handle decodes one provider frame into zero or more events.
func (d *Deepgram) handle(data []byte) []Event {
	msg, err := parseMessage(data)
	if err != nil {
		log.Printf("[deepgram] JSON parse error: %v", err)
		return nil
	}
	switch msg.Type {
	case "Results":
		ev, ok := msg.transcript()
		if !ok {
			if msg.IsFinal {
				metricTranscripts.WithLabelValues(deepgramName, "empty_skipped").Inc()
			}
			return nil
		}
		if ev.IsFinal {
			d.finalSeen = true
			d.lastInterim = ""
			metricTranscripts.WithLabelValues(deepgramName, "final").Inc()
		} else {
			d.finalSeen = false
			d.lastInterim = ev.Text
		}
		return []Event{{Kind: EventTranscript, Transcript: ev}}
	case "SpeechStarted":
		metricStreamEvents.WithLabelValues(deepgramName, "speech_started").Inc()
		return []Event{{Kind: EventSpeechStarted}}
	case "UtteranceEnd":
		metricStreamEvents.WithLabelValues(deepgramName, "utterance_end").Inc()
		out := make([]Event, 0, 2)
		// The provider can end an utterance without ever finalising its last interim.
		if !d.finalSeen && d.lastInterim != "" {
			out = append(out, Event{Kind: EventTranscript, Transcript: types.TranscriptEvent{
				Type:    types.TranscriptFinal,
				Text:    d.lastInterim,
				IsFinal: true,
				Source:  "deepgram",
			}})
			metricTranscripts.WithLabelValues(deepgramName, "interim_fallback").Inc()
		}
		d.lastInterim = ""
		d.finalSeen = false
		return append(out, Event{Kind: EventUtteranceEnd})
	case "Metadata":
		return []Event{{Kind: EventMetadata, RequestID: msg.RequestID}}
	case "Error":
		return []Event{{Kind: EventError, Err: fmt.Errorf("deepgram: %s", msg.errorText())}}
	default:
		return nil
	}
}

func (d *Deepgram) emit(e Event) {
	select {
	case d.events <- e:
	default:
		metricStreamEvents.WithLabelValues(deepgramName, "event_dropped").Inc()
	}
}

type dgAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type dgMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []dgAlternative `json:"alternatives"`
	} `json:"channel"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	RequestID   string  `json:"request_id"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
}

func parseMessage(data []byte) (dgMessage, error) {
	var m dgMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, nil
}

// transcript converts a Results message; ok is false when the text is empty.
func (m dgMessage) transcript() (types.TranscriptEvent, bool) {
	if len(m.Channel.Alternatives) == 0 {
		return types.TranscriptEvent{}, false
	}
	alt := m.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return types.TranscriptEvent{}, false
	}
	final := m.IsFinal || m.SpeechFinal
	typ := types.TranscriptPartial
	if final {
		typ = types.TranscriptFinal
	}
	return types.TranscriptEvent{
		Type:       typ,
		Text:       text,
		Confidence: alt.Confidence,
		StartTime:  m.Start,
		EndTime:    m.Start + m.Duration,
		IsFinal:    final,
		Source:     "deepgram",
	}, true
}

func (m dgMessage) errorText() string {
	if m.Description != "" {
		return m.Description
	}
	if m.Message != "" {
		return m.Message
	}
	return "provider_error"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nzd(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
