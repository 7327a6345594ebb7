// Package transport carries one session's audio over a websocket: caller
// PCM in, AI PCM out.
package transport

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"yuzu/interview/internal/auth"
	"yuzu/interview/internal/events"
	"yuzu/interview/internal/registry"

	ws "nhooyr.io/websocket"
)

const (
	outQueue     = 128
	writeTimeout = 5 * time.Second
	// a 100ms PCM16 frame at 48kHz stereo is well under this
	readLimit = 1 << 16
)

// Message is a text control frame from the client.
type Message struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Lookup finds a registered session.
type Lookup interface {
	Get(sessionID string) (registry.Session, bool)
}

type Bridge struct {
	Secret string
	Skew   time.Duration
	Lookup Lookup
	Events *events.Log

	conns *conns
}

func NewBridge(secret string, skew time.Duration, lookup Lookup, evs *events.Log) *Bridge {
	return &Bridge{Secret: secret, Skew: skew, Lookup: lookup, Events: evs, conns: newConns()}
}

// Connections reports how many sessions have audio attached.
func (b *Bridge) Connections() int { return b.conns.count() }

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		metricRejected.WithLabelValues("bad_request").Inc()
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	sess, ok := b.Lookup.Get(sessionID)
	if !ok {
		metricRejected.WithLabelValues("unknown_session").Inc()
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		metricRejected.WithLabelValues("unauthorized").Inc()
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := auth.ValidateAudioToken(b.Secret, token, sessionID, time.Now(), b.Skew); err != nil {
		metricRejected.WithLabelValues("unauthorized").Inc()
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[audio] ws accept: %v", err)
		return
	}
	c.SetReadLimit(readLimit)
	if b.conns.replace(sessionID, c) {
		b.audit(sessionID, "audio_replaced", nil)
	}
	metricConns.Inc()
	defer metricConns.Dec()
	b.audit(sessionID, "audio_connected", nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan []byte, outQueue)
	sess.SetAudioSink(func(pcm []byte) {
		select {
		case out <- pcm:
		default:
			metricFramesDropped.Inc()
		}
	})
	go b.writeLoop(ctx, c, out)

	if d, ok := sess.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-d.Done():
				_ = c.Close(ws.StatusNormalClosure, "session ended")
			case <-ctx.Done():
			}
		}()
	}

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		switch typ {
		case ws.MessageBinary:
			metricFramesIn.Inc()
			sess.HandleIncomingAudio(data)
		case ws.MessageText:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				b.audit(sessionID, "audio_msg_invalid", map[string]any{"error": err.Error()})
				continue
			}
			if msg.Type == "end" {
				reason := msg.Reason
				if reason == "" {
					reason = "caller_ended"
				}
				if err := sess.EndInterview(reason); err != nil {
					log.Printf("[audio] session=%s end: %v", sessionID, err)
				}
			}
		}
	}

	if b.conns.release(sessionID, c) {
		sess.SetAudioSink(nil)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	b.audit(sessionID, "audio_disconnected", nil)
}

func (b *Bridge) writeLoop(ctx context.Context, c *ws.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, ws.MessageBinary, pcm)
			cancel()
			if err != nil {
				return
			}
			metricFramesOut.Inc()
		}
	}
}

func (b *Bridge) audit(sessionID, typ string, payload map[string]any) {
	if b.Events != nil {
		b.Events.Append(sessionID, typ, payload)
	}
}
