package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"yuzu/interview/internal/types"
)

func TestPhrase(t *testing.T) {
	cases := []struct {
		ins  types.ControlInstruction
		want string
	}{
		{types.ControlInstruction{Type: types.InstructionAskQuestion, Content: "How do you sleep?"}, "How do you sleep?"},
		{types.ControlInstruction{Type: types.InstructionAskFollowUp, Content: "sleep quality"}, "[ASK_FOLLOWUP]"},
		{types.ControlInstruction{Type: types.InstructionRedirect, Content: "How do you sleep?"}, "back to the question"},
		{types.ControlInstruction{Type: types.InstructionAcknowledge}, "[ACKNOWLEDGE]"},
		{types.ControlInstruction{Type: types.InstructionThankAndWait}, "[THANK_AND_WAIT]"},
		{types.ControlInstruction{Type: types.InstructionEndInterview}, "say goodbye"},
	}
	for _, c := range cases {
		got, err := Phrase(c.ins)
		if err != nil {
			t.Errorf("%s: %v", c.ins.Type, err)
			continue
		}
		if !strings.Contains(got, c.want) {
			t.Errorf("%s: %q does not contain %q", c.ins.Type, got, c.want)
		}
	}
	if _, err := Phrase(types.ControlInstruction{Type: "SING"}); !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("expected ErrUnknownInstruction, got %v", err)
	}
	if _, err := Phrase(types.ControlInstruction{Type: types.InstructionAskQuestion}); err == nil {
		t.Error("ASK_QUESTION without content should fail")
	}
}

func TestHandleDemux(t *testing.T) {
	c := New(Config{})
	pcm := []byte{1, 0, 2, 0}
	msg := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` +
		base64.StdEncoding.EncodeToString(pcm) + `"}},{"text":"hi"}]},"inputTranscription":{"text":"I slept badly"}}}`
	evs := c.handle([]byte(msg))
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %+v", evs)
	}
	if evs[0].Kind != EventInputTranscript || evs[0].Text != "I slept badly" {
		t.Fatalf("unexpected transcript event %+v", evs[0])
	}
	if evs[1].Kind != EventAudio || len(evs[1].Audio) != 4 {
		t.Fatalf("unexpected audio event %+v", evs[1])
	}
	if evs[2].Kind != EventText || evs[2].Text != "hi" {
		t.Fatalf("unexpected text event %+v", evs[2])
	}

	evs = c.handle([]byte(`{"serverContent":{"turnComplete":true}}`))
	if len(evs) != 1 || evs[0].Kind != EventTurnComplete {
		t.Fatalf("expected turn complete, got %+v", evs)
	}
	evs = c.handle([]byte(`{"serverContent":{"interrupted":true}}`))
	if len(evs) != 1 || evs[0].Kind != EventInterrupted {
		t.Fatalf("expected interrupted, got %+v", evs)
	}
	evs = c.handle([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad"}}`))
	if len(evs) != 1 || evs[0].Kind != EventError {
		t.Fatalf("expected error event, got %+v", evs)
	}
	if evs := c.handle([]byte(`{"setupComplete":{}}`)); len(evs) != 0 {
		t.Fatalf("setupComplete should produce no events, got %+v", evs)
	}
}

func TestInterruptSuppressesRestOfTurn(t *testing.T) {
	c := New(Config{})
	audio := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"AAA="}}]}}}`
	c.Interrupt()
	if evs := c.handle([]byte(audio)); len(evs) != 0 {
		t.Fatalf("audio should be suppressed after Interrupt, got %+v", evs)
	}
	c.handle([]byte(`{"serverContent":{"turnComplete":true}}`))
	if evs := c.handle([]byte(audio)); len(evs) != 1 {
		t.Fatalf("next turn should play again, got %+v", evs)
	}
}

func TestServerInterruptEndsLocalSuppression(t *testing.T) {
	c := New(Config{})
	audio := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"AAA="}}]}}}`
	c.Interrupt()
	evs := c.handle([]byte(`{"serverContent":{"interrupted":true}}`))
	if len(evs) != 1 || evs[0].Kind != EventInterrupted {
		t.Fatalf("expected interrupted event, got %+v", evs)
	}
	if evs := c.handle([]byte(audio)); len(evs) != 1 || evs[0].Kind != EventAudio {
		t.Fatalf("audio after the server cut the turn should play, got %+v", evs)
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestConnectSetupAndInstruction(t *testing.T) {
	var setupSeen atomic.Value
	instr := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			http.Error(w, "no key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sm setupMessage
		if err := conn.ReadJSON(&sm); err != nil {
			return
		}
		setupSeen.Store(sm)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cc clientContentMessage
			if json.Unmarshal(data, &cc) == nil && len(cc.ClientContent.Turns) > 0 {
				instr <- cc.ClientContent.Turns[0].Parts[0].Text
				_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{
					"modelTurn": map[string]any{"parts": []any{map[string]any{
						"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "AQI="},
					}}},
				}})
				_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
			}
		}
	}))
	defer srv.Close()

	c := New(Config{
		APIKey:             "secret",
		BaseURL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Model:              "gemini-test",
		Voice:              "Puck",
		InputTranscription: true,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if !c.IsReady() || !c.Transcribing() {
		t.Fatal("expected ready and transcribing after Connect")
	}

	sm := setupSeen.Load().(setupMessage)
	if sm.Setup.Model != "models/gemini-test" {
		t.Errorf("unexpected model %q", sm.Setup.Model)
	}
	if sm.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Errorf("voice not sent")
	}
	if sm.Setup.InputAudioTranscription == nil {
		t.Errorf("input transcription not requested")
	}
	if sm.Setup.SystemInstruction == nil || sm.Setup.SystemInstruction.Parts[0].Text != DefaultSystemInstruction {
		t.Errorf("system instruction not sent")
	}

	if err := c.SendControlInstruction(types.ControlInstruction{Type: types.InstructionAskQuestion, Content: "How are you?"}); err != nil {
		t.Fatalf("SendControlInstruction: %v", err)
	}
	select {
	case got := <-instr:
		if !strings.Contains(got, "How are you?") {
			t.Fatalf("unexpected instruction text %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received instruction")
	}

	var kinds []EventKind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-c.Events():
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	if kinds[0] != EventAudio || kinds[1] != EventTurnComplete {
		t.Fatalf("unexpected event order %v", kinds)
	}
}

func TestConnectFailsOnSetupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteJSON(map[string]any{"error": map[string]any{"code": 403, "message": "denied"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	err := c.Connect(context.Background())
	if !errors.Is(err, ErrSetupFailed) {
		t.Fatalf("expected ErrSetupFailed, got %v", err)
	}
	if c.IsReady() {
		t.Fatal("should not be ready")
	}
	if err := c.SendAudio([]byte{0, 0}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReconnectExhaustion(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&conns, 1)
		if n > 1 {
			http.Error(w, "gone", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		conn.Close()
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxReconnectAttempts: 2,
		ReconnectBackoff:     5 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatal("events closed before exhaustion error")
			}
			if ev.Kind == EventError && errors.Is(ev.Err, ErrReconnectExhausted) {
				if c.IsReady() {
					t.Fatal("should not be ready after exhaustion")
				}
				if n := atomic.LoadInt32(&conns); n != 3 {
					t.Fatalf("expected 3 connection attempts, got %d", n)
				}
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for exhaustion")
		}
	}
}
