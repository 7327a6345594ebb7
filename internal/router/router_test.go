package router

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
)

type mockDest struct {
	mu     sync.Mutex
	ready  bool
	err    error
	panics bool
	frames [][]byte
}

func (m *mockDest) Send(b []byte) error {
	if m.panics {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, b)
	return nil
}

func (m *mockDest) IsReady() bool { return m.ready }

func (m *mockDest) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func TestRouteToReadyDestinations(t *testing.T) {
	r := New()
	a := &mockDest{ready: true}
	b := &mockDest{ready: false}
	r.AddDestination("a", a)
	r.AddDestination("b", b)
	r.Start()

	r.RouteAudio([]byte{1, 2, 3, 4})
	if a.count() != 1 {
		t.Fatalf("ready destination should get the frame, got %d", a.count())
	}
	if b.count() != 0 {
		t.Fatalf("not-ready destination should be skipped, got %d", b.count())
	}
	st := r.Stats()
	if st["a"].Frames != 1 || st["a"].Bytes != 4 {
		t.Fatalf("unexpected stats for a: %+v", st["a"])
	}
	if st["b"].NotReady != 1 {
		t.Fatalf("unexpected stats for b: %+v", st["b"])
	}
}

func TestFailingDestinationIsIsolated(t *testing.T) {
	r := New()
	bad := &mockDest{ready: true, err: errors.New("closed")}
	panicky := &mockDest{ready: true, panics: true}
	good := &mockDest{ready: true}
	r.AddDestination("bad", bad)
	r.AddDestination("panicky", panicky)
	r.AddDestination("good", good)
	r.Start()

	r.RouteAudio([]byte{0, 0})
	r.RouteAudio([]byte{0, 0})
	if good.count() != 2 {
		t.Fatalf("good destination should receive both frames, got %d", good.count())
	}
	st := r.Stats()
	if st["bad"].Errors != 2 || st["panicky"].Errors != 2 {
		t.Fatalf("errors not counted: %+v", st)
	}
}

func TestSendFailureLoggingIsThrottled(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	r := New()
	full := &mockDest{ready: true, err: errors.New("send queue full")}
	r.AddDestination("stt", full)
	r.Start()
	for i := 0; i < 2*errLogEvery+10; i++ {
		r.RouteAudio([]byte{0, 0})
	}
	if got := r.Stats()["stt"].Errors; got != 2*errLogEvery+10 {
		t.Fatalf("every failure should be counted, got %d", got)
	}
	// first failure, then errLogEvery and 2*errLogEvery
	if n := strings.Count(buf.String(), "send to stt failed"); n != 3 {
		t.Fatalf("expected 3 log lines, got %d:\n%s", n, buf.String())
	}
}

func TestStoppedRouterIsNoop(t *testing.T) {
	r := New()
	d := &mockDest{ready: true}
	r.AddDestination("d", d)
	var seen int
	r.OnActivity(func([]byte) { seen++ })

	r.RouteAudio([]byte{1, 1})
	r.Start()
	r.RouteAudio([]byte{1, 1})
	r.Stop()
	r.RouteAudio([]byte{1, 1})

	if d.count() != 1 || seen != 1 {
		t.Fatalf("expected exactly one routed frame, got dest=%d observers=%d", d.count(), seen)
	}
}

func TestRemoveDestination(t *testing.T) {
	r := New()
	d := &mockDest{ready: true}
	r.AddDestination("d", d)
	r.RemoveDestination("d")
	r.Start()
	r.RouteAudio([]byte{1, 1})
	if d.count() != 0 {
		t.Fatal("removed destination still received audio")
	}
	if _, ok := r.Stats()["d"]; ok {
		t.Fatal("removed destination still in stats")
	}
}

func TestDestinationFuncDefaultsReady(t *testing.T) {
	var got []byte
	d := DestinationFunc{SendFunc: func(b []byte) error { got = b; return nil }}
	if !d.IsReady() {
		t.Fatal("DestinationFunc without ReadyFunc should be ready")
	}
	_ = d.Send([]byte{9})
	if len(got) != 1 {
		t.Fatal("SendFunc not called")
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 || RMS([]byte{1}) != 0 {
		t.Fatal("short frames should have zero RMS")
	}
	buf := make([]byte, 8)
	for i := 0; i < 4; i++ {
		v := int16(1000)
		if i%2 == 1 {
			v = -1000
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	if got := RMS(buf); math.Abs(got-1000) > 0.001 {
		t.Fatalf("expected RMS 1000, got %f", got)
	}
}
