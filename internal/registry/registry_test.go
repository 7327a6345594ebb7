package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"yuzu/interview/internal/types"
)

type fakeSession struct {
	id, user string
	created  time.Time

	mu      sync.Mutex
	phase   types.Phase
	endedBy string
}

func (f *fakeSession) ID() string                       { return f.id }
func (f *fakeSession) UserID() string                   { return f.user }
func (f *fakeSession) CreatedAt() time.Time             { return f.created }
func (f *fakeSession) Initialize(context.Context) error { return nil }
func (f *fakeSession) StartInterview() error            { return nil }
func (f *fakeSession) HandleIncomingAudio([]byte)       {}
func (f *fakeSession) SetAudioSink(func([]byte))        {}
func (f *fakeSession) State() types.InterviewState      { return types.InterviewState{SessionID: f.id} }

func (f *fakeSession) EndInterview(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedBy = reason
	f.phase = types.PhaseAbandoned
	return nil
}

func (f *fakeSession) Status() types.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.SessionStatus{SessionID: f.id, UserID: f.user, Phase: f.phase}
}

func (f *fakeSession) ended() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endedBy
}

func newRegistry(max int) (*Registry, map[string]*fakeSession) {
	made := make(map[string]*fakeSession)
	var mu sync.Mutex
	r := New(func(id, user string) (Session, error) {
		s := &fakeSession{id: id, user: user, created: time.Now(), phase: types.PhaseInitializing}
		mu.Lock()
		made[id] = s
		mu.Unlock()
		return s, nil
	}, max)
	return r, made
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newRegistry(10)
	s, err := r.CreateSession("s1", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, ok := r.Get("s1"); !ok || got != s {
		t.Fatal("Get did not return the session")
	}
	if got, ok := r.GetByUser("u1"); !ok || got.ID() != "s1" {
		t.Fatal("GetByUser did not return the session")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("unexpected session")
	}
}

func TestCreateRejections(t *testing.T) {
	r, made := newRegistry(2)
	if _, err := r.CreateSession("s1", "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateSession("s1", "u2"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if _, err := r.CreateSession("s2", "u1"); !errors.Is(err, ErrUserHasActiveSession) {
		t.Fatalf("expected ErrUserHasActiveSession, got %v", err)
	}
	if _, err := r.CreateSession("s2", "u2"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateSession("s3", "u3"); !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
	if !r.AtCapacity() {
		t.Fatal("AtCapacity should report true")
	}

	// a finished session frees its slot and its user
	_ = made["s1"].EndInterview("completed")
	if _, err := r.CreateSession("s3", "u1"); err != nil {
		t.Fatalf("terminal session should not block: %v", err)
	}
	if got, _ := r.GetByUser("u1"); got.ID() != "s3" {
		t.Fatalf("user index not moved, got %s", got.ID())
	}
	if r.Count() != 3 || r.ActiveCount() != 2 {
		t.Fatalf("unexpected counts %d/%d", r.Count(), r.ActiveCount())
	}
}

func TestFactoryError(t *testing.T) {
	r := New(func(string, string) (Session, error) { return nil, errors.New("no questions") }, 1)
	if _, err := r.CreateSession("s1", "u1"); err == nil {
		t.Fatal("expected factory error")
	}
	if r.Count() != 0 {
		t.Fatal("failed create must not register")
	}
}

func TestRemoveAbandonsLiveSession(t *testing.T) {
	r, made := newRegistry(5)
	var forgotten []string
	r.OnRemove(func(id string) { forgotten = append(forgotten, id) })
	_, _ = r.CreateSession("s1", "u1")
	if !r.Remove("s1") {
		t.Fatal("Remove returned false")
	}
	if made["s1"].ended() != "removed" {
		t.Fatalf("live session not ended, reason %q", made["s1"].ended())
	}
	if _, ok := r.GetByUser("u1"); ok {
		t.Fatal("user index not cleared")
	}
	if r.Remove("s1") {
		t.Fatal("second Remove should report false")
	}
	if len(forgotten) != 1 || forgotten[0] != "s1" {
		t.Fatalf("OnRemove not called once: %v", forgotten)
	}
}

func TestCleanupStale(t *testing.T) {
	r, made := newRegistry(5)
	_, _ = r.CreateSession("old", "u1")
	_, _ = r.CreateSession("new", "u2")
	made["old"].created = time.Now().Add(-2 * time.Hour)

	if n := r.CleanupStale(time.Hour); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	if _, ok := r.Get("old"); ok {
		t.Fatal("stale session still registered")
	}
	if made["old"].ended() != "stale" {
		t.Fatalf("stale session not abandoned: %q", made["old"].ended())
	}
	if len(r.List()) != 1 {
		t.Fatalf("unexpected list %v", r.List())
	}
}

func TestSweeper(t *testing.T) {
	r, made := newRegistry(5)
	_, _ = r.CreateSession("s1", "u1")
	made["s1"].created = time.Now().Add(-time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartSweeper(ctx, 5*time.Millisecond, time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for r.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not clean the session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentCreate(t *testing.T) {
	r, _ := newRegistry(10)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.CreateSession(string(rune('a'+i)), string(rune('A'+i))); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if ok != 10 || r.Count() != 10 {
		t.Fatalf("capacity not enforced under concurrency: ok=%d count=%d", ok, r.Count())
	}
}
