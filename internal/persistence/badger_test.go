package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"yuzu/interview/internal/types"
)

func newBadger(t *testing.T) *BadgerStore {
	t.Helper()
	b, err := NewBadgerStore(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := NewBadgerStore(BadgerOptions{}); err == nil {
		t.Fatal("expected error without dir")
	}
}

func TestBadgerRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	want := NewRecord(finishedState(types.PhaseCompleted), StatusCompleted, "completed", nil)
	if err := b.SaveRecord(ctx, want); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	got, err := b.GetRecord(ctx, "s1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.UserID != want.UserID || got.Status != want.Status || len(got.Questions) != 2 {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.StartedAt.Equal(want.StartedAt) || !got.Questions[0].CompletedAt.Equal(*want.Questions[0].CompletedAt) {
		t.Fatal("timestamps did not survive encoding")
	}
	if got.Questions[1].StartedAt != nil {
		t.Fatal("nil timestamp should stay nil")
	}
	if _, err := b.GetRecord(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgerCheckpointReplacedByRecord(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	st := finishedState(types.PhaseActive)
	if err := b.SaveCheckpoint(ctx, Checkpoint{SessionID: "s1", SavedAt: time.Now(), State: st}); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	cp, err := b.LoadCheckpoint(ctx, "s1")
	if err != nil || cp.State.Phase != types.PhaseActive || len(cp.State.Questions) != 2 {
		t.Fatalf("unexpected checkpoint %+v %v", cp, err)
	}
	if err := b.SaveRecord(ctx, NewRecord(finishedState(types.PhaseCompleted), StatusCompleted, "completed", nil)); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if _, err := b.LoadCheckpoint(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("checkpoint should be gone, got %v", err)
	}
}

func TestBadgerListRecords(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	for _, id := range []string{"b", "a", "c"} {
		st := finishedState(types.PhaseAbandoned)
		st.SessionID = id
		if err := b.SaveRecord(ctx, NewRecord(st, StatusAbandoned, "timeout", nil)); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}
	_ = b.SaveCheckpoint(ctx, Checkpoint{SessionID: "live", State: finishedState(types.PhaseActive)})

	list, err := b.ListRecords(ctx)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list) != 3 || list[0].SessionID != "a" || list[2].SessionID != "c" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[1].Metadata.EndReason != "timeout" {
		t.Fatalf("metadata lost: %+v", list[1].Metadata)
	}
}
