package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yuzu/interview/internal/persistence"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunJQ(t *testing.T) {
	rec := persistence.Record{
		SessionID: "s1",
		UserID:    "u1",
		Status:    persistence.StatusCompleted,
		Questions: []persistence.QuestionRecord{{QuestionIndex: 0, VerbatimAnswer: "fine"}},
	}
	var buf bytes.Buffer
	if err := runJQ(&buf, ".questions[].verbatimAnswer", rec); err != nil {
		t.Fatalf("jq: %v", err)
	}
	if strings.TrimSpace(buf.String()) != `"fine"` {
		t.Fatalf("unexpected jq output %q", buf.String())
	}
	if err := runJQ(&buf, ".[", rec); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFilterRecords(t *testing.T) {
	recs := []persistence.Record{
		{SessionID: "a", UserID: "u1", Status: persistence.StatusCompleted},
		{SessionID: "b", UserID: "u2", Status: persistence.StatusError},
		{SessionID: "c", UserID: "u1", Status: persistence.StatusAbandoned},
	}
	if got := filterRecords(recs, "u1", ""); len(got) != 2 {
		t.Fatalf("expected 2 for u1, got %d", len(got))
	}
	if got := filterRecords(recs, "", persistence.StatusError); len(got) != 1 || got[0].SessionID != "b" {
		t.Fatalf("unexpected status filter result %+v", got)
	}
	if len(recs) != 3 {
		t.Fatalf("input slice modified")
	}
}

func TestRecordsFromBadger(t *testing.T) {
	dir := t.TempDir()
	st, err := persistence.NewBadgerStore(persistence.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now()
	for _, r := range []persistence.Record{
		{SessionID: "s1", UserID: "u1", Status: persistence.StatusCompleted, CompletedAt: now},
		{SessionID: "s2", UserID: "u2", Status: persistence.StatusAbandoned, CompletedAt: now.Add(time.Second)},
	} {
		if err := st.SaveRecord(context.Background(), r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	st.Close()

	out, err := run(t, "--backend", "badger", "--badger-dir", dir, "records", "list", "--user", "u2", "--jq", ".status")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != `"abandoned"` {
		t.Fatalf("unexpected list output %q", out)
	}

	out, err = run(t, "--backend", "badger", "--badger-dir", dir, "records", "show", "s1", "--yaml")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "sessionId: s1") {
		t.Fatalf("unexpected show output %q", out)
	}

	if _, err := run(t, "--backend", "badger", "--badger-dir", dir, "records", "show", "missing"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestQuestionsValidateAndDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	bank := "questions:\n  - id: one\n    text: How are you?\n    expected_aspects: [mood]\n  - text: Anything else?\n"
	if err := os.WriteFile(path, []byte(bank), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := run(t, "questions", "validate", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok: 2 questions (1 without expected aspects)") {
		t.Fatalf("unexpected validate output %q", out)
	}

	out, err = run(t, "questions", "dump", "--file", path)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "id: q2") || !strings.Contains(out, "text: How are you?") {
		t.Fatalf("unexpected dump output %q", out)
	}

	if _, err := run(t, "records", "list", "--backend", "memory"); err == nil {
		t.Fatalf("memory backend should be refused")
	}
}
