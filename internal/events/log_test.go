package events

import "testing"

func TestAppendAndList(t *testing.T) {
	l := NewLog(0)
	e := l.Append("s1", "transcript", map[string]any{"text": "hello"})
	if e.ID == "" || e.SessionID != "s1" || e.Timestamp.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
	got := l.List("s1")
	if len(got) != 1 || got[0].Type != "transcript" {
		t.Fatalf("unexpected list %+v", got)
	}
	got[0].Type = "mutated"
	if l.List("s1")[0].Type != "transcript" {
		t.Fatal("List must return a copy")
	}
	if len(l.List("other")) != 0 {
		t.Fatal("sessions must not share trails")
	}
}

func TestTruncation(t *testing.T) {
	l := NewLog(5)
	for i := 0; i < 12; i++ {
		l.Append("s1", "decision", map[string]any{"i": i})
	}
	got := l.List("s1")
	if len(got) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(got))
	}
	markers := 0
	for _, e := range got {
		if e.Type == TypeTruncated {
			markers++
		}
	}
	if markers != 1 {
		t.Fatalf("expected exactly one marker, got %d", markers)
	}
	last := got[len(got)-1]
	if last.Type == TypeTruncated {
		if last.Payload["dropped"] != 8 {
			t.Fatalf("expected 8 dropped, got %v", last.Payload["dropped"])
		}
	} else if last.Payload["i"] != 11 {
		t.Fatalf("newest event missing: %+v", last)
	}

	l.Forget("s1")
	if len(l.List("s1")) != 0 {
		t.Fatal("Forget did not clear trail")
	}
}
