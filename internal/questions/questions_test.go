package questions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"yuzu/interview/internal/types"
)

func TestDefaultBank(t *testing.T) {
	m := Default()
	if m.TotalQuestions() == 0 {
		t.Fatal("default bank should not be empty")
	}
	q, err := m.QuestionByIndex(0)
	if err != nil {
		t.Fatalf("QuestionByIndex(0): %v", err)
	}
	got, idx, err := m.QuestionByID(q.ID)
	if err != nil || idx != 0 || got.Text != q.Text {
		t.Fatalf("QuestionByID(%q) = %+v, %d, %v", q.ID, got, idx, err)
	}
}

func TestInvalidIndex(t *testing.T) {
	m := Default()
	for _, i := range []int{-1, m.TotalQuestions()} {
		if _, err := m.QuestionByIndex(i); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("index %d: expected ErrInvalidIndex, got %v", i, err)
		}
		if _, err := m.QuestionText(i); !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("QuestionText(%d): expected ErrInvalidIndex, got %v", i, err)
		}
	}
	if _, _, err := m.QuestionByID("nope"); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	m, err := New([]types.Question{{ID: "a", Text: "Question A?", ExpectedAspects: []string{"x", "y"}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	all := m.AllQuestions()
	all[0].Text = "mutated"
	all[0].ExpectedAspects[0] = "mutated"

	aspects, _ := m.ExpectedAspects(0)
	aspects[1] = "mutated"

	q, _ := m.QuestionByIndex(0)
	if q.Text != "Question A?" {
		t.Fatalf("text was mutated through a returned copy: %q", q.Text)
	}
	if q.ExpectedAspects[0] != "x" || q.ExpectedAspects[1] != "y" {
		t.Fatalf("aspects were mutated through a returned copy: %v", q.ExpectedAspects)
	}
}

func TestNewRejectsBadBanks(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptyBank) {
		t.Fatalf("expected ErrEmptyBank, got %v", err)
	}
	if _, err := New([]types.Question{{ID: "a", Text: "  "}}); err == nil {
		t.Fatal("expected error for blank text")
	}
	if _, err := New([]types.Question{{ID: "a", Text: "one"}, {ID: "a", Text: "two"}}); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestNewFillsMissingIDs(t *testing.T) {
	m, err := New([]types.Question{{Text: "first"}, {Text: "second"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, idx, err := m.QuestionByID("q2"); err != nil || idx != 1 {
		t.Fatalf("expected generated id q2 at index 1, got %d, %v", idx, err)
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.yaml")
	src := `questions:
  - id: mood
    text: How have you been feeling lately?
    expected_aspects: [mood, energy]
  - id: sleep
    text: How do you sleep?
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.TotalQuestions() != 2 {
		t.Fatalf("expected 2 questions, got %d", m.TotalQuestions())
	}
	aspects, _ := m.ExpectedAspects(0)
	if len(aspects) != 2 || aspects[0] != "mood" {
		t.Fatalf("unexpected aspects %v", aspects)
	}

	out, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path2 := filepath.Join(dir, "bank2.yaml")
	if err := os.WriteFile(path2, out, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m2, err := LoadFile(path2)
	if err != nil {
		t.Fatalf("LoadFile(marshalled): %v", err)
	}
	if txt, _ := m2.QuestionText(1); txt != "How do you sleep?" {
		t.Fatalf("unexpected text after reload: %q", txt)
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	m, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.TotalQuestions() != Default().TotalQuestions() {
		t.Fatal("expected default bank")
	}
}
