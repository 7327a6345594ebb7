package decision

import (
	"errors"
	"testing"

	"yuzu/interview/internal/types"
)

const answer = "I think about this a lot and feel mostly positive, though work stresses me some days"

type mockAspects map[int][]string

func (m mockAspects) ExpectedAspects(i int) ([]string, error) {
	a, ok := m[i]
	if !ok {
		return nil, errors.New("no such question")
	}
	return a, nil
}

func question(i int, transcript string) *types.QuestionData {
	return &types.QuestionData{
		QuestionIndex:      i,
		QuestionText:       "How have you been feeling?",
		State:              types.QuestionInProgress,
		VerbatimTranscript: transcript,
	}
}

func strp(s string) *string { return &s }

func TestNilQuestionEndsInterview(t *testing.T) {
	e := New(DefaultConfig(), nil)
	d := e.Evaluate(nil, &types.AnalysisResult{CompletionConfidence: 0, IsOffTopic: true}, 3, 3)
	if d.Action != types.ActionEndInterview {
		t.Fatalf("expected END_INTERVIEW, got %s", d.Action)
	}
}

func TestShortTranscriptStaysSilent(t *testing.T) {
	e := New(DefaultConfig(), nil)
	// 11 characters in 33 bytes
	for _, tr := range []string{"uh", "   yes, I suppose     ", "", "とてもよく眠れています"} {
		d := e.Evaluate(question(0, tr), &types.AnalysisResult{CompletionConfidence: 1, IsOffTopic: true}, 3, 0)
		if d.Action != types.ActionStaySilent || d.Instruction != nil {
			t.Errorf("%q: expected STAY_SILENT, got %+v", tr, d)
		}
	}
	d := e.Evaluate(question(0, "毎晩だいたい七時間ぐらい眠っていて、朝はすっきり起きられます"), &types.AnalysisResult{CompletionConfidence: 1}, 3, 0)
	if d.Action != types.ActionNextQuestion {
		t.Fatalf("long multibyte answer: expected NEXT_QUESTION, got %+v", d)
	}
}

func TestOffTopicRedirectsWithQuestionText(t *testing.T) {
	e := New(DefaultConfig(), nil)
	q := question(1, "Let me tell you about my favourite football team instead")
	d := e.Evaluate(q, &types.AnalysisResult{CompletionConfidence: 0.9, IsOffTopic: true}, 3, 1)
	if d.Action != types.ActionRedirect {
		t.Fatalf("expected REDIRECT, got %s", d.Action)
	}
	if d.Instruction == nil || d.Instruction.Type != types.InstructionRedirect || d.Instruction.Content != q.QuestionText {
		t.Fatalf("unexpected instruction %+v", d.Instruction)
	}
}

func TestConfidentAnswerAdvances(t *testing.T) {
	e := New(DefaultConfig(), nil)
	a := &types.AnalysisResult{CompletionConfidence: 0.85}
	if d := e.Evaluate(question(0, answer), a, 3, 0); d.Action != types.ActionNextQuestion {
		t.Fatalf("expected NEXT_QUESTION on question 1, got %s", d.Action)
	}
	if d := e.Evaluate(question(2, answer), a, 3, 2); d.Action != types.ActionEndInterview {
		t.Fatalf("expected END_INTERVIEW on question 3, got %s", d.Action)
	}
	a.CompletionConfidence = 0.7
	if d := e.Evaluate(question(0, answer), a, 3, 0); d.Action != types.ActionNextQuestion {
		t.Fatalf("threshold is inclusive, got %s", d.Action)
	}
}

func TestFollowUpPriority(t *testing.T) {
	aspects := mockAspects{0: {"", "energy levels"}}
	cases := []struct {
		name string
		a    types.AnalysisResult
		want string
	}{
		{"suggested wins", types.AnalysisResult{CompletionConfidence: 0.3, MissingAspects: []string{"sleep"}, SuggestedFollowUp: strp("How is your sleep?")}, "How is your sleep?"},
		{"missing aspect", types.AnalysisResult{CompletionConfidence: 0.3, MissingAspects: []string{"sleep", "diet"}, SuggestedFollowUp: strp("  ")}, "sleep"},
		{"expected aspect", types.AnalysisResult{CompletionConfidence: 0.3}, "energy levels"},
	}
	for _, c := range cases {
		e := New(DefaultConfig(), aspects)
		d := e.Evaluate(question(0, answer), &c.a, 3, 0)
		if d.Action != types.ActionAskFollowUp {
			t.Errorf("%s: expected ASK_FOLLOWUP, got %s", c.name, d.Action)
			continue
		}
		if d.Instruction == nil || d.Instruction.Type != types.InstructionAskFollowUp || d.Instruction.Content != c.want {
			t.Errorf("%s: unexpected instruction %+v", c.name, d.Instruction)
		}
		if e.FollowUpCount(0) != 1 {
			t.Errorf("%s: expected count 1, got %d", c.name, e.FollowUpCount(0))
		}
	}
}

func TestNoFollowUpContentAdvances(t *testing.T) {
	e := New(DefaultConfig(), mockAspects{})
	d := e.Evaluate(question(0, answer), &types.AnalysisResult{CompletionConfidence: 0.2}, 3, 0)
	if d.Action != types.ActionNextQuestion {
		t.Fatalf("expected NEXT_QUESTION, got %s", d.Action)
	}
	if e.FollowUpCount(0) != 0 {
		t.Fatal("counter must not move without a follow-up")
	}
}

func TestFollowUpBudget(t *testing.T) {
	e := New(DefaultConfig(), mockAspects{1: {"stress"}})
	a := &types.AnalysisResult{CompletionConfidence: 0.4}
	for i := 0; i < 2; i++ {
		if d := e.Evaluate(question(1, answer), a, 3, 1); d.Action != types.ActionAskFollowUp {
			t.Fatalf("silence %d: expected ASK_FOLLOWUP, got %s", i+1, d.Action)
		}
	}
	if d := e.Evaluate(question(1, answer), a, 3, 1); d.Action != types.ActionNextQuestion {
		t.Fatalf("third silence should advance, got %s", d.Action)
	}
	if n := e.FollowUpCount(1); n != 2 {
		t.Fatalf("count exceeded max: %d", n)
	}
	if d := e.Evaluate(question(2, answer), a, 3, 2); d.Action != types.ActionAskFollowUp {
		t.Fatalf("counters are per question, got %s", d.Action)
	}

	e.ResetQuestion(1)
	if e.FollowUpCount(1) != 0 {
		t.Fatal("ResetQuestion did not clear the counter")
	}
	e.Reset()
	if e.FollowUpCount(2) != 0 {
		t.Fatal("Reset did not clear counters")
	}
}

func TestBudgetExhaustedOnLastQuestionEnds(t *testing.T) {
	e := New(Config{MaxFollowUpsPerQuestion: 0}, mockAspects{2: {"x"}})
	d := e.Evaluate(question(2, answer), &types.AnalysisResult{CompletionConfidence: 0.1}, 3, 2)
	if d.Action != types.ActionEndInterview {
		t.Fatalf("expected END_INTERVIEW, got %s", d.Action)
	}
}

func TestNilAnalysisUsesDefault(t *testing.T) {
	e := New(DefaultConfig(), mockAspects{0: {"mood"}})
	d := e.Evaluate(question(0, answer), nil, 3, 0)
	if d.Action != types.ActionAskFollowUp || d.Instruction.Content != "mood" {
		t.Fatalf("default analysis (0.5) should trigger a follow-up, got %+v", d)
	}
}
