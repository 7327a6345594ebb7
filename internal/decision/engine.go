// Package decision chooses what the interviewer does when the user falls
// silent. It is a pure rule engine plus per-question follow-up counters.
package decision

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"yuzu/interview/internal/types"
)

type Config struct {
	MinTranscriptLength     int
	CompletionThreshold     float64
	MaxFollowUpsPerQuestion int
}

func DefaultConfig() Config {
	return Config{
		MinTranscriptLength:     20,
		CompletionThreshold:     0.7,
		MaxFollowUpsPerQuestion: 2,
	}
}

// AspectSource supplies the expected aspects of a question by index.
type AspectSource interface {
	ExpectedAspects(index int) ([]string, error)
}

type Engine struct {
	cfg     Config
	aspects AspectSource

	mu        sync.Mutex
	followUps map[int]int
}

// New builds an engine. aspects may be nil.
func New(cfg Config, aspects AspectSource) *Engine {
	def := DefaultConfig()
	if cfg.MinTranscriptLength <= 0 {
		cfg.MinTranscriptLength = def.MinTranscriptLength
	}
	if cfg.CompletionThreshold <= 0 {
		cfg.CompletionThreshold = def.CompletionThreshold
	}
	if cfg.MaxFollowUpsPerQuestion < 0 {
		cfg.MaxFollowUpsPerQuestion = 0
	}
	return &Engine{cfg: cfg, aspects: aspects, followUps: make(map[int]int)}
}

// Evaluate applies the rules in order; the first match wins.
func (e *Engine) Evaluate(current *types.QuestionData, analysis *types.AnalysisResult, totalQuestions, currentIndex int) types.DecisionResult {
	if current == nil {
		return e.record(types.DecisionResult{Action: types.ActionEndInterview, Reason: "all questions completed"})
	}
	a := types.DefaultAnalysis()
	if analysis != nil {
		a = *analysis
	}

	chars := utf8.RuneCountInString(strings.TrimSpace(current.VerbatimTranscript))
	if chars < e.cfg.MinTranscriptLength {
		return e.record(types.DecisionResult{
			Action: types.ActionStaySilent,
			Reason: fmt.Sprintf("transcript too short (%d < %d chars)", chars, e.cfg.MinTranscriptLength),
		})
	}

	if a.IsOffTopic {
		return e.record(types.DecisionResult{
			Action:      types.ActionRedirect,
			Instruction: &types.ControlInstruction{Type: types.InstructionRedirect, Content: current.QuestionText},
			Reason:      "response is off topic",
		})
	}

	last := currentIndex >= totalQuestions-1
	if a.CompletionConfidence >= e.cfg.CompletionThreshold {
		return e.record(advance(last, fmt.Sprintf("answer complete (confidence %.2f >= %.2f)", a.CompletionConfidence, e.cfg.CompletionThreshold)))
	}

	e.mu.Lock()
	asked := e.followUps[currentIndex]
	e.mu.Unlock()
	if asked < e.cfg.MaxFollowUpsPerQuestion {
		if content := e.followUpContent(a, currentIndex); content != "" {
			e.mu.Lock()
			e.followUps[currentIndex]++
			n := e.followUps[currentIndex]
			e.mu.Unlock()
			return e.record(types.DecisionResult{
				Action:      types.ActionAskFollowUp,
				Instruction: &types.ControlInstruction{Type: types.InstructionAskFollowUp, Content: content},
				Reason:      fmt.Sprintf("answer incomplete (confidence %.2f), follow-up %d/%d", a.CompletionConfidence, n, e.cfg.MaxFollowUpsPerQuestion),
			})
		}
	}

	return e.record(advance(last, fmt.Sprintf("moving on (confidence %.2f, follow-ups %d/%d)", a.CompletionConfidence, asked, e.cfg.MaxFollowUpsPerQuestion)))
}

// followUpContent picks the suggested follow-up, then the first missing
// aspect, then the first expected aspect of the question.
func (e *Engine) followUpContent(a types.AnalysisResult, index int) string {
	if a.SuggestedFollowUp != nil {
		if s := strings.TrimSpace(*a.SuggestedFollowUp); s != "" {
			return s
		}
	}
	for _, m := range a.MissingAspects {
		if s := strings.TrimSpace(m); s != "" {
			return s
		}
	}
	if e.aspects != nil {
		if exp, err := e.aspects.ExpectedAspects(index); err == nil {
			for _, s := range exp {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func advance(last bool, reason string) types.DecisionResult {
	if last {
		return types.DecisionResult{Action: types.ActionEndInterview, Reason: reason + "; last question"}
	}
	return types.DecisionResult{Action: types.ActionNextQuestion, Reason: reason}
}

func (e *Engine) record(d types.DecisionResult) types.DecisionResult {
	metricDecisions.WithLabelValues(string(d.Action)).Inc()
	return d
}

func (e *Engine) FollowUpCount(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.followUps[index]
}

// ResetQuestion clears the follow-up counter for one question.
func (e *Engine) ResetQuestion(index int) {
	e.mu.Lock()
	delete(e.followUps, index)
	e.mu.Unlock()
}

func (e *Engine) Reset() {
	e.mu.Lock()
	e.followUps = make(map[int]int)
	e.mu.Unlock()
}
