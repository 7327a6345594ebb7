// Package questions holds the ordered, immutable interview question bank.
package questions

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"yuzu/interview/internal/types"
)

var (
	ErrEmptyBank       = errors.New("question bank is empty")
	ErrInvalidIndex    = errors.New("invalid question index")
	ErrUnknownQuestion = errors.New("unknown question id")
)

// Manager is safe for concurrent use; nothing mutates it after construction.
type Manager struct {
	questions []types.Question
	byID      map[string]int
}

var defaultBank = []types.Question{
	{
		ID:              "wellbeing-overall",
		Text:            "How would you describe your overall sense of wellbeing over the past few weeks?",
		ExpectedAspects: []string{"general mood", "energy levels", "any recent changes"},
		Context:         "Warm-up question about general wellbeing.",
	},
	{
		ID:              "work-stress",
		Text:            "How does your work or daily routine affect your stress levels?",
		ExpectedAspects: []string{"main sources of stress", "how often it happens", "how it is handled"},
	},
	{
		ID:              "sleep",
		Text:            "Can you tell me about your sleep patterns and how rested you usually feel?",
		ExpectedAspects: []string{"hours of sleep", "sleep quality", "how rested they feel in the morning"},
	},
	{
		ID:              "support-network",
		Text:            "Who do you turn to for support when things get difficult?",
		ExpectedAspects: []string{"people or resources", "how often they reach out", "how helpful it is"},
	},
	{
		ID:              "coping",
		Text:            "What do you usually do to relax or recharge after a demanding day?",
		ExpectedAspects: []string{"specific activities", "how effective they are"},
	},
	{
		ID:              "goals",
		Text:            "Is there anything you would like to change or improve about your wellbeing in the coming months?",
		ExpectedAspects: []string{"a concrete goal", "what might get in the way"},
		Context:         "Closing question; invite reflection.",
	},
}

// Default returns a manager over the built-in question set.
func Default() *Manager {
	m, err := New(defaultBank)
	if err != nil {
		panic(fmt.Sprintf("default question bank: %v", err))
	}
	return m
}

// New validates and copies qs.
func New(qs []types.Question) (*Manager, error) {
	if len(qs) == 0 {
		return nil, ErrEmptyBank
	}
	m := &Manager{
		questions: make([]types.Question, len(qs)),
		byID:      make(map[string]int, len(qs)),
	}
	for i, q := range qs {
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %d (%s): empty text", i, q.ID)
		}
		if _, dup := m.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		m.byID[q.ID] = i
		m.questions[i] = cloneQuestion(q)
	}
	return m, nil
}

type bankFile struct {
	Questions []types.Question `yaml:"questions"`
}

// LoadFile reads a YAML bank of the form `questions: [{id, text, expected_aspects, context}]`.
func LoadFile(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank %s: %w", path, err)
	}
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", path, err)
	}
	return New(f.Questions)
}

// Load returns the file-backed bank when path is set, the default bank otherwise.
func Load(path string) (*Manager, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func (m *Manager) AllQuestions() []types.Question {
	out := make([]types.Question, len(m.questions))
	for i, q := range m.questions {
		out[i] = cloneQuestion(q)
	}
	return out
}

func (m *Manager) QuestionByIndex(i int) (types.Question, error) {
	if i < 0 || i >= len(m.questions) {
		return types.Question{}, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	return cloneQuestion(m.questions[i]), nil
}

func (m *Manager) QuestionByID(id string) (types.Question, int, error) {
	i, ok := m.byID[id]
	if !ok {
		return types.Question{}, -1, fmt.Errorf("%w: %q", ErrUnknownQuestion, id)
	}
	return cloneQuestion(m.questions[i]), i, nil
}

func (m *Manager) QuestionText(i int) (string, error) {
	q, err := m.QuestionByIndex(i)
	if err != nil {
		return "", err
	}
	return q.Text, nil
}

// ExpectedAspects returns the aspects a complete answer to question i should cover.
func (m *Manager) ExpectedAspects(i int) ([]string, error) {
	q, err := m.QuestionByIndex(i)
	if err != nil {
		return nil, err
	}
	return q.ExpectedAspects, nil
}

func (m *Manager) TotalQuestions() int { return len(m.questions) }

// Marshal renders the bank in the LoadFile format.
func (m *Manager) Marshal() ([]byte, error) {
	return yaml.Marshal(bankFile{Questions: m.AllQuestions()})
}

func cloneQuestion(q types.Question) types.Question {
	q.ExpectedAspects = append([]string(nil), q.ExpectedAspects...)
	return q
}
