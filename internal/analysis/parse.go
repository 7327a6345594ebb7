package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"yuzu/interview/internal/types"
)

const maxMissingAspects = 3

var ErrParse = errors.New("unparsable analysis output")

type rawResult struct {
	CompletionConfidence *float64 `json:"completionConfidence"`
	IsOffTopic           bool     `json:"isOffTopic"`
	MissingAspects       []string `json:"missingAspects"`
	SuggestedFollowUp    *string  `json:"suggestedFollowUp"`
}

// Parse extracts an AnalysisResult from model output. Markdown fences and
// surrounding prose are tolerated, and malformed JSON is repaired.
func Parse(text string) (types.AnalysisResult, error) {
	body := extractObject(text)
	if body == "" {
		return types.AnalysisResult{}, fmt.Errorf("%w: no JSON object", ErrParse)
	}
	var raw rawResult
	if err := unmarshalJSON([]byte(body), &raw); err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if raw.CompletionConfidence == nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: missing completionConfidence", ErrParse)
	}

	res := types.AnalysisResult{
		CompletionConfidence: clamp01(*raw.CompletionConfidence),
		IsOffTopic:           raw.IsOffTopic,
		MissingAspects:       []string{},
	}
	for _, a := range raw.MissingAspects {
		if a = strings.TrimSpace(a); a != "" && len(res.MissingAspects) < maxMissingAspects {
			res.MissingAspects = append(res.MissingAspects, a)
		}
	}
	if raw.SuggestedFollowUp != nil {
		if f := strings.TrimSpace(*raw.SuggestedFollowUp); f != "" {
			res.SuggestedFollowUp = &f
		}
	}
	return res, nil
}

// unmarshalJSON retries once through jsonrepair on syntax errors.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func extractObject(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	if end := strings.LastIndex(s, "}"); end > start {
		return s[start : end+1]
	}
	// Truncated output; let jsonrepair close it.
	return s[start:]
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
