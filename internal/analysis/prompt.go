package analysis

import (
	"fmt"
	"strings"
)

const systemPrompt = `You evaluate answers given during a spoken wellbeing interview.
Respond with a single JSON object and nothing else:
{"completionConfidence": number 0..1, "isOffTopic": boolean, "missingAspects": [string, at most 3], "suggestedFollowUp": string or null}
completionConfidence is how fully the answer addresses the question.
isOffTopic is true only when the answer is clearly unrelated to the question.
suggestedFollowUp is one short, gentle question that would draw out a missing aspect, or null.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(req.QuestionText))
	if c := strings.TrimSpace(req.QuestionContext); c != "" {
		fmt.Fprintf(&b, "Context: %s\n", c)
	}
	fmt.Fprintf(&b, "Answer so far (verbatim transcript): %s\n", strings.TrimSpace(req.Transcript))
	b.WriteString("Return the JSON object now.")
	return b.String()
}
