package voice

import (
	"fmt"
	"strings"

	"yuzu/interview/internal/types"
)

// DefaultSystemInstruction keeps the voice model in a strictly directed role:
// it speaks only when a control message tells it what to say.
const DefaultSystemInstruction = `You are a warm, calm interviewer conducting a spoken wellbeing interview.
You will receive control messages in square brackets, for example [ASK_QUESTION].
Only speak when you receive a control message, and say only what it directs.
Never invent new questions, never answer on the participant's behalf, and never
comment on how complete their answer is. After speaking, stop and listen.
Keep every turn short and conversational.`

// Phrase renders ins as the directive text sent to the model.
func Phrase(ins types.ControlInstruction) (string, error) {
	c := strings.TrimSpace(ins.Content)
	switch ins.Type {
	case types.InstructionAskQuestion:
		if c == "" {
			return "", fmt.Errorf("voice: %s needs content", ins.Type)
		}
		return fmt.Sprintf("[ASK_QUESTION] Ask the participant the following question verbatim, then stop and listen: %q", c), nil
	case types.InstructionAskFollowUp:
		if c == "" {
			return "", fmt.Errorf("voice: %s needs content", ins.Type)
		}
		return fmt.Sprintf("[ASK_FOLLOWUP] Briefly acknowledge their answer, then ask one short follow-up about: %q. Stop and listen.", c), nil
	case types.InstructionRedirect:
		if c == "" {
			return "", fmt.Errorf("voice: %s needs content", ins.Type)
		}
		return fmt.Sprintf("[REDIRECT] The participant has drifted off topic. Gently guide them back to the question: %q. Stop and listen.", c), nil
	case types.InstructionAcknowledge:
		if c == "" {
			return "[ACKNOWLEDGE] Briefly acknowledge what the participant just said. Do not ask anything.", nil
		}
		return fmt.Sprintf("[ACKNOWLEDGE] Briefly acknowledge what the participant just said (%s). Do not ask anything.", c), nil
	case types.InstructionThankAndWait:
		return "[THANK_AND_WAIT] Thank the participant and wait silently. Do not ask a new question.", nil
	case types.InstructionEndInterview:
		if c == "" {
			return "[END_INTERVIEW] The interview is complete. Thank the participant warmly for their time and say goodbye.", nil
		}
		return fmt.Sprintf("[END_INTERVIEW] The interview is complete. %s Thank the participant warmly and say goodbye.", c), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInstruction, ins.Type)
	}
}
