// Package prompt builds the text payload sent to text-generation endpoints.
package prompt

import (
	"strings"

	"github.com/ashureev/lawaid/internal/domain"
)

// AssistantCue ends every assembled prompt so the model continues as the
// assistant.
const AssistantCue = "Assistant:"

// Assemble renders the instruction followed by one "{Label}: {text}" line
// per turn and the trailing assistant cue. The whole history is included on
// every call.
func Assemble(instruction string, conversation []domain.Turn) string {
	lines := make([]string, 0, len(conversation))
	for _, turn := range conversation {
		if turn.Role() == domain.RoleSystem {
			continue
		}
		lines = append(lines, turn.Role().Label()+": "+turn.Text())
	}

	var sb strings.Builder
	if instruction != "" {
		sb.WriteString(instruction)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n")
	sb.WriteString(AssistantCue)
	return sb.String()
}

// WithContext appends a reference block to instruction. An empty reference
// leaves the instruction unchanged.
func WithContext(instruction, reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return instruction
	}
	return instruction + "\n\nReference material (use it only if relevant):\n" + reference
}

// ExtractReply returns the text after the last assistant cue. Text
// generation endpoints echo the prompt before the continuation.
func ExtractReply(generated string) string {
	if i := strings.LastIndex(generated, AssistantCue); i >= 0 {
		generated = generated[i+len(AssistantCue):]
	}
	return strings.TrimSpace(generated)
}
