package generation

import "strings"

// BuildPrompt renders a system message, prior turns, and the current
// user prompt into the single text blob the backend's completion call
// consumes, using System/User/Assistant line labelling so a backend's
// fine-tuning expectations around turn boundaries keep working
// unchanged. The trailing "Assistant:" is always the last line, with
// no following content and no trailing space, cueing the backend to
// begin its reply there.
func BuildPrompt(systemPrompt string, history []ChatMessage, prompt string) string {
	var lines []string

	if systemPrompt != "" {
		lines = append(lines, "System: "+systemPrompt)
	}
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		lines = append(lines, titleCaseRole(m.Role)+": "+m.Content)
	}
	lines = append(lines, "User: "+prompt)
	lines = append(lines, "Assistant:")

	return strings.Join(lines, "\n")
}

// titleCaseRole renders a ChatRole with its first letter capitalised,
// matching the System/User/Assistant labels BuildPrompt emits.
func titleCaseRole(role ChatRole) string {
	s := string(role)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
