package generation

import (
	"encoding/json"
	"strings"
)

// actionsFenceOpen is the literal marker introducing an action directive
// block; fenceClose terminates it.
const (
	actionsFenceOpen = "```actions"
	fenceClose       = "```"
)

// ExtractActions finds the first occurrence of the ```actions marker in
// raw model output. If the marker is absent or unterminated, the text is
// returned with surrounding whitespace trimmed and no actions are reported. Otherwise the text
// between the marker and the next fence is parsed as a JSON array of
// action objects, and the cleaned message is the concatenation of the
// text before the opening fence and after the closing fence, trimmed.
// Any later ```actions occurrence is left untouched in the message.
func ExtractActions(raw string) (string, []Action) {
	start := strings.Index(raw, actionsFenceOpen)
	if start == -1 {
		return strings.TrimSpace(raw), nil
	}

	bodyStart := start + len(actionsFenceOpen)
	switch {
	case strings.HasPrefix(raw[bodyStart:], "\r\n"):
		bodyStart += 2
	case strings.HasPrefix(raw[bodyStart:], "\n"):
		bodyStart++
	}

	rel := strings.Index(raw[bodyStart:], fenceClose)
	if rel == -1 {
		return strings.TrimSpace(raw), nil
	}
	end := bodyStart + rel

	message := strings.TrimSpace(raw[:start] + raw[end+len(fenceClose):])
	actions := parseActionsBlock(raw[bodyStart:end])
	if len(actions) == 0 {
		return message, nil
	}
	return message, actions
}

// parseActionsBlock parses body as a JSON array, skipping any element
// that is not an object with a string "type" and an object "payload".
// A single malformed element never drops the rest of the array.
func parseActionsBlock(body string) []Action {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil
	}

	var actions []Action
	for _, r := range raw {
		var a Action
		if err := json.Unmarshal(r, &a); err != nil {
			continue
		}
		if a.Type == "" || a.Payload == nil {
			continue
		}
		actions = append(actions, a)
	}
	return actions
}
