package gemini

import (
	"encoding/json"
	"strings"
)

// Event is one decoded upstream SSE payload. No schema is enforced: every
// accessor treats each nesting level as optional.
type Event map[string]any

// ParseEvent decodes a data line payload. It reports false for anything that
// is not a JSON object, which the relay treats as stream noise.
func ParseEvent(payload string) (Event, bool) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev == nil {
		return nil, false
	}
	return ev, true
}

// Text concatenates the text of every part of the first candidate's content:
// candidates[0].content.parts[*].text. Any missing level yields "".
func (e Event) Text() string {
	candidates, ok := e["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return ""
	}

	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return ""
	}

	content, ok := candidate["content"].(map[string]any)
	if !ok {
		return ""
	}

	parts, ok := content["parts"].([]any)
	if !ok {
		return ""
	}

	var text strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := part["text"].(string); ok {
			text.WriteString(t)
		}
	}
	return text.String()
}

// ErrorMessage reports whether the event carries an "error" field and returns its
// message. An error object without a string message yields an empty message.
func (e Event) ErrorMessage() (string, bool) {
	raw, ok := e["error"]
	if !ok || raw == nil {
		return "", false
	}

	if obj, ok := raw.(map[string]any); ok {
		msg, _ := obj["message"].(string)
		return msg, true
	}

	// Some gateways send "error": "message" instead of an object.
	if msg, ok := raw.(string); ok {
		return msg, true
	}

	return "", true
}

// FinishReason returns candidates[0].finishReason, if present.
func (e Event) FinishReason() string {
	candidates, ok := e["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return ""
	}

	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return ""
	}

	reason, _ := candidate["finishReason"].(string)
	return reason
}
