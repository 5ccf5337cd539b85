// Package generation implements the Generation Manager: loading a single
// active model backend, building prompts from chat history, running
// blocking or streaming completions, and extracting action directives
// from model output.
package generation

import "time"

// BackendKind discriminates the two runtime families this service
// supports, selected from a model's file extension/tags.
type BackendKind string

const (
	BackendGGUF        BackendKind = "gguf"
	BackendTransformers BackendKind = "transformers"
)

// ChatRole is the speaker of one line of conversation history.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of input conversation history, mirroring the
// shape accepted by /chat/completions.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Action is a single directive the model requested via a fenced
// ```actions block: {"type":"open","payload":{"path":"."}}. Both fields
// are required for an element to count as a valid action.
type Action struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Kind returns the action's type.
func (a Action) Kind() string { return a.Type }

// GenerationResult is the outcome of one blocking generate() call.
type GenerationResult struct {
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
}

// RuntimeStatus reports the loaded backend's health for GET /status.
type RuntimeStatus struct {
	Loaded     bool    `json:"loaded"`
	ModelID    string  `json:"model_id,omitempty"`
	Backend    string  `json:"backend,omitempty"`
	PID        int     `json:"pid,omitempty"`
	MemoryRSS  int64   `json:"memory_rss_bytes,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	UptimeSecs float64 `json:"uptime_seconds,omitempty"`
	Since      time.Time `json:"-"`
}

// GenerateOptions carries per-request sampling parameters.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stream      bool
}
