package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractActionsNoFence(t *testing.T) {
	msg, actions := ExtractActions("just a plain reply")
	assert.Equal(t, "just a plain reply", msg)
	assert.Empty(t, actions)
}

func TestExtractActionsUnterminatedFenceLeftAlone(t *testing.T) {
	raw := "Hello\n```actions\n[{\"type\":\"open\",\"payload\":{}}]"
	msg, actions := ExtractActions(raw)
	assert.Equal(t, raw, msg)
	assert.Empty(t, actions)
}

func TestExtractActionsArray(t *testing.T) {
	raw := "Hi!\n```actions\n[{\"type\":\"open\",\"payload\":{\"path\":\".\"}}]\n```\nBye."
	msg, actions := ExtractActions(raw)
	assert.Equal(t, "Hi!\n\nBye.", msg)
	assert.Len(t, actions, 1)
	assert.Equal(t, "open", actions[0].Kind())
	assert.Equal(t, ".", actions[0].Payload["path"])
}

func TestExtractActionsSkipsMalformedElements(t *testing.T) {
	raw := "```actions\n" +
		"[{\"type\":\"open\",\"payload\":{\"path\":\".\"}}," +
		"\"not an object\"," +
		"{\"payload\":{}}," +
		"{\"type\":\"missing-payload\"}]\n```"
	_, actions := ExtractActions(raw)
	assert.Len(t, actions, 1)
	assert.Equal(t, "open", actions[0].Kind())
}

func TestExtractActionsOnlyFirstFenceParsed(t *testing.T) {
	raw := "```actions\n[{\"type\":\"open\",\"payload\":{\"path\":\"a\"}}]\n```\n" +
		"middle\n```actions\n[{\"type\":\"read\",\"payload\":{\"path\":\"b\"}}]\n```"
	msg, actions := ExtractActions(raw)
	assert.Len(t, actions, 1)
	assert.Equal(t, "open", actions[0].Kind())
	assert.Contains(t, msg, "middle")
	assert.Contains(t, msg, "```actions")
	assert.Contains(t, msg, "\"read\"")
}

func TestBuildPromptLabelsRoles(t *testing.T) {
	history := []ChatMessage{
		{Role: RoleUser, Content: "earlier question"},
		{Role: RoleAssistant, Content: "earlier answer"},
		{Role: RoleUser, Content: ""},
	}
	prompt := BuildPrompt("Be helpful.", history, "hi")
	assert.Contains(t, prompt, "System: Be helpful.")
	assert.Contains(t, prompt, "User: earlier question")
	assert.Contains(t, prompt, "Assistant: earlier answer")
	assert.True(t, prompt[len(prompt)-len("Assistant:"):] == "Assistant:")
	assert.Contains(t, prompt, "User: hi\nAssistant:")
}

func TestBuildPromptOmitsSystemLineWhenEmpty(t *testing.T) {
	prompt := BuildPrompt("", nil, "hi")
	assert.Equal(t, "User: hi\nAssistant:", prompt)
}
