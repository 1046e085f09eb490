package convert

import (
	"testing"

	"github.com/kiro-gateway/gateway/internal/unified"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIRequestToUnified_Basic(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"}
		],
		"stream": true
	}`)

	req, err := OpenAIRequestToUnified(body)
	require.NoError(t, err)
	assert.Equal(t, "be terse", req.System)
	assert.True(t, req.Options.Stream)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, unified.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].TextContent())
}

func TestOpenAIRequestToUnified_EmptyMessagesFails(t *testing.T) {
	_, err := OpenAIRequestToUnified([]byte(`{"messages":[]}`))
	assert.Error(t, err)
}

func TestOpenAIRequestToUnified_ToolCallsAndResults(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4",
		"messages": [
			{"role": "user", "content": "weather?"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"sf\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "sunny"}
		]
	}`)

	req, err := OpenAIRequestToUnified(body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, unified.RoleAssistant, req.Messages[1].Role)
	calls := req.Messages[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].ToolCallName)
	assert.Equal(t, unified.RoleTool, req.Messages[2].Role)
}

func TestOpenAIRequestToUnified_UnsupportedContentBlockFails(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":[{"type":"video","video_url":"x"}]}]}`)
	_, err := OpenAIRequestToUnified(body)
	assert.Error(t, err)
}

func TestAnthropicRequestToUnified_Basic(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4.5",
		"max_tokens": 100,
		"system": [{"type":"text","text":"be terse"}],
		"messages": [{"role": "user", "content": "hello"}]
	}`)

	req, err := AnthropicRequestToUnified(body)
	require.NoError(t, err)
	assert.Equal(t, "be terse", req.System)
	assert.Equal(t, 100, req.Options.MaxTokens)
	require.Len(t, req.Messages, 1)
}

func TestAnthropicRequestToUnified_NonPositiveMaxTokensFails(t *testing.T) {
	body := []byte(`{"max_tokens":0,"messages":[{"role":"user","content":"hi"}]}`)
	_, err := AnthropicRequestToUnified(body)
	assert.Error(t, err)
}

func TestAnthropicRequestToUnified_EmptyMessagesFails(t *testing.T) {
	body := []byte(`{"max_tokens":10,"messages":[]}`)
	_, err := AnthropicRequestToUnified(body)
	assert.Error(t, err)
}

func TestAnthropicRequestToUnified_ToolUseAndResult(t *testing.T) {
	body := []byte(`{
		"max_tokens": 100,
		"messages": [
			{"role":"user","content":"weather?"},
			{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"get_weather","input":{"city":"sf"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"sunny"}]}
		]
	}`)

	req, err := AnthropicRequestToUnified(body)
	require.NoError(t, err)
	// the tool_result user message is preceded by an assistant message
	// already, so no synthetic turn should be inserted
	require.Len(t, req.Messages, 3)
}

func TestAnthropicRequestToUnified_InsertsSyntheticAssistantTurn(t *testing.T) {
	body := []byte(`{
		"max_tokens": 100,
		"messages": [
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"sunny"}]}
		]
	}`)

	req, err := AnthropicRequestToUnified(body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, unified.RoleAssistant, req.Messages[0].Role)
}

func TestAnthropicRequestToUnified_ToolChoice(t *testing.T) {
	body := []byte(`{"max_tokens":10,"messages":[{"role":"user","content":"x"}],"tool_choice":{"type":"tool","name":"get_weather"}}`)
	req, err := AnthropicRequestToUnified(body)
	require.NoError(t, err)
	assert.Equal(t, "get_weather", req.Options.ToolChoice)
}

func TestBuildKiroPayload_HistoryAndCurrentMessageSplit(t *testing.T) {
	req := &UnifiedRequest{
		System: "be terse",
		Messages: []unified.Message{
			{Role: unified.RoleUser, Content: []unified.ContentBlock{{Type: unified.BlockText, Text: "first"}}},
			{Role: unified.RoleAssistant, Content: []unified.ContentBlock{{Type: unified.BlockText, Text: "reply"}}},
			{Role: unified.RoleUser, Content: []unified.ContentBlock{{Type: unified.BlockText, Text: "second"}}},
		},
	}

	payload, err := BuildKiroPayload(req, "CLAUDE_SONNET_4_20250514_V1_0", "arn:aws:profile")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "arn:aws:profile")
	assert.Contains(t, string(payload), "second")
	assert.Contains(t, string(payload), "reply")
}
