// Package tokenizer estimates request token costs ahead of sending them
// upstream, using the cl100k_base BPE vocabulary as a proxy for models
// the gateway doesn't have a native tokenizer for. Output token counts
// always come from the upstream's usage event, never from this package.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/kiro-gateway/gateway/internal/unified"
	"github.com/tiktoken-go/tokenizer"
)

const (
	// ClaudeCorrectionFactor compensates for cl100k_base under/over-counting
	// relative to Claude's own tokenizer.
	ClaudeCorrectionFactor = 1.15
	// TokensPerMessage is the fixed overhead charged per message.
	TokensPerMessage = 4
	// TokensPerTool is the fixed overhead charged per tool definition.
	TokensPerTool = 4
	// TokensPerToolCall is the fixed overhead charged per tool call block.
	TokensPerToolCall = 4
	// FinalServiceTokens is added once per request for the reply priming.
	FinalServiceTokens = 3
	// TokensPerImage is the flat per-image charge (the gateway doesn't
	// vary this by resolution).
	TokensPerImage = 100
	// ClaudeToolOverhead is added once when any tools are present and the
	// target model is a Claude model, ahead of the correction factor.
	ClaudeToolOverhead = 346
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Counter estimates token costs for requests heading upstream.
type Counter struct{}

// NewCounter builds a token Counter.
func NewCounter() *Counter { return &Counter{} }

// CountText returns the BPE token count for text, applying the Claude
// correction factor when forClaude is set.
func (c *Counter) CountText(text string, forClaude bool) int {
	if text == "" {
		return 0
	}
	cd, err := getCodec()
	if err != nil {
		return estimateByLength(text, forClaude)
	}
	ids, _, err := cd.Encode(text)
	if err != nil {
		return estimateByLength(text, forClaude)
	}
	n := len(ids)
	if forClaude {
		n = int(float64(n)*ClaudeCorrectionFactor + 0.5)
	}
	return n
}

// estimateByLength is a crude fallback (~4 chars/token) used only if the
// BPE codec can't be loaded, so the gateway degrades rather than panics.
func estimateByLength(text string, forClaude bool) int {
	n := (len(text) + 3) / 4
	if forClaude {
		n = int(float64(n)*ClaudeCorrectionFactor + 0.5)
	}
	return n
}

// countMessagesRaw returns the uncorrected token cost of a sequence of
// unified messages: TokensPerMessage overhead and a role-token charge each,
// plus their content, plus FinalServiceTokens added once over the whole
// sequence.
func (c *Counter) countMessagesRaw(messages []unified.Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := 0
	for _, m := range messages {
		total += TokensPerMessage
		total += c.CountText(string(m.Role), false)
		for _, block := range m.Content {
			switch block.Type {
			case unified.BlockText:
				total += c.CountText(block.Text, false)
			case unified.BlockImage:
				total += TokensPerImage
			case unified.BlockToolCall:
				total += TokensPerToolCall + c.CountText(block.ToolCallID, false) + c.CountText(block.ToolCallName, false) + c.CountText(block.ToolCallArgs, false)
			case unified.BlockToolResult:
				total += TokensPerToolCall + c.CountText(block.ToolResultToolUseID, false) + c.CountText(block.ToolResultContent, false)
			}
		}
	}
	total += FinalServiceTokens
	return total
}

// countToolsRaw returns the uncorrected token cost of a sequence of tool
// definitions: TokensPerTool overhead each, plus name, description, and
// serialized schema.
func (c *Counter) countToolsRaw(tools []unified.Tool) int {
	total := 0
	for _, t := range tools {
		total += TokensPerTool
		total += c.CountText(t.Name, false)
		total += c.CountText(t.Description, false)
		total += c.CountText(string(t.JSONSchema), false)
	}
	return total
}

// CountMessages returns the token cost of messages, with the Claude
// correction factor applied when modelID names a Claude model.
func (c *Counter) CountMessages(messages []unified.Message, modelID string) int {
	raw := c.countMessagesRaw(messages)
	if isClaudeModel(modelID) {
		return int(float64(raw)*ClaudeCorrectionFactor + 0.5)
	}
	return raw
}

// CountTools returns the token cost of tool definitions, with the Claude
// correction factor applied when modelID names a Claude model.
func (c *Counter) CountTools(tools []unified.Tool, modelID string) int {
	raw := c.countToolsRaw(tools)
	if isClaudeModel(modelID) {
		return int(float64(raw)*ClaudeCorrectionFactor + 0.5)
	}
	return raw
}

// CountRequest returns the full estimated input-token cost of a request:
// message costs (which already include FinalServiceTokens) plus tool costs,
// each corrected independently.
func (c *Counter) CountRequest(messages []unified.Message, tools []unified.Tool, modelID string) int {
	return c.CountMessages(messages, modelID) + c.CountTools(tools, modelID)
}

// CountAnthropicTokens implements the Anthropic count_tokens endpoint's
// cost model: raw message/tool token counts, plus a flat
// ClaudeToolOverhead when tools are present and modelID names a Claude
// model, with the Claude correction factor applied once over the total.
func (c *Counter) CountAnthropicTokens(messages []unified.Message, tools []unified.Tool, modelID string) int {
	raw := c.countMessagesRaw(messages) + c.countToolsRaw(tools)
	if len(tools) > 0 && isClaudeModel(modelID) {
		raw += ClaudeToolOverhead
	}
	if isClaudeModel(modelID) {
		return int(float64(raw)*ClaudeCorrectionFactor + 0.5)
	}
	return raw
}

func isClaudeModel(modelID string) bool {
	return strings.HasPrefix(strings.ToLower(modelID), "claude")
}
