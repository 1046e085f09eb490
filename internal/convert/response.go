package convert

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/eventstream"
	"github.com/kiro-gateway/gateway/internal/thinking"
)

// GenerateMessageID produces a client-visible response ID in the shape
// both adapters use: "msg_" followed by 24 hex characters.
func GenerateMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// ToolCallAccumulator collects a tool call's incrementally-streamed
// "input" JSON fragments until the upstream marks it complete.
type ToolCallAccumulator struct {
	ID       string
	Name     string
	inputBuf strings.Builder
	Done     bool
}

// Input returns the accumulated raw JSON input, or "{}" if it never
// parses cleanly.
func (a *ToolCallAccumulator) Input() string {
	raw := a.inputBuf.String()
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "{}"
	}
	return raw
}

// InputValid reports whether the accumulated input parses as JSON.
func (a *ToolCallAccumulator) InputValid() bool {
	var v any
	return json.Unmarshal([]byte(a.inputBuf.String()), &v) == nil
}

// AggregatedResponse is the fully-drained result of a non-streaming
// upstream response.
type AggregatedResponse struct {
	Text         string
	ThinkingText string
	ToolCalls    []*ToolCallAccumulator
	InputTokens  int64
	OutputTokens int64
}

// FinishReason returns the OpenAI-dialect finish reason for an aggregated
// response: "tool_calls" if any tool call is present, else "stop".
func (r *AggregatedResponse) FinishReason() string {
	if len(r.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// StopReason returns the Anthropic-dialect equivalent of FinishReason.
func (r *AggregatedResponse) StopReason() string {
	if len(r.ToolCalls) > 0 {
		return "tool_use"
	}
	return "end_turn"
}

// Aggregate drains every event-stream frame in body, splitting text
// through the thinking parser and accumulating tool-call input, and
// returns the combined result. Used for non-streaming responses.
func Aggregate(body io.Reader, handlingMode config.FakeReasoningHandling) (*AggregatedResponse, error) {
	dec := eventstream.NewDecoder(body)
	parser := thinking.NewParser(handlingMode)
	result := &AggregatedResponse{}
	toolsByID := map[string]*ToolCallAccumulator{}

	for {
		payload, err := dec.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		kind, text, tool, usage := eventstream.Classify(payload)
		switch kind {
		case eventstream.KindText:
			feedThinking(parser, text.Content, result)
		case eventstream.KindToolUse:
			acc, ok := toolsByID[tool.ToolUseID]
			if !ok {
				acc = &ToolCallAccumulator{ID: tool.ToolUseID, Name: tool.Name}
				toolsByID[tool.ToolUseID] = acc
				result.ToolCalls = append(result.ToolCalls, acc)
			}
			acc.inputBuf.WriteString(tool.Input)
			if tool.Stop {
				acc.Done = true
			}
		case eventstream.KindUsage:
			result.InputTokens = usage.InputTokens
			result.OutputTokens = usage.OutputTokens
		}
	}

	final := parser.Finalize()
	applyThinkingResult(final, result)

	return result, nil
}

func feedThinking(parser *thinking.Parser, content string, result *AggregatedResponse) {
	r := parser.Feed(content)
	applyThinkingResult(r, result)
}

func applyThinkingResult(r thinking.Result, result *AggregatedResponse) {
	if r.HasThinkingContent {
		result.ThinkingText += r.ThinkingContent
	}
	if r.HasRegularContent {
		result.Text += r.RegularContent
	}
}
