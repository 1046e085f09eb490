package convert

import (
	"encoding/json"
	"io"
	"time"

	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/eventstream"
	"github.com/kiro-gateway/gateway/internal/thinking"
)

// OpenAINonStreamingResponse renders an AggregatedResponse as a single
// OpenAI Chat Completions JSON body.
func OpenAINonStreamingResponse(agg *AggregatedResponse, model string) []byte {
	msg := map[string]any{"role": "assistant"}
	if agg.Text != "" {
		msg["content"] = agg.Text
	} else {
		msg["content"] = nil
	}
	if agg.ThinkingText != "" {
		msg["reasoning_content"] = agg.ThinkingText
	}
	if len(agg.ToolCalls) > 0 {
		var calls []any
		for i, tc := range agg.ToolCalls {
			calls = append(calls, map[string]any{
				"index": i,
				"id":    tc.ID,
				"type":  "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": tc.Input(),
				},
			})
		}
		msg["tool_calls"] = calls
	}

	body := map[string]any{
		"id":      GenerateMessageID(),
		"object":  "chat.completion",
		"model":   model,
		"choices": []any{map[string]any{"index": 0, "message": msg, "finish_reason": agg.FinishReason()}},
		"usage": map[string]any{
			"prompt_tokens":     agg.InputTokens,
			"completion_tokens": agg.OutputTokens,
			"total_tokens":      agg.InputTokens + agg.OutputTokens,
		},
	}
	out, _ := json.Marshal(body)
	return out
}

// StreamOpenAI consumes the upstream event stream and emits one OpenAI
// `chat.completion.chunk` SSE frame per content/tool-call delta, ending
// with `data: [DONE]`. outputTokens is updated live as text streams so a
// concurrent metrics tracker can read it.
func StreamOpenAI(body io.Reader, w *SSEWriter, model string, handlingMode config.FakeReasoningHandling, firstTokenTimeout time.Duration, outputTokens outputTokenCounter) error {
	frames := decodeFrames(body)
	parser := thinking.NewParser(handlingMode)
	id := GenerateMessageID()
	toolIndex := map[string]int{}
	var nextToolIndex int
	sawAny := false
	finishReason := "stop"

	emitChunk := func(delta map[string]any) error {
		chunk := map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []any{map[string]any{"index": 0, "delta": delta}},
		}
		out, _ := json.Marshal(chunk)
		return w.WriteEvent("", out)
	}

	for {
		var fr frameOrErr
		var ok bool
		if !sawAny {
			select {
			case fr, ok = <-frames:
			case <-time.After(firstTokenTimeout):
				_ = w.WriteError(firstTokenTimeoutErr(firstTokenTimeout))
				return firstTokenTimeoutErr(firstTokenTimeout)
			}
		} else {
			fr, ok = <-frames
		}
		if !ok {
			break
		}
		if fr.err != nil {
			return fr.err
		}
		sawAny = true

		kind, text, tool, usage := eventstream.Classify(fr.payload)
		switch kind {
		case eventstream.KindText:
			r := parser.Feed(text.Content)
			if r.HasThinkingContent {
				if out, emit := parser.ProcessForOutput(r.ThinkingContent, r.IsFirstThinkingChunk, r.IsLastThinkingChunk); emit {
					if handlingMode == config.HandlingPass || handlingMode == config.HandlingStripTags {
						if err := emitChunk(map[string]any{"content": out}); err != nil {
							return err
						}
					} else {
						if err := emitChunk(map[string]any{"reasoning_content": out}); err != nil {
							return err
						}
					}
				}
			}
			if r.HasRegularContent && r.RegularContent != "" {
				if outputTokens != nil {
					outputTokens.Add(int64(len(r.RegularContent)))
				}
				if err := emitChunk(map[string]any{"content": r.RegularContent}); err != nil {
					return err
				}
			}
		case eventstream.KindToolUse:
			finishReason = "tool_calls"
			idx, ok := toolIndex[tool.ToolUseID]
			if !ok {
				idx = nextToolIndex
				nextToolIndex++
				toolIndex[tool.ToolUseID] = idx
				if err := emitChunk(map[string]any{
					"tool_calls": []any{map[string]any{
						"index": idx,
						"id":    tool.ToolUseID,
						"type":  "function",
						"function": map[string]any{
							"name":      tool.Name,
							"arguments": "",
						},
					}},
				}); err != nil {
					return err
				}
			}
			if tool.Input != "" {
				if err := emitChunk(map[string]any{
					"tool_calls": []any{map[string]any{
						"index":    idx,
						"id":       tool.ToolUseID,
						"function": map[string]any{"arguments": tool.Input},
					}},
				}); err != nil {
					return err
				}
			}
		case eventstream.KindUsage:
			// The upstream's own output total replaces the running estimate.
			if outputTokens != nil {
				outputTokens.Store(usage.OutputTokens)
			}
		}
	}

	final := parser.Finalize()
	if final.HasRegularContent && final.RegularContent != "" {
		if err := emitChunk(map[string]any{"content": final.RegularContent}); err != nil {
			return err
		}
	}

	stopChunk := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"model":   model,
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{}, "finish_reason": finishReason}},
	}
	out, _ := json.Marshal(stopChunk)
	if err := w.WriteEvent("", out); err != nil {
		return err
	}
	return w.WriteDone()
}
