package convert

import (
	"encoding/json"
	"io"
	"time"

	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/eventstream"
	"github.com/kiro-gateway/gateway/internal/thinking"
)

// AnthropicNonStreamingResponse renders an AggregatedResponse as a single
// Anthropic Messages API JSON body.
func AnthropicNonStreamingResponse(agg *AggregatedResponse, model string) []byte {
	var content []any
	if agg.ThinkingText != "" {
		content = append(content, map[string]any{"type": "thinking", "thinking": agg.ThinkingText})
	}
	if agg.Text != "" {
		content = append(content, map[string]any{"type": "text", "text": agg.Text})
	}
	for _, tc := range agg.ToolCalls {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": rawJSONOrEmpty(tc.Input()),
		})
	}

	body := map[string]any{
		"id":            GenerateMessageID(),
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       content,
		"stop_reason":   agg.StopReason(),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  agg.InputTokens,
			"output_tokens": agg.OutputTokens,
		},
	}
	out, _ := json.Marshal(body)
	return out
}

// StreamAnthropic consumes the upstream event stream and emits the
// Anthropic SSE event sequence: message_start, a content_block_start /
// content_block_delta* / content_block_stop group per block, then
// message_delta and message_stop.
func StreamAnthropic(body io.Reader, w *SSEWriter, model string, inputTokens int64, handlingMode config.FakeReasoningHandling, firstTokenTimeout time.Duration, outputTokens outputTokenCounter) error {
	frames := decodeFrames(body)
	parser := thinking.NewParser(handlingMode)
	msgID := GenerateMessageID()

	if err := sendEvent(w, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      msgID,
			"type":    "message",
			"role":    "assistant",
			"model":   model,
			"content": []any{},
			"usage":   map[string]any{"input_tokens": inputTokens, "output_tokens": 0},
		},
	}); err != nil {
		return err
	}

	blockIndex := -1
	blockOpen := false
	thinkingBlockOpen := false
	toolIndex := map[string]int{}
	finalStopReason := "end_turn"
	sawAny := false

	openTextBlock := func() error {
		if blockOpen {
			return nil
		}
		blockIndex++
		blockOpen = true
		return sendEvent(w, "content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         blockIndex,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
	}
	closeBlock := func() error {
		if !blockOpen {
			return nil
		}
		blockOpen = false
		return sendEvent(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": blockIndex})
	}
	openThinkingBlock := func() error {
		if thinkingBlockOpen {
			return nil
		}
		blockIndex++
		thinkingBlockOpen = true
		return sendEvent(w, "content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         blockIndex,
			"content_block": map[string]any{"type": "thinking", "thinking": ""},
		})
	}
	closeThinkingBlock := func() error {
		if !thinkingBlockOpen {
			return nil
		}
		thinkingBlockOpen = false
		return sendEvent(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": blockIndex})
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
					if err := openThinkingBlock(); err != nil {
						return err
					}
					if err := sendEvent(w, "content_block_delta", map[string]any{
						"type":  "content_block_delta",
						"index": blockIndex,
						"delta": map[string]any{"type": "thinking_delta", "thinking": out},
					}); err != nil {
						return err
					}
				}
				if r.IsLastThinkingChunk {
					if err := closeThinkingBlock(); err != nil {
						return err
					}
				}
			}
			if r.HasRegularContent && r.RegularContent != "" {
				if outputTokens != nil {
					outputTokens.Add(int64(len(r.RegularContent)))
				}
				if err := openTextBlock(); err != nil {
					return err
				}
				if err := sendEvent(w, "content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": blockIndex,
					"delta": map[string]any{"type": "text_delta", "text": r.RegularContent},
				}); err != nil {
					return err
				}
			}
		case eventstream.KindToolUse:
			finalStopReason = "tool_use"
			if err := closeBlock(); err != nil {
				return err
			}
			idx, seen := toolIndex[tool.ToolUseID]
			if !seen {
				blockIndex++
				idx = blockIndex
				toolIndex[tool.ToolUseID] = idx
				if err := sendEvent(w, "content_block_start", map[string]any{
					"type":  "content_block_start",
					"index": idx,
					"content_block": map[string]any{
						"type": "tool_use", "id": tool.ToolUseID, "name": tool.Name, "input": map[string]any{},
					},
				}); err != nil {
					return err
				}
			}
			if tool.Input != "" {
				if err := sendEvent(w, "content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": idx,
					"delta": map[string]any{"type": "input_json_delta", "partial_json": tool.Input},
				}); err != nil {
					return err
				}
			}
			if tool.Stop {
				if err := sendEvent(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": idx}); err != nil {
					return err
				}
			}
		case eventstream.KindUsage:
			inputTokens = usage.InputTokens
			// The upstream's own output total replaces the running estimate.
			if outputTokens != nil {
				outputTokens.Store(usage.OutputTokens)
			}
		}
	}

	final := parser.Finalize()
	if final.HasRegularContent && final.RegularContent != "" {
		if err := openTextBlock(); err != nil {
			return err
		}
		if err := sendEvent(w, "content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": blockIndex,
			"delta": map[string]any{"type": "text_delta", "text": final.RegularContent},
		}); err != nil {
			return err
		}
	}
	if err := closeThinkingBlock(); err != nil {
		return err
	}
	if err := closeBlock(); err != nil {
		return err
	}

	if err := sendEvent(w, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": finalStopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": 0},
	}); err != nil {
		return err
	}
	return sendEvent(w, "message_stop", map[string]any{"type": "message_stop"})
}

func sendEvent(w *SSEWriter, event string, body map[string]any) error {
	out, _ := json.Marshal(body)
	return w.WriteEvent(event, out)
}
