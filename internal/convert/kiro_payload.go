package convert

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/kiro-gateway/gateway/internal/unified"
	"github.com/tidwall/sjson"
)

const kiroOrigin = "AI_EDITOR"

// BuildKiroPayload renders req into the upstream's conversationState wire
// shape: a history of prior turns plus the final currentMessage, with
// tools and prior tool results attached to the current turn.
func BuildKiroPayload(req *UnifiedRequest, internalModelID, profileArn string) ([]byte, error) {
	messages := req.Messages
	if req.Options.ThinkingEnabled {
		req.System += ThinkingDirective
	}

	if len(messages) == 0 {
		return nil, validationErrf("messages must be a non-empty array")
	}

	data := []byte(`{}`)
	data, _ = sjson.SetBytes(data, "conversationState.chatTriggerType", "MANUAL")
	data, _ = sjson.SetBytes(data, "conversationState.conversationId", uuid.NewString())

	history := messages[:len(messages)-1]
	current := messages[len(messages)-1]

	historyJSON := make([]any, 0, len(history))
	for _, m := range history {
		turn, err := renderTurn(m, req.System, internalModelID, nil)
		if err != nil {
			return nil, err
		}
		historyJSON = append(historyJSON, turn)
	}
	if len(historyJSON) > 0 {
		data, _ = sjson.SetBytes(data, "conversationState.history", historyJSON)
	} else {
		data, _ = sjson.SetBytes(data, "conversationState.history", []any{})
	}

	currentTurn, err := renderTurn(current, req.System, internalModelID, req.Tools)
	if err != nil {
		return nil, err
	}
	data, _ = sjson.SetBytes(data, "conversationState.currentMessage", currentTurn)

	if profileArn != "" {
		data, _ = sjson.SetBytes(data, "profileArn", profileArn)
	}

	return data, nil
}

// renderTurn renders one unified.Message into either a userInputMessage
// or an assistantResponseMessage entry, per the upstream's history/
// currentMessage wire shape.
func renderTurn(m unified.Message, system, modelID string, tools []unified.Tool) (map[string]any, error) {
	if m.Role == unified.RoleAssistant {
		return renderAssistantTurn(m), nil
	}
	return renderUserTurn(m, system, modelID, tools)
}

func renderAssistantTurn(m unified.Message) map[string]any {
	var toolUses []any
	for _, b := range m.ToolCalls() {
		toolUses = append(toolUses, map[string]any{
			"toolUseId": b.ToolCallID,
			"name":      b.ToolCallName,
			"input":     rawJSONOrEmpty(b.ToolCallArgs),
		})
	}
	out := map[string]any{
		"content": m.TextContent(),
	}
	if toolUses != nil {
		out["toolUses"] = toolUses
	}
	return map[string]any{"assistantResponseMessage": out}
}

func renderUserTurn(m unified.Message, system, modelID string, tools []unified.Tool) (map[string]any, error) {
	var images []any
	var toolResults []any
	for _, b := range m.Content {
		switch b.Type {
		case unified.BlockImage:
			format := imageFormatFromMediaType(b.ImageMediaType)
			images = append(images, map[string]any{
				"format": format,
				"source": map[string]any{"bytes": base64.StdEncoding.EncodeToString(b.ImageData)},
			})
		case unified.BlockToolResult:
			status := "success"
			if b.ToolResultIsError {
				status = "error"
			}
			toolResults = append(toolResults, map[string]any{
				"toolUseId": b.ToolResultToolUseID,
				"content":   []any{map[string]any{"text": b.ToolResultContent}},
				"status":    status,
				"isError":   b.ToolResultIsError,
			})
		}
	}

	content := m.TextContent()
	if system != "" {
		content = system + "\n\n" + content
	}

	userInputMessage := map[string]any{
		"content": content,
		"modelId": modelID,
		"origin":  kiroOrigin,
	}
	if images != nil {
		userInputMessage["images"] = images
	}

	if len(toolResults) > 0 || len(tools) > 0 {
		ctx := map[string]any{}
		if len(toolResults) > 0 {
			ctx["toolResults"] = toolResults
		}
		if len(tools) > 0 {
			var specs []any
			for _, t := range tools {
				specs = append(specs, map[string]any{
					"toolSpecification": map[string]any{
						"name":        t.Name,
						"description": t.Description,
						"inputSchema": map[string]any{"json": rawJSONOrEmpty(string(t.JSONSchema))},
					},
				})
			}
			ctx["tools"] = specs
		}
		userInputMessage["userInputMessageContext"] = ctx
	}

	return map[string]any{"userInputMessage": userInputMessage}, nil
}

func imageFormatFromMediaType(mediaType string) string {
	if idx := strings.LastIndex(mediaType, "/"); idx >= 0 {
		return mediaType[idx+1:]
	}
	return mediaType
}

func rawJSONOrEmpty(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]any{}
	}
	return v
}
