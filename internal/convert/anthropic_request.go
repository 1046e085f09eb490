package convert

import (
	"github.com/kiro-gateway/gateway/internal/unified"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// AnthropicRequestToUnified converts a raw Anthropic Messages API request
// body into the unified intermediate representation.
func AnthropicRequestToUnified(body []byte) (*UnifiedRequest, error) {
	root := gjson.ParseBytes(body)

	msgsJSON := root.Get("messages")
	if !msgsJSON.Exists() || !msgsJSON.IsArray() || len(msgsJSON.Array()) == 0 {
		return nil, validationErrf("messages must be a non-empty array")
	}

	maxTokens := int(root.Get("max_tokens").Int())
	if maxTokens <= 0 {
		return nil, validationErrf("max_tokens must be positive")
	}

	system := anthropicSystemPrompt(root.Get("system"))

	var messages []unified.Message
	for _, m := range msgsJSON.Array() {
		role := unified.RoleUser
		if m.Get("role").String() == "assistant" {
			role = unified.RoleAssistant
		}

		blocks, err := anthropicContentBlocks(m.Get("content"))
		if err != nil {
			return nil, err
		}
		messages = append(messages, unified.Message{Role: role, Content: blocks})
	}

	var tools []unified.Tool
	for _, t := range root.Get("tools").Array() {
		tools = append(tools, unified.Tool{
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
			JSONSchema:  toolSchemaFromGJSON(t.Get("input_schema")),
		})
	}

	opts := RequestOptions{
		Model:      root.Get("model").String(),
		Stream:     root.Get("stream").Bool(),
		MaxTokens:  maxTokens,
		ToolChoice: anthropicToolChoice(root.Get("tool_choice")),
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		opts.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		opts.TopP = &f
	}
	if v := root.Get("top_k"); v.Exists() {
		k := int(v.Int())
		opts.TopK = &k
	}
	for _, s := range root.Get("stop_sequences").Array() {
		opts.StopSequences = append(opts.StopSequences, s.String())
	}
	if root.Get("metadata").Exists() {
		log.Debug("anthropic request: metadata field has no upstream equivalent, dropping")
	}

	return &UnifiedRequest{
		System:   system,
		Messages: unified.Normalize(messages),
		Tools:    unified.SanitizeTools(tools, unified.DefaultToolDescriptionMaxLength),
		Options:  opts,
	}, nil
}

// anthropicSystemPrompt accepts system as either a plain string or an
// array of {type:text,text:...} blocks.
func anthropicSystemPrompt(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	if v.Type == gjson.String {
		return v.String()
	}
	out := ""
	for i, part := range v.Array() {
		if i > 0 {
			out += "\n"
		}
		out += part.Get("text").String()
	}
	return out
}

func anthropicToolChoice(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	switch v.Get("type").String() {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "none":
		return "none"
	case "tool":
		return v.Get("name").String()
	}
	return ""
}

func anthropicContentBlocks(content gjson.Result) ([]unified.ContentBlock, error) {
	if content.Type == gjson.String {
		text := content.String()
		if text == "" {
			return nil, nil
		}
		return []unified.ContentBlock{{Type: unified.BlockText, Text: text}}, nil
	}

	var blocks []unified.ContentBlock
	for _, part := range content.Array() {
		switch part.Get("type").String() {
		case "text":
			blocks = append(blocks, unified.ContentBlock{Type: unified.BlockText, Text: part.Get("text").String()})
		case "thinking":
			blocks = append(blocks, unified.ContentBlock{Type: unified.BlockText, Text: part.Get("thinking").String()})
		case "image":
			mediaType := part.Get("source.media_type").String()
			data, err := decodeRawImageBytes(mediaType, part.Get("source.data").String())
			if err != nil {
				return nil, validationErrf("invalid image content: %v", err)
			}
			blocks = append(blocks, unified.ContentBlock{Type: unified.BlockImage, ImageMediaType: mediaType, ImageData: data})
		case "tool_use":
			blocks = append(blocks, unified.ContentBlock{
				Type:         unified.BlockToolCall,
				ToolCallID:   part.Get("id").String(),
				ToolCallName: part.Get("name").String(),
				ToolCallArgs: part.Get("input").Raw,
			})
		case "tool_result":
			blocks = append(blocks, unified.ContentBlock{
				Type:                unified.BlockToolResult,
				ToolResultToolUseID: part.Get("tool_use_id").String(),
				ToolResultContent:   stringifyAnthropicToolResult(part.Get("content")),
				ToolResultIsError:   part.Get("is_error").Bool(),
			})
		default:
			return nil, validationErrf("unsupported content block type %q", part.Get("type").String())
		}
	}
	return blocks, nil
}

func stringifyAnthropicToolResult(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if v.IsArray() {
		out := ""
		for _, part := range v.Array() {
			if part.Get("type").String() == "text" {
				out += part.Get("text").String()
			} else {
				out += part.Raw
			}
		}
		return out
	}
	return v.Raw
}
