package convert

import (
	"github.com/kiro-gateway/gateway/internal/unified"
	"github.com/tidwall/gjson"
)

// OpenAIRequestToUnified converts a raw OpenAI Chat Completions request
// body into the unified intermediate representation.
func OpenAIRequestToUnified(body []byte) (*UnifiedRequest, error) {
	root := gjson.ParseBytes(body)

	msgsJSON := root.Get("messages")
	if !msgsJSON.Exists() || !msgsJSON.IsArray() || len(msgsJSON.Array()) == 0 {
		return nil, validationErrf("messages must be a non-empty array")
	}

	var systemParts []string
	var messages []unified.Message

	for _, m := range msgsJSON.Array() {
		role := m.Get("role").String()

		if role == "system" {
			systemParts = append(systemParts, m.Get("content").String())
			continue
		}

		if role == "tool" {
			messages = append(messages, unified.Message{
				Role: unified.RoleTool,
				Content: []unified.ContentBlock{{
					Type:                unified.BlockToolResult,
					ToolResultToolUseID: m.Get("tool_call_id").String(),
					ToolResultContent:   stringifyOpenAIToolContent(m.Get("content")),
				}},
			})
			continue
		}

		blocks, err := openAIContentBlocks(m)
		if err != nil {
			return nil, err
		}

		for _, tc := range m.Get("tool_calls").Array() {
			blocks = append(blocks, unified.ContentBlock{
				Type:         unified.BlockToolCall,
				ToolCallID:   tc.Get("id").String(),
				ToolCallName: tc.Get("function.name").String(),
				ToolCallArgs: tc.Get("function.arguments").String(),
			})
		}

		unifiedRole := unified.RoleUser
		switch role {
		case "assistant":
			unifiedRole = unified.RoleAssistant
		case "user", "":
			unifiedRole = unified.RoleUser
		}

		messages = append(messages, unified.Message{Role: unifiedRole, Content: blocks})
	}

	var tools []unified.Tool
	for _, t := range root.Get("tools").Array() {
		tools = append(tools, unified.Tool{
			Name:        t.Get("function.name").String(),
			Description: t.Get("function.description").String(),
			JSONSchema:  toolSchemaFromGJSON(t.Get("function.parameters")),
		})
	}

	opts := RequestOptions{
		Model:      root.Get("model").String(),
		Stream:     root.Get("stream").Bool(),
		ToolChoice: openAIToolChoice(root.Get("tool_choice")),
	}
	if v := root.Get("max_tokens"); v.Exists() {
		opts.MaxTokens = int(v.Int())
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		opts.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		opts.TopP = &f
	}

	system := ""
	for i, s := range systemParts {
		if i > 0 {
			system += "\n"
		}
		system += s
	}

	return &UnifiedRequest{
		System:   system,
		Messages: unified.Normalize(messages),
		Tools:    unified.SanitizeTools(tools, unified.DefaultToolDescriptionMaxLength),
		Options:  opts,
	}, nil
}

// openAIToolChoice normalizes OpenAI's tool_choice (string "auto"/"none"/
// "required", or an object naming a specific function) into a plain
// string: the function name, or one of auto/none/required.
func openAIToolChoice(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	if v.Type == gjson.String {
		return v.String()
	}
	if name := v.Get("function.name"); name.Exists() {
		return name.String()
	}
	return ""
}

func openAIContentBlocks(m gjson.Result) ([]unified.ContentBlock, error) {
	content := m.Get("content")
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
		case "image_url":
			url := part.Get("image_url.url").String()
			mediaType, data, err := decodeImageDataURL(url)
			if err != nil {
				return nil, validationErrf("invalid image content: %v", err)
			}
			blocks = append(blocks, unified.ContentBlock{Type: unified.BlockImage, ImageMediaType: mediaType, ImageData: data})
		default:
			return nil, validationErrf("unsupported content block type %q", part.Get("type").String())
		}
	}
	return blocks, nil
}

// stringifyOpenAIToolContent flattens a tool message's content (string or
// array of content parts) into a single string, per the shared
// "non-text tool-result content is stringified" rule.
func stringifyOpenAIToolContent(v gjson.Result) string {
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
