// Package convert translates between the OpenAI and Anthropic wire
// formats, the unified intermediate representation, and the upstream
// Kiro payload shape.
package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	"github.com/kiro-gateway/gateway/internal/unified"
	"github.com/tidwall/gjson"
)

// ThinkingDirective is appended to the system prompt when fake reasoning is
// enabled (RequestOptions.ThinkingEnabled), instructing it to wrap deliberation
// in a recognizable tag the thinking parser (internal/thinking) can pull
// back out of the stream.
const ThinkingDirective = "\n\nBefore answering, wrap your step-by-step reasoning in <thinking>...</thinking> tags, then give your final answer."

// RequestOptions carries adapter-agnostic request-level settings that
// survive the conversion into the Kiro payload.
type RequestOptions struct {
	Model           string
	Stream          bool
	ThinkingEnabled bool
	ToolChoice      string // "", "auto", "none", "required", or a specific tool name
	MaxTokens       int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	StopSequences   []string
}

// UnifiedRequest is the adapter-agnostic output of request conversion,
// ready to be rendered into a Kiro payload.
type UnifiedRequest struct {
	System   string
	Messages []unified.Message
	Tools    []unified.Tool
	Options  RequestOptions
}

func decodeImageDataURL(dataURL string) (mediaType string, data []byte, err error) {
	// Expected shape: "data:<media-type>;base64,<data>"
	const prefix = "data:"
	if len(dataURL) < len(prefix) || dataURL[:len(prefix)] != prefix {
		return "", nil, fmt.Errorf("image source is not a data URL")
	}
	rest := dataURL[len(prefix):]
	semi := indexByte(rest, ';')
	comma := indexByte(rest, ',')
	if semi < 0 || comma < 0 || comma < semi {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mediaType = rest[:semi]
	b64 := rest[comma+1:]
	data, err = base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid image base64: %w", err)
	}
	return mediaType, data, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func decodeRawImageBytes(mediaType, b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("invalid image base64: %w", err)
	}
	return data, nil
}

// toolSchemaFromGJSON extracts a raw JSON schema value, passed through
// untouched.
func toolSchemaFromGJSON(v gjson.Result) json.RawMessage {
	if !v.Exists() {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(v.Raw)
}

func validationErrf(format string, args ...any) *apierrors.AppError {
	return apierrors.Validation(fmt.Sprintf(format, args...))
}
