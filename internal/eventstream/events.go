package eventstream

import "github.com/tidwall/gjson"

// Event is a decoded, classified payload from the upstream event stream.
type Event struct {
	Kind ContentDelta
}

// ContentDelta distinguishes the payload shapes the gateway understands.
type ContentDelta int

const (
	// KindUnknown is any payload shape the gateway doesn't act on.
	KindUnknown ContentDelta = iota
	// KindText carries incremental assistant text: {"content": "..."}.
	KindText
	// KindToolUse carries an incremental tool call.
	KindToolUse
	// KindUsage carries the final token usage totals.
	KindUsage
)

// TextDelta is the payload of a KindText event.
type TextDelta struct {
	Content string
}

// ToolUseDelta is the payload of a KindToolUse event. Input is a raw JSON
// fragment to be concatenated across deltas sharing ToolUseID until
// Stop is true.
type ToolUseDelta struct {
	ToolUseID string
	Name      string
	Input     string
	Stop      bool
}

// UsageDelta is the payload of a KindUsage event.
type UsageDelta struct {
	InputTokens  int64
	OutputTokens int64
}

// Classify inspects a raw JSON payload and extracts the event it
// represents, per the upstream's observed payload shapes.
func Classify(payload []byte) (ContentDelta, TextDelta, ToolUseDelta, UsageDelta) {
	root := gjson.ParseBytes(payload)

	if usage := root.Get("usage"); usage.Exists() {
		return KindUsage, TextDelta{}, ToolUseDelta{}, UsageDelta{
			InputTokens:  usage.Get("inputTokens").Int(),
			OutputTokens: usage.Get("outputTokens").Int(),
		}
	}

	if toolUseID := root.Get("toolUseId"); toolUseID.Exists() {
		return KindToolUse, TextDelta{}, ToolUseDelta{
			ToolUseID: toolUseID.String(),
			Name:      root.Get("name").String(),
			Input:     root.Get("input").String(),
			Stop:      root.Get("stop").Bool(),
		}, UsageDelta{}
	}

	if content := root.Get("content"); content.Exists() {
		return KindText, TextDelta{Content: content.String()}, ToolUseDelta{}, UsageDelta{}
	}

	return KindUnknown, TextDelta{}, ToolUseDelta{}, UsageDelta{}
}
