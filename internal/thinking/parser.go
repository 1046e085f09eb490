// Package thinking implements a streaming parser for <thinking>-style tags
// that some models emit ahead of their real answer.
//
// The parser is a small state machine so it can be fed arbitrarily-chunked
// text (as it arrives off a streaming HTTP response) without ever splitting
// a tag across chunk boundaries. Tag detection only happens at the very
// start of a response; once any non-tag content has streamed by, the
// parser gives up looking for thinking blocks for the remainder of the
// turn.
package thinking

import (
	"strings"

	"github.com/kiro-gateway/gateway/internal/config"
)

// State is the parser's current phase.
type State int

const (
	// PreContent is the initial state: buffering while looking for an
	// opening tag.
	PreContent State = iota
	// InThinking means an opening tag was found; content is being
	// buffered until the matching closing tag appears.
	InThinking
	// Streaming means no more thinking-tag detection happens; everything
	// fed in from here on is regular content.
	Streaming
)

var openTags = []string{"<thinking>", "<think>", "<reasoning>", "<thought>"}

func maxTagLength() int {
	max := 0
	for _, t := range openTags {
		if len(t) > max {
			max = len(t)
		}
	}
	return max * 2
}

// Result is what feeding a chunk through the parser produced.
type Result struct {
	ThinkingContent      string
	HasThinkingContent   bool
	RegularContent       string
	HasRegularContent    bool
	IsFirstThinkingChunk bool
	IsLastThinkingChunk  bool
	StateChanged         bool
}

// Parser is a finite state machine that separates thinking-block content
// from regular content in a stream of text chunks.
type Parser struct {
	HandlingMode config.FakeReasoningHandling

	initialBufferSize int
	maxTagLen         int

	state              State
	initialBuffer      strings.Builder
	thinkingBuffer     strings.Builder
	openTag            string
	closeTag           string
	isFirstThinkingChk bool
	thinkingBlockFound bool
}

// NewParser builds a parser with the given handling mode and default
// tunables.
func NewParser(mode config.FakeReasoningHandling) *Parser {
	return &Parser{
		HandlingMode:       mode,
		initialBufferSize:  20,
		maxTagLen:          maxTagLength(),
		state:              PreContent,
		isFirstThinkingChk: true,
	}
}

// State returns the parser's current state.
func (p *Parser) State() State { return p.state }

// ThinkingBlockFound reports whether an opening thinking tag was ever seen.
func (p *Parser) ThinkingBlockFound() bool { return p.thinkingBlockFound }

// Feed processes one chunk of content and returns what should be emitted.
func (p *Parser) Feed(content string) Result {
	if content == "" {
		return Result{}
	}

	switch p.state {
	case PreContent:
		result := p.handlePreContent(content)
		if p.state == InThinking && result.StateChanged {
			sub := p.processThinkingBuffer()
			if sub.HasThinkingContent {
				result.ThinkingContent = sub.ThinkingContent
				result.HasThinkingContent = true
				result.IsFirstThinkingChunk = sub.IsFirstThinkingChunk
			}
			if sub.IsLastThinkingChunk {
				result.IsLastThinkingChunk = true
			}
			if sub.HasRegularContent {
				result.RegularContent = sub.RegularContent
				result.HasRegularContent = true
			}
		}
		return result
	case InThinking:
		p.thinkingBuffer.WriteString(content)
		return p.processThinkingBuffer()
	default: // Streaming
		return Result{RegularContent: content, HasRegularContent: true}
	}
}

func (p *Parser) handlePreContent(content string) Result {
	var result Result
	p.initialBuffer.WriteString(content)

	buffered := p.initialBuffer.String()
	stripped := strings.TrimLeft(buffered, " \t\r\n")

	for _, tag := range openTags {
		if strings.HasPrefix(stripped, tag) {
			p.state = InThinking
			p.openTag = tag
			p.closeTag = "</" + tag[1:]
			p.thinkingBlockFound = true
			result.StateChanged = true

			contentAfterTag := stripped[len(tag):]
			p.thinkingBuffer.Reset()
			p.thinkingBuffer.WriteString(contentAfterTag)
			p.initialBuffer.Reset()
			return result
		}
	}

	for _, tag := range openTags {
		if len(stripped) < len(tag) && strings.HasPrefix(tag, stripped) {
			// Could still be receiving the tag; keep buffering.
			return result
		}
	}

	if p.initialBuffer.Len() > p.initialBufferSize || !couldBeTagPrefix(stripped) {
		p.state = Streaming
		result.StateChanged = true
		result.RegularContent = p.initialBuffer.String()
		result.HasRegularContent = true
		p.initialBuffer.Reset()
	}

	return result
}

func couldBeTagPrefix(text string) bool {
	if text == "" {
		return true
	}
	for _, tag := range openTags {
		if strings.HasPrefix(tag, text) {
			return true
		}
	}
	return false
}

func (p *Parser) processThinkingBuffer() Result {
	var result Result
	if p.closeTag == "" {
		return result
	}

	buf := p.thinkingBuffer.String()
	idx := strings.Index(buf, p.closeTag)
	if idx >= 0 {
		thinkingContent := buf[:idx]
		afterTag := buf[idx+len(p.closeTag):]

		if thinkingContent != "" {
			result.ThinkingContent = thinkingContent
			result.HasThinkingContent = true
			result.IsFirstThinkingChunk = p.isFirstThinkingChk
			p.isFirstThinkingChk = false
		}
		result.IsLastThinkingChunk = true

		p.state = Streaming
		result.StateChanged = true
		p.thinkingBuffer.Reset()

		strippedAfter := strings.TrimLeft(afterTag, " \t\r\n")
		if strippedAfter != "" {
			result.RegularContent = strippedAfter
			result.HasRegularContent = true
		}
		return result
	}

	// No closing tag yet: cautiously hold back up to maxTagLen bytes so a
	// tag split across chunks is never emitted as thinking content.
	if len(buf) > p.maxTagLen {
		splitPoint := len(buf) - p.maxTagLen
		safeSplit := safeUTF8Boundary(buf, splitPoint)
		if safeSplit > 0 {
			sendPart := buf[:safeSplit]
			p.thinkingBuffer.Reset()
			p.thinkingBuffer.WriteString(buf[safeSplit:])

			result.ThinkingContent = sendPart
			result.HasThinkingContent = true
			result.IsFirstThinkingChunk = p.isFirstThinkingChk
			p.isFirstThinkingChk = false
		}
	}

	return result
}

// safeUTF8Boundary returns the largest byte index <= at that sits on a
// UTF-8 rune boundary within s.
func safeUTF8Boundary(s string, at int) int {
	if at <= 0 {
		return 0
	}
	if at >= len(s) {
		return len(s)
	}
	for at > 0 && isUTF8Continuation(s[at]) {
		at--
	}
	return at
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// Finalize flushes any buffered content when the stream ends. Call once,
// after the last Feed.
func (p *Parser) Finalize() Result {
	var result Result

	if p.thinkingBuffer.Len() > 0 {
		buf := p.thinkingBuffer.String()
		if p.state == InThinking {
			result.ThinkingContent = buf
			result.HasThinkingContent = true
			result.IsFirstThinkingChunk = p.isFirstThinkingChk
			result.IsLastThinkingChunk = true
		} else {
			result.RegularContent = buf
			result.HasRegularContent = true
		}
		p.thinkingBuffer.Reset()
	}

	if p.initialBuffer.Len() > 0 {
		result.RegularContent = result.RegularContent + p.initialBuffer.String()
		result.HasRegularContent = true
		p.initialBuffer.Reset()
	}

	return result
}

// Reset returns the parser to its initial state, discarding all buffers.
func (p *Parser) Reset() {
	p.state = PreContent
	p.initialBuffer.Reset()
	p.thinkingBuffer.Reset()
	p.openTag = ""
	p.closeTag = ""
	p.isFirstThinkingChk = true
	p.thinkingBlockFound = false
}

// ProcessForOutput formats thinkingContent per the parser's handling mode.
// Returns ("", false) when nothing should be emitted.
func (p *Parser) ProcessForOutput(thinkingContent string, isFirst, isLast bool) (string, bool) {
	if thinkingContent == "" {
		return "", false
	}

	switch p.HandlingMode {
	case config.HandlingRemove:
		return "", false
	case config.HandlingPass:
		var b strings.Builder
		if isFirst {
			b.WriteString(p.openTag)
		}
		b.WriteString(thinkingContent)
		if isLast {
			b.WriteString(p.closeTag)
		}
		return b.String(), true
	case config.HandlingStripTags:
		return thinkingContent, true
	default: // as_reasoning_content
		return thinkingContent, true
	}
}
