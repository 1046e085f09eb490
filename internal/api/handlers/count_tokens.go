package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/convert"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CountTokens handles `POST /v1/messages/count_tokens`: runs the tokenizer
// synchronously over an Anthropic-format request and returns the estimated
// input token count, without contacting Kiro.
func (s *State) CountTokens(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, apierrors.Internal("failed to read request body", err))
		return
	}

	// count_tokens requests need not carry a real max_tokens; a placeholder
	// lets AnthropicRequestToUnified's max_tokens check pass, while all of
	// its other validation still applies.
	unifiedReq, err := convert.AnthropicRequestToUnified(withPlaceholderMaxTokens(body))
	if err != nil {
		s.respondError(c, err)
		return
	}

	model := gjson.GetBytes(body, "model").String()
	inputTokens := s.Tokenizer.CountAnthropicTokens(unifiedReq.Messages, unifiedReq.Tools, model)

	c.JSON(http.StatusOK, gin.H{"input_tokens": inputTokens})
}

// withPlaceholderMaxTokens returns body with a positive max_tokens field
// injected if the field is absent or non-positive, since count_tokens
// requests aren't required to carry a real completion budget.
func withPlaceholderMaxTokens(body []byte) []byte {
	if gjson.GetBytes(body, "max_tokens").Int() > 0 {
		return body
	}
	patched, err := sjson.SetBytes(body, "max_tokens", 1)
	if err != nil {
		return body
	}
	return patched
}
