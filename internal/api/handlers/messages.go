package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/convert"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Messages handles `POST /v1/messages`: Anthropic-format messages,
// streaming or not, proxied through Kiro.
func (s *State) Messages(c *gin.Context) {
	if v := c.GetHeader("anthropic-version"); v != "" {
		log.WithField("anthropic_version", v).Debug("anthropic-version header received")
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, apierrors.Internal("failed to read request body", err))
		return
	}

	unifiedReq, err := convert.AnthropicRequestToUnified(body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	unifiedReq.Options.ThinkingEnabled = s.Config.FakeReasoningEnabled

	requestedModel := gjson.GetBytes(body, "model").String()
	resolution := s.Resolver.Resolve(requestedModel)
	modelID := resolution.InternalID

	log.WithFields(log.Fields{
		"requested_model": requestedModel,
		"resolved_model":  modelID,
		"source":          resolution.Source,
		"stream":          unifiedReq.Options.Stream,
		"messages":        len(unifiedReq.Messages),
	}).Info("messages request")

	inputTokens := int64(s.Tokenizer.CountAnthropicTokens(unifiedReq.Messages, unifiedReq.Tools, requestedModel))
	guard := s.newRequestGuard(modelID, unifiedReq.Options.Stream, inputTokens)
	defer guard.close()

	profileArn := s.AuthManager.GetProfileArn()
	kiroPayload, err := convert.BuildKiroPayload(unifiedReq, modelID, profileArn)
	if err != nil {
		s.respondError(c, apierrors.Validation(err.Error()))
		return
	}

	accessToken, err := s.AuthManager.GetAccessToken(c.Request.Context())
	if err != nil {
		s.respondError(c, apierrors.Auth("failed to get access token", err))
		return
	}

	upstream, err := s.postToKiro(c, kiroPayload, accessToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer upstream.Body.Close()

	firstTokenTimeout := time.Duration(s.Config.FirstTokenTimeout) * time.Second

	if unifiedReq.Options.Stream {
		s.streamAnthropic(c, upstream.Body, requestedModel, inputTokens, firstTokenTimeout, guard)
		return
	}

	agg, err := convert.Aggregate(upstream.Body, s.Config.FakeReasoningHandling)
	if err != nil {
		s.respondError(c, err)
		return
	}
	guard.complete(agg.OutputTokens)
	c.Data(http.StatusOK, "application/json", convert.AnthropicNonStreamingResponse(agg, requestedModel))
}

// streamAnthropic writes the Anthropic SSE event sequence directly to the
// response writer.
func (s *State) streamAnthropic(c *gin.Context, upstream io.Reader, model string, inputTokens int64, firstTokenTimeout time.Duration, guard *requestGuard) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	w := convert.NewSSEWriter(c.Writer, c.Writer)
	outputCounter := guard.outputTokenCounter()
	if err := convert.StreamAnthropic(upstream, w, model, inputTokens, s.Config.FakeReasoningHandling, firstTokenTimeout, outputCounter); err != nil {
		log.WithError(err).Warn("streaming message ended with error")
	}
	guard.complete(outputCounter.Load())
}
