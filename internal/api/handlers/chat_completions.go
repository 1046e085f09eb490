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

// ChatCompletions handles `POST /v1/chat/completions`: OpenAI-format chat
// completions, streaming or not, proxied through Kiro.
func (s *State) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, apierrors.Internal("failed to read request body", err))
		return
	}

	unifiedReq, err := convert.OpenAIRequestToUnified(body)
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
	}).Info("chat completions request")

	inputTokens := int64(s.Tokenizer.CountRequest(unifiedReq.Messages, unifiedReq.Tools, requestedModel))
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
		s.streamOpenAI(c, upstream.Body, requestedModel, firstTokenTimeout, guard)
		return
	}

	agg, err := convert.Aggregate(upstream.Body, s.Config.FakeReasoningHandling)
	if err != nil {
		s.respondError(c, err)
		return
	}
	guard.complete(agg.OutputTokens)
	c.Data(http.StatusOK, "application/json", convert.OpenAINonStreamingResponse(agg, requestedModel))
}

// streamOpenAI writes the OpenAI SSE stream directly to the response
// writer, flushing after every event so the client sees output as it
// arrives rather than once the whole response buffers.
func (s *State) streamOpenAI(c *gin.Context, upstream io.Reader, model string, firstTokenTimeout time.Duration, guard *requestGuard) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	w := convert.NewSSEWriter(c.Writer, c.Writer)
	outputCounter := guard.outputTokenCounter()
	if err := convert.StreamOpenAI(upstream, w, model, s.Config.FakeReasoningHandling, firstTokenTimeout, outputCounter); err != nil {
		log.WithError(err).Warn("streaming chat completion ended with error")
	}
	guard.complete(outputCounter.Load())
}
