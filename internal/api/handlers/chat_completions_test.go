package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	"github.com/kiro-gateway/gateway/internal/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

// fakeUpstream stands in for kirohttp.Client in handler tests: it returns a
// canned response body framed as an event-stream, or an error.
type fakeUpstream struct {
	body []byte
	err  error
}

func (f *fakeUpstream) RequestWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
	}, nil
}

func encodeFrames(payloads ...string) []byte {
	var buf bytes.Buffer
	for _, p := range payloads {
		buf.Write(eventstream.EncodeFrame([]byte(p)))
	}
	return buf.Bytes()
}

func TestChatCompletions_NonStreamingReturnsAggregatedResponse(t *testing.T) {
	s := testState()
	s.HTTPClient = &fakeUpstream{body: encodeFrames(
		`{"content":"Hello there"}`,
		`{"usage":{"inputTokens":10,"outputTokens":3}}`,
	)}

	body := []byte(`{"model":"claude-sonnet-4","stream":false,"messages":[{"role":"user","content":"hi"}]}`)
	c, w := newTestGinContext(http.MethodPost, "/v1/chat/completions", body)
	s.ChatCompletions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello there", gjson.GetBytes(w.Body.Bytes(), "choices.0.message.content").String())
	assert.EqualValues(t, 0, s.Metrics.ActiveConnections())
}

func TestChatCompletions_UpstreamErrorRespondsWithAppError(t *testing.T) {
	s := testState()
	s.HTTPClient = &fakeUpstream{err: apierrors.KiroAPIError(502, "bad gateway")}

	body := []byte(`{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hi"}]}`)
	c, w := newTestGinContext(http.MethodPost, "/v1/chat/completions", body)
	s.ChatCompletions(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "kiro_api_error", gjson.GetBytes(w.Body.Bytes(), "error.type").String())
	assert.EqualValues(t, 0, s.Metrics.ActiveConnections())
}

func TestChatCompletions_EmptyMessagesRejected(t *testing.T) {
	s := testState()
	body := []byte(`{"model":"claude-sonnet-4","messages":[]}`)
	c, w := newTestGinContext(http.MethodPost, "/v1/chat/completions", body)
	s.ChatCompletions(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", gjson.GetBytes(w.Body.Bytes(), "error.type").String())
}
