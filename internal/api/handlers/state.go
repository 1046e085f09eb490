// Package handlers implements the gateway's client-facing HTTP handlers:
// health checks, model listing, chat completions, Anthropic messages, and
// token counting.
package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/config"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
	"github.com/kiro-gateway/gateway/internal/kirohttp"
	"github.com/kiro-gateway/gateway/internal/metrics"
	"github.com/kiro-gateway/gateway/internal/modelcatalog"
	"github.com/kiro-gateway/gateway/internal/tokenizer"
)

// Version is the gateway's reported build version.
const Version = "0.1.0"

// AuthManager supplies the credentials a request needs to reach Kiro.
// Satisfied by *authmanager.Manager.
type AuthManager interface {
	GetAccessToken(ctx context.Context) (string, error)
	GetRegion() string
	GetProfileArn() string
}

// HTTPDoer is the subset of kirohttp.Client the handlers depend on.
type HTTPDoer interface {
	RequestWithRetry(ctx context.Context, req *http.Request) (*http.Response, error)
}

// State bundles every dependency the route handlers need. One State is
// constructed at startup and shared (read-only) across all requests.
type State struct {
	Config      *config.Config
	ModelCache  *modelcatalog.Cache
	Resolver    *modelcatalog.Resolver
	AuthManager AuthManager
	HTTPClient  HTTPDoer
	Metrics     *metrics.Collector
	Tokenizer   *tokenizer.Counter
}

// NewState builds a State from its constituent dependencies.
func NewState(cfg *config.Config, cache *modelcatalog.Cache, resolver *modelcatalog.Resolver, auth AuthManager, httpClient *kirohttp.Client, metricsCollector *metrics.Collector) *State {
	return &State{
		Config:      cfg,
		ModelCache:  cache,
		Resolver:    resolver,
		AuthManager: auth,
		HTTPClient:  httpClient,
		Metrics:     metricsCollector,
		Tokenizer:   tokenizer.NewCounter(),
	}
}

func (s *State) kiroGenerateURL() string {
	return "https://codewhisperer." + s.AuthManager.GetRegion() + ".amazonaws.com/generateAssistantResponse"
}

// postToKiro sends the Kiro payload to the generateAssistantResponse
// endpoint via the retrying HTTP client, returning the raw
// application/vnd.amazon.eventstream response on success.
func (s *State) postToKiro(c *gin.Context, payload []byte, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.kiroGenerateURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, apierrors.Internal("failed to build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := s.HTTPClient.RequestWithRetry(c.Request.Context(), req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// errorTypeFromAppError maps an AppError's type tag to the metrics
// error-type label, matching the reference gateway's
// error_type_from_api_error.
func errorTypeFromAppError(errType string) string {
	switch errType {
	case "kiro_api_error":
		return "upstream"
	default:
		return errType
	}
}
