package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/api/handlers"
	"github.com/kiro-gateway/gateway/internal/authmanager"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/debuglog"
	"github.com/kiro-gateway/gateway/internal/metrics"
	"github.com/kiro-gateway/gateway/internal/modelcatalog"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer() *Server {
	cfg := &config.Config{
		ServerHost:  "127.0.0.1",
		ServerPort:  0,
		ProxyAPIKey: "secret-key",
		DebugMode:   config.DebugOff,
	}
	cache := modelcatalog.NewCache(time.Hour)
	resolver := modelcatalog.NewResolver(cache, nil)
	auth := authmanager.NewForTesting("token", "us-east-1", 5*time.Minute)
	state := handlers.NewState(cfg, cache, resolver, auth, nil, metrics.New())
	return NewServer(state, cfg, debuglog.New(config.DebugOff, "./debug", ""))
}

func TestServer_RootAndHealthAreUnauthenticated(t *testing.T) {
	s := testServer()

	for _, path := range []string{"/", "/health"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "path %s", path)
	}
}

func TestServer_ProtectedRoutesRejectMissingKey(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_ProtectedRoutesAcceptValidKey(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_PreflightRequestsAreHandledByCORS(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://example.com")
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
