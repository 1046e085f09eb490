package handlers

import (
	"bytes"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/authmanager"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/metrics"
	"github.com/kiro-gateway/gateway/internal/modelcatalog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		ServerHost:               "0.0.0.0",
		ServerPort:               8000,
		ProxyAPIKey:              "secret-key",
		KiroRegion:               "us-east-1",
		FirstTokenTimeout:        30,
		HTTPMaxConnections:       10,
		HTTPConnectTimeout:       5,
		HTTPRequestTimeout:       60,
		HTTPMaxRetries:           3,
		ToolDescriptionMaxLength: 1024,
		FakeReasoningHandling:    config.HandlingPass,
	}
}

func testState() *State {
	cache := modelcatalog.NewCache(time.Hour)
	cache.Update([]byte(`[{"modelId":"CLAUDE_SONNET_4_20250514_V1_0","modelName":"Claude Sonnet 4"}]`))
	resolver := modelcatalog.NewResolver(cache, map[string]string{
		"claude-sonnet-4": "CLAUDE_SONNET_4_20250514_V1_0",
	})
	auth := authmanager.NewForTesting("test-access-token", "us-east-1", 5*time.Minute)
	return NewState(testConfig(), cache, resolver, auth, nil, metrics.New())
}

func newTestGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}
