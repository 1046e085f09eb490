// Command server runs the Kiro gateway: an HTTP proxy that translates
// OpenAI- and Anthropic-format chat requests into Kiro CodeWhisperer calls.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiro-gateway/gateway/internal/api"
	"github.com/kiro-gateway/gateway/internal/api/handlers"
	"github.com/kiro-gateway/gateway/internal/authmanager"
	"github.com/kiro-gateway/gateway/internal/config"
	"github.com/kiro-gateway/gateway/internal/debuglog"
	"github.com/kiro-gateway/gateway/internal/kirohttp"
	"github.com/kiro-gateway/gateway/internal/logging"
	"github.com/kiro-gateway/gateway/internal/metrics"
	"github.com/kiro-gateway/gateway/internal/modelcatalog"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// wellKnownModels are Claude aliases inserted into the catalog at boot,
// regardless of what the Kiro API happens to return that day.
var wellKnownModels = map[string]string{
	"claude-3-5-sonnet-20241022":  "CLAUDE_3_5_SONNET_20241022_V2_0",
	"claude-3-5-sonnet-20240620":  "CLAUDE_3_5_SONNET_20240620_V1_0",
	"claude-3-5-haiku-20241022":   "CLAUDE_3_5_HAIKU_20241022_V1_0",
	"claude-3-opus-20240229":      "CLAUDE_3_OPUS_20240229_V1_0",
	"claude-3-sonnet-20240229":    "CLAUDE_3_SONNET_20240229_V1_0",
	"claude-3-haiku-20240307":     "CLAUDE_3_HAIKU_20240307_V1_0",
	"claude-sonnet-4":             "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-sonnet-4-20250514":    "CLAUDE_SONNET_4_20250514_V1_0",
	"anthropic.claude-sonnet-4-v1": "CLAUDE_SONNET_4_20250514_V1_0",
}

func main() {
	if err := run(); err != nil {
		log.WithError(err).Error("gateway exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logging.Init(cfg.LogLevel)
	log.WithFields(log.Fields{
		"addr":       fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		"debug_mode": cfg.DebugMode,
	}).Info("kiro gateway starting")

	authManager, err := authmanager.New(cfg.KiroCLIDBFile, time.Duration(cfg.TokenRefreshThreshold)*time.Second)
	if err != nil {
		return fmt.Errorf("initialize auth manager: %w", err)
	}

	httpClient := kirohttp.New(
		authManager,
		cfg.HTTPMaxConnections,
		time.Duration(cfg.HTTPConnectTimeout)*time.Second,
		time.Duration(cfg.HTTPRequestTimeout)*time.Second,
		cfg.HTTPMaxRetries,
	)

	cache := modelcatalog.NewCache(time.Hour)
	if err := bootstrapCatalog(context.Background(), httpClient, authManager, cache); err != nil {
		return fmt.Errorf("load model catalog from Kiro: %w", err)
	}
	for display, internalID := range wellKnownModels {
		cache.AddHiddenModel(display, internalID)
	}
	log.WithField("models", len(cache.AllModelIDs())).Info("model catalog ready")

	resolver := modelcatalog.NewResolver(cache, wellKnownModels)
	metricsCollector := metrics.New()
	recorder := debuglog.New(cfg.DebugMode, "./debug", "")

	state := handlers.NewState(cfg, cache, resolver, authManager, httpClient, metricsCollector)
	server := api.NewServer(state, cfg, recorder)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("gateway shutdown complete")
	return nil
}

// bootstrapCatalog populates cache from Kiro's ListAvailableModels endpoint
// using a no-retry request, so a broken startup fails fast instead of
// retrying into a slow timeout.
func bootstrapCatalog(ctx context.Context, client *kirohttp.Client, auth *authmanager.Manager, cache *modelcatalog.Cache) error {
	accessToken, err := auth.GetAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}
	region := auth.GetRegion()

	url := fmt.Sprintf("https://q.%s.amazonaws.com/ListAvailableModels?origin=AI_EDITOR", region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.RequestNoRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("call ListAvailableModels: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	models := gjson.GetBytes(body, "models")
	cache.Update([]byte(models.Raw))
	return nil
}
