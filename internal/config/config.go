// Package config loads gateway configuration from CLI flags, environment
// variables and an optional .env file, with CLI > ENV > default priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// DebugMode controls how much per-request debug material is written to disk.
type DebugMode string

const (
	DebugOff    DebugMode = "off"
	DebugErrors DebugMode = "errors"
	DebugAll    DebugMode = "all"
)

// FakeReasoningHandling selects how the thinking-tag parser's output is
// surfaced to the client when fake reasoning is synthesized.
type FakeReasoningHandling string

const (
	HandlingAsReasoningContent FakeReasoningHandling = "as_reasoning_content"
	HandlingRemove             FakeReasoningHandling = "remove"
	HandlingPass               FakeReasoningHandling = "pass"
	HandlingStripTags          FakeReasoningHandling = "strip_tags"
)

// Config is the gateway's fully-resolved runtime configuration.
type Config struct {
	ServerHost string
	ServerPort int

	ProxyAPIKey string

	KiroRegion    string
	KiroCLIDBFile string

	TokenRefreshThreshold int
	FirstTokenTimeout     int

	HTTPMaxConnections int
	HTTPConnectTimeout int
	HTTPRequestTimeout int
	HTTPMaxRetries     int

	DebugMode DebugMode
	LogLevel  string

	ToolDescriptionMaxLength int
	FakeReasoningEnabled     bool
	FakeReasoningMaxTokens   int
	FakeReasoningHandling    FakeReasoningHandling
}

// Load resolves configuration from CLI flags, environment variables, an
// optional `.env` file, and built-in defaults, in that priority order.
// It is the only place in the gateway allowed to call os.Getenv directly.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("kiro-gateway", pflag.ContinueOnError)
	host := fs.StringP("host", "H", "", "server host address")
	port := fs.IntP("port", "p", 0, "server port")
	apiKey := fs.StringP("api-key", "k", "", "proxy API key for client authentication")
	dbFile := fs.StringP("db-file", "d", "", "path to the kiro-cli SQLite credential store")
	region := fs.StringP("region", "r", "", "AWS region for the Kiro API")
	logLevel := fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	debugMode := fs.String("debug-mode", "", "debug mode (off, errors, all)")
	fakeReasoning := fs.Bool("fake-reasoning", false, "enable fake reasoning / extended thinking")
	fakeReasoningSet := false
	firstTokenTimeout := fs.Int("first-token-timeout", 0, "first token timeout in seconds")
	httpTimeout := fs.Int("http-request-timeout", 0, "HTTP request timeout in seconds")
	httpRetries := fs.Int("http-max-retries", 0, "HTTP max retries")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "fake-reasoning" {
			fakeReasoningSet = true
		}
	})

	cfg := &Config{
		ServerHost: firstNonEmpty(*host, os.Getenv("SERVER_HOST"), "0.0.0.0"),
		ServerPort: firstNonZeroInt(*port, envInt("SERVER_PORT", 0), 8000),

		ProxyAPIKey: firstNonEmpty(*apiKey, os.Getenv("PROXY_API_KEY"), ""),

		KiroRegion:    firstNonEmpty(*region, os.Getenv("KIRO_REGION"), "us-east-1"),
		KiroCLIDBFile: expandTilde(firstNonEmpty(*dbFile, os.Getenv("KIRO_CLI_DB_FILE"), "")),

		TokenRefreshThreshold: envInt("TOKEN_REFRESH_THRESHOLD", 300),
		FirstTokenTimeout:     firstNonZeroInt(*firstTokenTimeout, envInt("FIRST_TOKEN_TIMEOUT", 0), 15),

		HTTPMaxConnections: envInt("HTTP_MAX_CONNECTIONS", 20),
		HTTPConnectTimeout: envInt("HTTP_CONNECT_TIMEOUT", 30),
		HTTPRequestTimeout: firstNonZeroInt(*httpTimeout, envInt("HTTP_REQUEST_TIMEOUT", 0), 300),
		HTTPMaxRetries:     firstNonZeroInt(*httpRetries, envInt("HTTP_MAX_RETRIES", 0), 3),

		DebugMode: parseDebugMode(firstNonEmpty(*debugMode, os.Getenv("DEBUG_MODE"), "off")),
		LogLevel:  firstNonEmpty(*logLevel, os.Getenv("LOG_LEVEL"), "info"),

		ToolDescriptionMaxLength: envInt("TOOL_DESCRIPTION_MAX_LENGTH", 10000),
		FakeReasoningMaxTokens:   envInt("FAKE_REASONING_MAX_TOKENS", 4000),
		FakeReasoningHandling:    parseFakeReasoningHandling(os.Getenv("FAKE_REASONING_HANDLING")),
	}

	switch {
	case fakeReasoningSet:
		cfg.FakeReasoningEnabled = *fakeReasoning
	default:
		cfg.FakeReasoningEnabled = envBool("FAKE_REASONING", true)
	}

	if cfg.ProxyAPIKey == "" {
		return nil, fmt.Errorf("PROXY_API_KEY is required (use -k or set PROXY_API_KEY)")
	}
	if cfg.KiroCLIDBFile == "" {
		return nil, fmt.Errorf("KIRO_CLI_DB_FILE is required (use -d or set KIRO_CLI_DB_FILE)")
	}

	return cfg, nil
}

// Validate checks invariants that can only be confirmed once the process is
// about to start serving traffic (e.g. filesystem state).
func (c *Config) Validate() error {
	if _, err := os.Stat(c.KiroCLIDBFile); err != nil {
		return fmt.Errorf("KIRO_CLI_DB_FILE does not exist: %s: %w", c.KiroCLIDBFile, err)
	}
	return nil
}

func expandTilde(path string) string {
	if path == "~" || !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}

func parseDebugMode(s string) DebugMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "errors":
		return DebugErrors
	case "all":
		return DebugAll
	default:
		return DebugOff
	}
}

func parseFakeReasoningHandling(s string) FakeReasoningHandling {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remove":
		return HandlingRemove
	case "pass":
		return HandlingPass
	case "strip_tags":
		return HandlingStripTags
	default:
		return HandlingAsReasoningContent
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
