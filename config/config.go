package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Portal    PortalConfig
	Runs      RunsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	QA        QAConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity. The harvest loop is sequential,
	// so 1 is enough; raise it only if several runs must share the browser.
	MaxPages int // default: 1

	// Proxy is the proxy URL for all portal traffic.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// Bin overrides the Chromium binary path.
	Bin string
}

// PortalConfig controls the university result-lookup adapter.
type PortalConfig struct {
	// ResultURL is the address of the result-lookup form.
	ResultURL string // default: UG result page of the University of Madras

	// FetchMode selects how the form is submitted.
	// "browser" (default): headless Chrome fills and submits the form.
	// "http": plain form POST with a Chrome TLS fingerprint.
	FetchMode string

	// RequestTimeout is the deadline for one student's lookup.
	RequestTimeout time.Duration // default: 30s

	// NavigationTimeout is the max time for the initial page load alone.
	NavigationTimeout time.Duration // default: 15s

	// StudentDelay is the pause between consecutive lookups, to avoid
	// hammering the portal.
	StudentDelay time.Duration // default: 1s

	// Stealth enables anti-bot-detection evasions in browser mode.
	Stealth bool // default: false

	// BlockedResourceTypes lists resource types the browser will not load.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// RunsConfig controls the in-memory run registry.
type RunsConfig struct {
	// MaxStudents caps the roster size per run.
	MaxStudents int // default: 500

	// TTL is how long a finished run is kept before eviction.
	TTL time.Duration // default: 1h
}

// AuthConfig controls API key authentication for the service itself.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// QAConfig holds defaults for the question-answering delegate.
// The LLM API key itself is always supplied per request and never stored.
type QAConfig struct {
	// BaseURL is the default OpenAI-compatible endpoint.
	BaseURL string // default: "https://api.groq.com/openai/v1"

	// Model is the default chat model.
	Model string // default: "llama3-70b-8192"

	// MaxSampleRows is how many table rows are included in the prompt.
	MaxSampleRows int // default: 20
}

// WebhookConfig controls run-completion notifications.
type WebhookConfig struct {
	// URL receives run.completed / run.partial / run.failed events.
	// Empty disables delivery.
	URL string

	// Secret signs event payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("RESULTHOUND_HOST", "0.0.0.0"),
			Port: envIntOr("RESULTHOUND_PORT", 8080),
			Mode: envOr("RESULTHOUND_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:  envBoolOr("RESULTHOUND_HEADLESS", true),
			MaxPages:  envIntOr("RESULTHOUND_MAX_PAGES", 1),
			Proxy:     os.Getenv("RESULTHOUND_PROXY"),
			NoSandbox: envBoolOr("RESULTHOUND_NO_SANDBOX", false),
			Bin:       os.Getenv("RESULTHOUND_BROWSER_BIN"),
		},
		Portal: PortalConfig{
			ResultURL:         envOr("RESULTHOUND_RESULT_URL", "https://egovernance.unom.ac.in/results/ugresult.asp"),
			FetchMode:         envOr("RESULTHOUND_FETCH_MODE", "browser"),
			RequestTimeout:    envDurationOr("RESULTHOUND_REQUEST_TIMEOUT", 30*time.Second),
			NavigationTimeout: envDurationOr("RESULTHOUND_NAV_TIMEOUT", 15*time.Second),
			StudentDelay:      envDurationOr("RESULTHOUND_STUDENT_DELAY", time.Second),
			Stealth:           envBoolOr("RESULTHOUND_STEALTH", false),
			BlockedResourceTypes: envSliceOr("RESULTHOUND_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Runs: RunsConfig{
			MaxStudents: envIntOr("RESULTHOUND_MAX_STUDENTS", 500),
			TTL:         envDurationOr("RESULTHOUND_RUN_TTL", time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("RESULTHOUND_AUTH_ENABLED", true),
			APIKeys: envSliceOr("RESULTHOUND_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RESULTHOUND_RATE_RPS", 5.0),
			Burst:             envIntOr("RESULTHOUND_RATE_BURST", 10),
		},
		QA: QAConfig{
			BaseURL:       envOr("RESULTHOUND_QA_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:         envOr("RESULTHOUND_QA_MODEL", "llama3-70b-8192"),
			MaxSampleRows: envIntOr("RESULTHOUND_QA_SAMPLE_ROWS", 20),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("RESULTHOUND_WEBHOOK_URL"),
			Secret: os.Getenv("RESULTHOUND_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("RESULTHOUND_LOG_LEVEL", "info"),
			Format: envOr("RESULTHOUND_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
