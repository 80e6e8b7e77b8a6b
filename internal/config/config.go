package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice agent.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8081"`

	// Deepgram speech APIs (shared key for the listen and speak endpoints)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	SpeakURL         string `envconfig:"DEEPGRAM_SPEAK_URL" default:"wss://api.deepgram.com/v1/speak"`
	SpeakModel       string `envconfig:"DEEPGRAM_SPEAK_MODEL" default:"aura-2-thalia-en"`
	SpeakSampleRate  int    `envconfig:"DEEPGRAM_SPEAK_SAMPLE_RATE" default:"24000"`

	// Audio capture configuration
	CaptureSampleRate int `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`
	CaptureFrameSize  int `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"` // samples per frame

	// Turn detection
	QuietPeriodMs int `envconfig:"QUIET_PERIOD_MS" default:"3000"` // silence before a turn completes

	// Language generation collaborator
	LLMEndpoint     string `envconfig:"LLM_ENDPOINT" default:"https://api.openai.com/v1/chat/completions"`
	LLMAPIKey       string `envconfig:"LLM_API_KEY" required:"true"`
	LLMModel        string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMSystemPrompt string `envconfig:"LLM_SYSTEM_PROMPT" default:"You are a surgeon's assistant. You are helping the surgeon with keeping track of all its tools and recapping where he left them. Keep your responses to 50 words or less. Your name is Sargi."`
	LLMTimeout      int    `envconfig:"LLM_TIMEOUT" default:"30"` // seconds

	// Telemetry socket (video frames + tool tracking)
	TelemetryURL        string `envconfig:"TELEMETRY_URL" default:"ws://localhost:8080"`
	TelemetryBackoff    int    `envconfig:"TELEMETRY_BACKOFF" default:"1000"`      // base backoff in milliseconds
	TelemetryBackoffMax int    `envconfig:"TELEMETRY_BACKOFF_MAX" default:"30000"` // backoff cap in milliseconds

	// Object storage for tool replay clips
	StorageBaseURL string `envconfig:"STORAGE_BASE_URL" default:""`
	StorageBucket  string `envconfig:"STORAGE_BUCKET" default:"replays"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if one exists, then processes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without touching any .env file (for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if cfg.CaptureFrameSize <= 0 {
		return nil, fmt.Errorf("CAPTURE_FRAME_SIZE must be positive, got %d", cfg.CaptureFrameSize)
	}
	if cfg.QuietPeriodMs <= 0 {
		return nil, fmt.Errorf("QUIET_PERIOD_MS must be positive, got %d", cfg.QuietPeriodMs)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
