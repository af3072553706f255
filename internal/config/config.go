package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported TRANSCRIBE_PROVIDER values.
const (
	ProviderWhisper    = "whisper"
	ProviderOpenAI     = "openai"
	ProviderDeepInfra  = "deepinfra"
	ProviderElevenLabs = "elevenlabs"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"600s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken   string `env:"AUTH_TOKEN"`
	CORSOrigins string `env:"CORS_ORIGINS"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DefaultModel   string `env:"DEFAULT_MODEL" envDefault:"mlx-community/whisper-turbo"`
	PreloadModel   bool   `env:"PRELOAD_MODEL" envDefault:"true"`
	MaxAudioSizeMB int    `env:"MAX_AUDIO_SIZE_MB" envDefault:"100"`
	ModelsFile     string `env:"MODELS_FILE"`

	// Transcription provider
	Provider       string        `env:"TRANSCRIBE_PROVIDER" envDefault:"whisper"`
	WhisperURL     string        `env:"WHISPER_URL" envDefault:"http://localhost:9000/v1/audio/transcriptions"`
	WhisperTimeout time.Duration `env:"WHISPER_TIMEOUT" envDefault:"300s"`

	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	DeepInfraAPIKey    string `env:"DEEPINFRA_API_KEY"`
	ElevenLabsAPIKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsKeyterms string `env:"ELEVENLABS_KEYTERMS"`

	InferenceWorkers   int           `env:"INFERENCE_WORKERS" envDefault:"1"`
	InferenceQueueSize int           `env:"INFERENCE_QUEUE_SIZE" envDefault:"32"`
	RetryMaxElapsed    time.Duration `env:"TRANSCRIBE_RETRY_MAX_ELAPSED" envDefault:"30s"`
	PreprocessAudio    bool          `env:"PREPROCESS_AUDIO" envDefault:"false"`

	// Enrichment events (disabled when MQTT_BROKER_URL is empty)
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"vcon-wtf"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"vcon-wtf"`

	// Folder ingest (disabled when WATCH_DIR is empty)
	WatchDir       string `env:"WATCH_DIR"`
	WatchOutputDir string `env:"WATCH_OUTPUT_DIR"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	DefaultModel string
	Provider     string
	WhisperURL   string
	WatchDir     string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DefaultModel != "" {
		cfg.DefaultModel = overrides.DefaultModel
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}
	if overrides.WhisperURL != "" {
		cfg.WhisperURL = overrides.WhisperURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.WatchDir != "" && cfg.WatchOutputDir == "" {
		cfg.WatchOutputDir = filepath.Join(cfg.WatchDir, "enriched")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderWhisper:
		if c.WhisperURL == "" {
			return fmt.Errorf("WHISPER_URL is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderDeepInfra:
		if c.DeepInfraAPIKey == "" {
			return fmt.Errorf("DEEPINFRA_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderElevenLabs:
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown TRANSCRIBE_PROVIDER %q (want whisper, openai, deepinfra or elevenlabs)", c.Provider)
	}

	if c.MaxAudioSizeMB <= 0 {
		return fmt.Errorf("MAX_AUDIO_SIZE_MB must be positive, got %d", c.MaxAudioSizeMB)
	}
	if c.InferenceWorkers <= 0 {
		return fmt.Errorf("INFERENCE_WORKERS must be positive, got %d", c.InferenceWorkers)
	}
	if c.InferenceQueueSize <= 0 {
		return fmt.Errorf("INFERENCE_QUEUE_SIZE must be positive, got %d", c.InferenceQueueSize)
	}
	if c.RetryMaxElapsed < 0 {
		return fmt.Errorf("TRANSCRIBE_RETRY_MAX_ELAPSED must not be negative")
	}
	return nil
}

// MaxAudioBytes is the upload limit in bytes.
func (c *Config) MaxAudioBytes() int64 {
	return int64(c.MaxAudioSizeMB) * 1024 * 1024
}

// CORSOriginList splits CORS_ORIGINS; empty means allow all.
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
