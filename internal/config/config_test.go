package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// configKeys are cleared before each test so the host environment can't leak in.
var configKeys = []string{
	"HTTP_ADDR", "LOG_LEVEL", "AUTH_TOKEN", "CORS_ORIGINS",
	"DEFAULT_MODEL", "PRELOAD_MODEL", "MAX_AUDIO_SIZE_MB", "MODELS_FILE",
	"TRANSCRIBE_PROVIDER", "WHISPER_URL", "WHISPER_TIMEOUT",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "DEEPINFRA_API_KEY", "ELEVENLABS_API_KEY",
	"INFERENCE_WORKERS", "INFERENCE_QUEUE_SIZE", "TRANSCRIBE_RETRY_MAX_ELAPSED",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX",
	"WATCH_DIR", "WATCH_OUTPUT_DIR", "METRICS_ENABLED",
}

func TestLoad(t *testing.T) {
	clearEnvs(t, configKeys...)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8000" {
			t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.DefaultModel != "mlx-community/whisper-turbo" {
			t.Errorf("DefaultModel = %q", cfg.DefaultModel)
		}
		if !cfg.PreloadModel {
			t.Error("PreloadModel = false, want true")
		}
		if cfg.MaxAudioBytes() != 100*1024*1024 {
			t.Errorf("MaxAudioBytes = %d, want 100 MiB", cfg.MaxAudioBytes())
		}
		if cfg.Provider != ProviderWhisper {
			t.Errorf("Provider = %q, want whisper", cfg.Provider)
		}
		if cfg.WriteTimeout != 600*time.Second {
			t.Errorf("WriteTimeout = %v, want 10m", cfg.WriteTimeout)
		}
		if cfg.InferenceWorkers != 1 || cfg.InferenceQueueSize != 32 {
			t.Errorf("workers/queue = %d/%d, want 1/32", cfg.InferenceWorkers, cfg.InferenceQueueSize)
		}
		if cfg.MQTTClientID != "vcon-wtf" || cfg.MQTTTopicPrefix != "vcon-wtf" {
			t.Errorf("MQTT client/prefix = %q/%q", cfg.MQTTClientID, cfg.MQTTTopicPrefix)
		}
		if cfg.WatchOutputDir != "" {
			t.Errorf("WatchOutputDir = %q, want empty without WATCH_DIR", cfg.WatchOutputDir)
		}
		if !cfg.MetricsEnabled {
			t.Error("MetricsEnabled = false, want true")
		}
		if cfg.CORSOriginList() != nil {
			t.Errorf("CORSOriginList = %v, want nil", cfg.CORSOriginList())
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		setEnvs(t, map[string]string{"HTTP_ADDR": ":7000", "DEFAULT_MODEL": "base"})

		cfg, err := Load(Overrides{
			EnvFile:      "nonexistent.env",
			HTTPAddr:     ":9090",
			LogLevel:     "debug",
			DefaultModel: "tiny",
			WhisperURL:   "http://gpu:9000/v1/audio/transcriptions",
			WatchDir:     "/srv/vcons",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DefaultModel != "tiny" {
			t.Errorf("DefaultModel = %q, want tiny", cfg.DefaultModel)
		}
		if cfg.WhisperURL != "http://gpu:9000/v1/audio/transcriptions" {
			t.Errorf("WhisperURL = %q", cfg.WhisperURL)
		}
		if want := filepath.Join("/srv/vcons", "enriched"); cfg.WatchOutputDir != want {
			t.Errorf("WatchOutputDir = %q, want %q", cfg.WatchOutputDir, want)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		setEnvs(t, map[string]string{
			"HTTP_ADDR":           ":7000",
			"TRANSCRIBE_PROVIDER": "DeepInfra",
			"DEEPINFRA_API_KEY":   "di-key",
			"INFERENCE_WORKERS":   "4",
			"CORS_ORIGINS":        "https://a.example, https://b.example",
		})

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":7000" {
			t.Errorf("HTTPAddr = %q, want :7000", cfg.HTTPAddr)
		}
		if cfg.Provider != ProviderDeepInfra {
			t.Errorf("Provider = %q, want normalised deepinfra", cfg.Provider)
		}
		if cfg.InferenceWorkers != 4 {
			t.Errorf("InferenceWorkers = %d, want 4", cfg.InferenceWorkers)
		}
		if got := cfg.CORSOriginList(); len(got) != 2 || got[1] != "https://b.example" {
			t.Errorf("CORSOriginList = %v", got)
		}
	})

	t.Run("env_file", func(t *testing.T) {
		clearEnvs(t, "LOG_LEVEL")
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("LOG_LEVEL=warn\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(Overrides{EnvFile: path})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want warn from env file", cfg.LogLevel)
		}
	})
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		envs map[string]string
	}{
		{"unknown provider", map[string]string{"TRANSCRIBE_PROVIDER": "vosk"}},
		{"openai without key", map[string]string{"TRANSCRIBE_PROVIDER": "openai"}},
		{"deepinfra without key", map[string]string{"TRANSCRIBE_PROVIDER": "deepinfra"}},
		{"elevenlabs without key", map[string]string{"TRANSCRIBE_PROVIDER": "elevenlabs"}},
		{"zero workers", map[string]string{"INFERENCE_WORKERS": "0"}},
		{"zero queue", map[string]string{"INFERENCE_QUEUE_SIZE": "0"}},
		{"negative max size", map[string]string{"MAX_AUDIO_SIZE_MB": "-1"}},
		{"bad duration", map[string]string{"WHISPER_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvs(t, configKeys...)
			setEnvs(t, tt.envs)

			if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadOpenAICompatibleWithoutKey(t *testing.T) {
	clearEnvs(t, configKeys...)
	setEnvs(t, map[string]string{
		"TRANSCRIBE_PROVIDER": "openai",
		"OPENAI_BASE_URL":     "http://localhost:8080/v1/",
	})
	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err != nil {
		t.Errorf("self-hosted OpenAI-compatible base URL should not need a key: %v", err)
	}
}

// setEnvs sets environment variables, restoring the originals when the test ends.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// clearEnvs unsets variables for the duration of the test. Anything set
// meanwhile (e.g. by godotenv) is removed again afterwards.
func clearEnvs(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, ok := os.LookupEnv(k)
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, orig)
			} else {
				os.Unsetenv(k)
			}
		})
		os.Unsetenv(k)
	}
}
