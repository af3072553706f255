package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{config.ProviderWhisper, "whisper"},
		{config.ProviderOpenAI, "openai"},
		{config.ProviderDeepInfra, "deepinfra"},
		{config.ProviderElevenLabs, "elevenlabs"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{
				Provider:        tt.provider,
				WhisperURL:      "http://localhost:9000/v1/audio/transcriptions",
				DefaultModel:    "turbo",
				RetryMaxElapsed: 0,
			}
			p, err := newProvider(cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("newProvider: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
			}
			if p.Model() != "turbo" {
				t.Errorf("Model() = %q, want turbo", p.Model())
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := newProvider(&config.Config{Provider: "bogus"}, zerolog.Nop()); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}

func TestNewPipeline(t *testing.T) {
	cfg := &config.Config{
		Provider:           config.ProviderWhisper,
		WhisperURL:         "http://localhost:9000/v1/audio/transcriptions",
		DefaultModel:       "turbo",
		InferenceWorkers:   1,
		InferenceQueueSize: 4,
	}
	p, err := newPipeline(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newPipeline: %v", err)
	}
	if p.engine.ProviderName() != "whisper" {
		t.Errorf("provider = %q", p.engine.ProviderName())
	}
	if got := p.engine.DefaultModel(); got == "turbo" || got == "" {
		t.Errorf("default model %q should resolve through the alias table", got)
	}

	cfg.ModelsFile = "/nonexistent/models.yaml"
	if _, err := newPipeline(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for missing models file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "nonsense").Info().Msg("info")
	if !strings.Contains(buf.String(), "info") {
		t.Error("invalid level should fall back to info")
	}
}

func TestReadInput(t *testing.T) {
	data, err := readInput(strings.NewReader(`{"dialog":[]}`), "-")
	if err != nil || string(data) != `{"dialog":[]}` {
		t.Errorf("stdin: %q, %v", data, err)
	}
	if _, err := readInput(nil, "/nonexistent/vcon.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
