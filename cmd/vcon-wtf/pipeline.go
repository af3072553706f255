package main

import (
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/config"
	"github.com/snarg/vcon-wtf/internal/metrics"
	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/vcon"
	"github.com/snarg/vcon-wtf/internal/wtf"
)

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// newProvider builds the configured STT backend, wrapped with retries for
// transient upstream errors.
func newProvider(cfg *config.Config, log zerolog.Logger) (transcribe.Provider, error) {
	var p transcribe.Provider
	switch cfg.Provider {
	case config.ProviderWhisper:
		p = transcribe.NewWhisperClient(cfg.WhisperURL, cfg.DefaultModel, cfg.WhisperTimeout)
	case config.ProviderOpenAI:
		p = transcribe.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.DefaultModel,
			option.WithRequestTimeout(cfg.WhisperTimeout),
			option.WithMaxRetries(0))
	case config.ProviderDeepInfra:
		p = transcribe.NewDeepInfraClient(cfg.DeepInfraAPIKey, cfg.DefaultModel, cfg.WhisperTimeout)
	case config.ProviderElevenLabs:
		p = transcribe.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.DefaultModel, cfg.ElevenLabsKeyterms, cfg.WhisperTimeout)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return transcribe.WithRetry(p, cfg.RetryMaxElapsed, log.With().Str("component", "retry").Logger()), nil
}

// pipeline is the transcription stack shared by the server and the one-shot
// enrich command.
type pipeline struct {
	engine    *transcribe.Engine
	models    *transcribe.ModelRegistry
	converter *wtf.Converter
	enricher  *vcon.Enricher
}

func newPipeline(cfg *config.Config, log zerolog.Logger) (*pipeline, error) {
	models, err := transcribe.LoadModels(cfg.ModelsFile)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	engine := transcribe.NewEngine(transcribe.EngineOptions{
		Provider:     provider,
		Models:       models,
		DefaultModel: cfg.DefaultModel,
		Preprocess:   cfg.PreprocessAudio,
		Workers:      cfg.InferenceWorkers,
		QueueSize:    cfg.InferenceQueueSize,
		OnComplete:   metrics.ObserveTranscription,
		Log:          log.With().Str("component", "inference").Logger(),
	})

	converter := wtf.NewConverter(provider.Name())
	enricher := vcon.NewEnricher(vcon.EnricherOptions{
		Transcriber:  engine,
		Projector:    converter,
		Vendor:       provider.Name(),
		DefaultModel: engine.DefaultModel(),
		Log:          log,
	})

	return &pipeline{engine: engine, models: models, converter: converter, enricher: enricher}, nil
}

const preloadRetryFor = 5 * time.Minute
