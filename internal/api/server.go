package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/config"
	"github.com/snarg/vcon-wtf/internal/metrics"
	"github.com/snarg/vcon-wtf/internal/vcon"
)

// Engine is everything the HTTP layer needs from the inference engine.
type Engine interface {
	TranscriptionEngine
	EngineStatus
}

type ServerOptions struct {
	Config    *config.Config
	Engine    Engine
	Models    ModelLister
	Enricher  VconEnricher
	Projector vcon.Projector
	Publisher EventPublisher // nil when MQTT is off
	MQTT      ConnStatus     // nil when MQTT is off
	Watcher   WatcherStatus  // nil when folder ingest is off
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	return &Server{
		http: &http.Server{
			Addr:         opts.Config.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
			IdleTimeout:  opts.Config.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree. Split out from NewServer so tests can
// drive it with httptest.
func NewRouter(opts ServerOptions) http.Handler {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(cfg.CORSOriginList()))

	// Health and metrics: no auth
	health := NewHealthHandler(opts.Engine, opts.MQTT, opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/health", health.ServeHTTP)
	r.Get("/health/ready", health.Ready)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	transcriptions := NewTranscriptionsHandler(opts.Engine, opts.Projector, cfg.MaxAudioBytes(), opts.Log)
	// base64 inflates audio by 4/3; leave room for the rest of the document
	vconHandler := NewVconHandler(opts.Enricher, opts.Engine, opts.Engine.ProviderName(), opts.Publisher,
		2*cfg.MaxAudioBytes()+formSlack, opts.Log)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/v1/models", ListModels(opts.Models))
		r.Get("/v1/schemas/wtf", WTFSchema)
		r.Post("/v1/audio/transcriptions", transcriptions.Create)
		r.Post("/transcribe", vconHandler.Transcribe)
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
