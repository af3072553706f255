package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/snarg/vcon-wtf/internal/api"
	"github.com/snarg/vcon-wtf/internal/metrics"
	"github.com/snarg/vcon-wtf/internal/mqttclient"
	"github.com/snarg/vcon-wtf/internal/vcon"
	"github.com/snarg/vcon-wtf/internal/watch"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (and folder watcher when WATCH_DIR is set)",
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(os.Stdout, cfg.LogLevel)
	log.Info().Str("version", version).Str("provider", cfg.Provider).Msg("vcon-wtf starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	p.engine.Start()
	defer p.engine.Stop()

	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewCollector(p.engine))
	}

	if cfg.PreloadModel {
		go func() {
			if err := p.engine.Preload(ctx, cfg.DefaultModel, preloadRetryFor); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("model preload failed; first request will load it")
			}
		}()
	}

	opts := api.ServerOptions{
		Config:    cfg,
		Engine:    p.engine,
		Models:    p.models,
		Enricher:  p.enricher,
		Projector: p.converter,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	}

	// MQTT (optional)
	var events *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		events, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return err
		}
		defer events.Close()
		opts.Publisher = events
		opts.MQTT = events
	}

	// Folder ingest (optional)
	if cfg.WatchDir != "" {
		wopts := watch.Options{
			WatchDir:      cfg.WatchDir,
			OutputDir:     cfg.WatchOutputDir,
			Enricher:      p.enricher,
			EnrichOptions: vcon.Options{WordTimestamps: true},
			Provider:      p.engine.ProviderName(),
			Backfill:      true,
			Log:           log,
		}
		if events != nil {
			wopts.Publisher = events
		}
		fw := watch.New(wopts)
		if err := fw.Start(ctx); err != nil {
			return err
		}
		defer fw.Stop()
		opts.Watcher = fw
	}

	srv := api.NewServer(opts)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("vcon-wtf stopped")
	return serveErr
}
