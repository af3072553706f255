package vcon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/audio"
	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/wtf"
)

// AnalysisType tags the analysis entries this package appends.
const AnalysisType = "wtf_transcription"

// Transcriber turns audio into a timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
}

// Projector packages a transcription result as a WTF document.
type Projector interface {
	Project(res *transcribe.Result, model string, elapsed time.Duration) (*wtf.Document, error)
}

// Options are the per-request enrichment parameters.
type Options struct {
	Model          string // empty = configured default
	Language       string // empty = auto-detect
	WordTimestamps bool
}

// AnalysisEntry is the analysis element appended for each transcribed
// recording. Dialog is the recording's index in the input dialog array.
type AnalysisEntry struct {
	Type      string        `json:"type"`
	Dialog    int           `json:"dialog"`
	MediaType string        `json:"mediatype"`
	Vendor    string        `json:"vendor"`
	Product   string        `json:"product"`
	Schema    string        `json:"schema"`
	Body      *wtf.Document `json:"body"`
	Encoding  string        `json:"encoding"`
}

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	Transcriber  Transcriber
	Projector    Projector
	Vendor       string // provider name recorded in analysis entries
	DefaultModel string
	Log          zerolog.Logger
}

// Enricher walks a vCon's dialog entries, transcribes the audio recordings
// and appends one analysis entry per success. Entries run sequentially.
type Enricher struct {
	transcriber  Transcriber
	projector    Projector
	vendor       string
	defaultModel string
	log          zerolog.Logger
}

func NewEnricher(opts EnricherOptions) *Enricher {
	return &Enricher{
		transcriber:  opts.Transcriber,
		projector:    opts.Projector,
		vendor:       opts.Vendor,
		defaultModel: opts.DefaultModel,
		log:          opts.Log.With().Str("component", "enricher").Logger(),
	}
}

// EffectiveModel returns the model a run with opts would request.
func (e *Enricher) EffectiveModel(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return e.defaultModel
}

type outcomeKind int

const (
	outcomeProcessed outcomeKind = iota
	outcomeSkipped
	outcomeFailed
)

// outcome is the result of one dialog entry. err is a *DecodeError,
// *transcribe.TranscriptionError, *wtf.ProjectionError or an internal error.
type outcome struct {
	kind    outcomeKind
	entry   json.RawMessage
	elapsed time.Duration
	err     error
}

// Enrich returns a copy of doc with an analysis entry appended for every
// recording that was transcribed, plus the run's stats. Per-entry failures
// are counted and logged, never returned. doc is not modified.
func (e *Enricher) Enrich(ctx context.Context, doc *Document, opts Options) (*Document, Stats) {
	var stats Stats
	model := e.EffectiveModel(opts)

	analysis := make([]json.RawMessage, len(doc.Analysis), len(doc.Analysis)+len(doc.Dialog))
	copy(analysis, doc.Analysis)

	for i, d := range doc.Dialog {
		out := e.processEntry(ctx, i, d, model, opts)
		switch out.kind {
		case outcomeSkipped:
			stats.recordSkipped()
		case outcomeFailed:
			stats.recordFailed()
			e.log.Warn().Err(out.err).Int("dialog", i).Msg("dialog transcription failed")
		case outcomeProcessed:
			analysis = append(analysis, out.entry)
			stats.recordProcessed(out.elapsed)
			e.log.Debug().Int("dialog", i).Dur("elapsed", out.elapsed).Msg("dialog transcribed")
		}
	}

	e.log.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int64("total_time_ms", stats.TotalTimeMS).
		Str("model", model).
		Msg("vcon enrichment complete")

	return doc.WithAnalysis(analysis), stats
}

func (e *Enricher) processEntry(ctx context.Context, i int, d Dialog, model string, opts Options) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{kind: outcomeFailed, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if !IsEligible(d) || !d.HasBody() {
		return outcome{kind: outcomeSkipped}
	}

	data, err := DecodeBody(d.Body, d.Encoding)
	if err != nil {
		return outcome{kind: outcomeFailed, err: err}
	}

	start := time.Now()
	res, err := e.transcriber.Transcribe(ctx, transcribe.Request{
		Audio:          data,
		Suffix:         audio.SuffixForMediatype(d.MediaType),
		Model:          model,
		Language:       opts.Language,
		WordTimestamps: opts.WordTimestamps,
	})
	elapsed := time.Since(start)
	if err != nil {
		return outcome{kind: outcomeFailed, err: err}
	}

	product := model
	if res.Model != "" {
		product = res.Model
	}

	body, err := e.projector.Project(res, product, elapsed)
	if err != nil {
		return outcome{kind: outcomeFailed, err: err}
	}

	entry, err := json.Marshal(AnalysisEntry{
		Type:      AnalysisType,
		Dialog:    i,
		MediaType: "application/json",
		Vendor:    e.vendor,
		Product:   product,
		Schema:    wtf.SchemaVersion,
		Body:      body,
		Encoding:  "json",
	})
	if err != nil {
		return outcome{kind: outcomeFailed, err: fmt.Errorf("marshal analysis entry: %w", err)}
	}

	return outcome{kind: outcomeProcessed, entry: entry, elapsed: elapsed}
}
