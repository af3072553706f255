package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/metrics"
	"github.com/snarg/vcon-wtf/internal/mqttclient"
	"github.com/snarg/vcon-wtf/internal/vcon"
)

// VconEnricher runs the enrichment pipeline over one vCon.
type VconEnricher interface {
	Enrich(ctx context.Context, doc *vcon.Document, opts vcon.Options) (*vcon.Document, vcon.Stats)
	EffectiveModel(opts vcon.Options) string
}

// EventPublisher receives one event per enrichment run.
type EventPublisher interface {
	PublishEnrichment(ev mqttclient.Event)
}

// ModelResolver maps a model alias to the model ID that will run.
type ModelResolver interface {
	ResolveModel(name string) string
}

// VconHandler serves POST /transcribe.
type VconHandler struct {
	enricher  VconEnricher
	models    ModelResolver
	provider  string
	publisher EventPublisher // optional
	maxBytes  int64
	log       zerolog.Logger
}

func NewVconHandler(enricher VconEnricher, models ModelResolver, provider string, publisher EventPublisher, maxBytes int64, log zerolog.Logger) *VconHandler {
	return &VconHandler{
		enricher:  enricher,
		models:    models,
		provider:  provider,
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log.With().Str("handler", "vcon").Logger(),
	}
}

// Transcribe accepts a vCon, transcribes its audio recordings and returns
// the enriched vCon. Per-dialog outcomes are reported in X-Dialogs-* headers;
// individual failures never fail the request.
func (h *VconHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	wordTimestamps, err := QueryBool(r, "word_timestamps", true)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, _ := QueryString(r, "model")
	language, _ := QueryString(r, "language")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorDetail(w, http.StatusRequestEntityTooLarge, "vCon too large", err.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	doc, err := vcon.Parse(body)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if err := vcon.Validate(doc); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, vcon.ErrMissingDialog) {
			status = http.StatusBadRequest
		}
		h.log.Debug().Err(err).Str("vcon_uuid", doc.UUID()).Msg("vcon rejected")
		WriteError(w, status, err.Error())
		return
	}

	opts := vcon.Options{Model: model, Language: language, WordTimestamps: wordTimestamps}
	enriched, stats := h.enricher.Enrich(r.Context(), doc, opts)
	effective := h.models.ResolveModel(h.enricher.EffectiveModel(opts))

	metrics.ObserveDialogs(stats.Processed, stats.Skipped, stats.Failed)
	if h.publisher != nil {
		h.publisher.PublishEnrichment(mqttclient.NewEvent("http", doc.UUID(), h.provider, effective,
			stats.Processed, stats.Skipped, stats.Failed, stats.TotalTimeMS))
	}

	hdr := w.Header()
	hdr.Set("X-Dialogs-Processed", strconv.Itoa(stats.Processed))
	hdr.Set("X-Dialogs-Skipped", strconv.Itoa(stats.Skipped))
	hdr.Set("X-Dialogs-Failed", strconv.Itoa(stats.Failed))
	hdr.Set("X-Processing-Time-Ms", strconv.FormatInt(stats.TotalTimeMS, 10))
	hdr.Set("X-Provider", h.provider)
	hdr.Set("X-Model", effective)
	WriteJSON(w, http.StatusOK, enriched)
}
