package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/audio"
	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/vcon"
)

// Response formats accepted by POST /v1/audio/transcriptions.
const (
	FormatVerboseJSON = "verbose_json"
	FormatJSON        = "json"
	FormatText        = "text"
	FormatWTF         = "wtf"
)

// multipart overhead allowed on top of the audio limit
const formSlack = 1 << 20

// TranscriptionEngine runs transcriptions for the HTTP handlers.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
	ResolveModel(name string) string
	ProviderName() string
}

// VerboseResponse mirrors OpenAI's verbose_json transcription shape.
type VerboseResponse struct {
	Task     string               `json:"task"`
	Language string               `json:"language"`
	Duration float64              `json:"duration"`
	Text     string               `json:"text"`
	Segments []transcribe.Segment `json:"segments,omitempty"`
	Words    []VerboseWord        `json:"words,omitempty"`
}

type VerboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type TextResponse struct {
	Text string `json:"text"`
}

// TranscriptionsHandler serves the OpenAI-compatible upload endpoint.
type TranscriptionsHandler struct {
	engine    TranscriptionEngine
	projector vcon.Projector
	maxBytes  int64
	log       zerolog.Logger
}

func NewTranscriptionsHandler(engine TranscriptionEngine, projector vcon.Projector, maxBytes int64, log zerolog.Logger) *TranscriptionsHandler {
	return &TranscriptionsHandler{
		engine:    engine,
		projector: projector,
		maxBytes:  maxBytes,
		log:       log.With().Str("handler", "transcriptions").Logger(),
	}
}

// Create handles POST /v1/audio/transcriptions.
func (h *TranscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorDetail(w, http.StatusRequestEntityTooLarge, "audio file too large", err.Error())
			return
		}
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	format := r.FormValue("response_format")
	if format == "" {
		format = FormatVerboseJSON
	}
	switch format {
	case FormatVerboseJSON, FormatJSON, FormatText, FormatWTF:
	default:
		WriteErrorDetail(w, http.StatusBadRequest, "unsupported response_format",
			"want one of verbose_json, json, text, wtf; got "+format)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "empty audio file")
		return
	}
	if int64(len(data)) > h.maxBytes {
		WriteErrorDetail(w, http.StatusRequestEntityTooLarge, "audio file too large",
			fmt.Sprintf("%d bytes, max %d", len(data), h.maxBytes))
		return
	}

	wantWords := wordGranularity(r.MultipartForm.Value)
	model := h.engine.ResolveModel(r.FormValue("model"))
	req := transcribe.Request{
		Audio:          data,
		Suffix:         audio.UploadSuffix(header.Header.Get("Content-Type"), header.Filename),
		Model:          model,
		Language:       r.FormValue("language"),
		WordTimestamps: wantWords,
	}

	start := time.Now()
	res, err := h.engine.Transcribe(r.Context(), req)
	elapsed := time.Since(start)
	if err != nil {
		writeTranscriptionError(w, h.log, err)
		return
	}

	w.Header().Set("X-Provider", h.engine.ProviderName())
	w.Header().Set("X-Model", model)

	switch format {
	case FormatText:
		WriteText(w, http.StatusOK, res.Text)
	case FormatJSON:
		WriteJSON(w, http.StatusOK, TextResponse{Text: res.Text})
	case FormatWTF:
		doc, err := h.projector.Project(res, model, elapsed)
		if err != nil {
			h.log.Error().Err(err).Msg("wtf projection failed")
			WriteErrorDetail(w, http.StatusInternalServerError, "projection failed", err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, doc)
	default:
		WriteJSON(w, http.StatusOK, verboseResponse(res, wantWords))
	}
}

func verboseResponse(res *transcribe.Result, wantWords bool) VerboseResponse {
	lang := res.Language
	if lang == "" {
		lang = "en"
	}
	out := VerboseResponse{
		Task:     "transcribe",
		Language: lang,
		Duration: res.Duration,
		Text:     res.Text,
		Segments: res.Segments,
	}
	if wantWords {
		for _, w := range res.Words() {
			out.Words = append(out.Words, VerboseWord{Word: w.Word, Start: w.Start, End: w.End})
		}
	}
	return out
}

// wordGranularity reports whether word timestamps were requested: true when
// no granularity was sent or when "word" is among them. Both the bracketed
// and plain field names are accepted, as are comma-joined values.
func wordGranularity(form map[string][]string) bool {
	var values []string
	values = append(values, form["timestamp_granularities[]"]...)
	values = append(values, form["timestamp_granularities"]...)
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		for _, g := range strings.Split(v, ",") {
			if strings.TrimSpace(g) == "word" {
				return true
			}
		}
	}
	return false
}

func writeTranscriptionError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, transcribe.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		WriteErrorDetail(w, http.StatusServiceUnavailable, "inference queue full", err.Error())
	case errors.Is(err, transcribe.ErrStopped):
		WriteErrorDetail(w, http.StatusServiceUnavailable, "shutting down", err.Error())
	default:
		log.Error().Err(err).Msg("transcription failed")
		WriteErrorDetail(w, http.StatusInternalServerError, "transcription failed", err.Error())
	}
}
