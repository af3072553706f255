package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint
// (speaches, faster-whisper-server, whisper.cpp server, mlx servers).
type WhisperClient struct {
	url     string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewWhisperClient creates a new Whisper HTTP client.
func NewWhisperClient(url, model string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:     url,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (wc *WhisperClient) Name() string { return "whisper" }

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe uploads the audio as multipart/form-data and parses the
// verbose_json response. Only non-default parameters are sent, so this works
// with any server that ignores unknown form fields.
func (wc *WhisperClient) Transcribe(ctx context.Context, req Request) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", req.Filename())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	model := req.Model
	if model == "" {
		model = wc.model
	}
	if model != "" {
		w.WriteField("model", model)
	}

	// Language: omitted means the server auto-detects
	if req.Language != "" {
		w.WriteField("language", req.Language)
	}

	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	if req.WordTimestamps {
		w.WriteField("timestamp_granularities[]", "word")
	}

	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := wc.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: wc.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	return parseVerbose(body)
}
