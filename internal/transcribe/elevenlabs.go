package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
type ElevenLabsClient struct {
	apiKey   string
	endpoint string
	model    string // "scribe_v1" or "scribe_v2"
	keyterms string // comma-separated boost terms
	timeout  time.Duration
	client   *http.Client
}

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word or spacing entry from ElevenLabs.
type elevenlabsWord struct {
	Text    string   `json:"text"`
	Type    string   `json:"type"` // "word", "spacing" or "audio_event"
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Logprob *float64 `json:"logprob"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client.
func NewElevenLabsClient(apiKey, model, keyterms string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		endpoint: elevenLabsSTTEndpoint,
		model:    model,
		keyterms: keyterms,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Model returns the configured model identifier.
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends the audio to the ElevenLabs STT API. ElevenLabs returns
// only words, so segments are rebuilt from sentence boundaries.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, req Request) (*Result, error) {
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
		model = el.model
	}
	w.WriteField("model_id", model)

	if req.Language != "" {
		w.WriteField("language_code", req.Language)
	}

	// Word timestamps are needed for segment reconstruction either way.
	w.WriteField("timestamps_granularity", "word")

	if keyterms := el.buildKeyterms(); keyterms != "" {
		w.WriteField("keyterms", keyterms)
	}

	w.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: el.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &responseDecodeError{Err: err}
	}

	// Filter out spacing and audio events
	var words []Word
	for _, ew := range result.Words {
		if ew.Type != "word" {
			continue
		}
		word := Word{Word: ew.Text, Start: ew.Start, End: ew.End}
		if ew.Logprob != nil {
			word.Probability = float64Ptr(logprobToProbability(*ew.Logprob))
		}
		words = append(words, word)
	}

	segments := segmentsFromWords(words)
	if !req.WordTimestamps {
		for i := range segments {
			segments[i].Words = nil
		}
	}

	var duration float64
	if len(words) > 0 {
		duration = words[len(words)-1].End
	}

	return &Result{
		Text:                strings.TrimSpace(result.Text),
		Language:            result.LanguageCode,
		Duration:            duration,
		Segments:            segments,
		LanguageProbability: float64Ptr(result.LanguageProbability),
	}, nil
}

// buildKeyterms turns the comma-separated config string into the JSON array
// of {"text": "term"} objects the API expects.
func (el *ElevenLabsClient) buildKeyterms() string {
	var terms []string
	for _, t := range strings.Split(el.keyterms, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			terms = append(terms, t)
		}
	}

	if len(terms) == 0 {
		return ""
	}

	type keyterm struct {
		Text string `json:"text"`
	}
	arr := make([]keyterm, len(terms))
	for i, t := range terms {
		arr[i] = keyterm{Text: t}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
