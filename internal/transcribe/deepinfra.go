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

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
type DeepInfraClient struct {
	apiKey  string
	baseURL string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	timeout time.Duration
	client  *http.Client
}

// deepInfraResponse is the JSON response from the DeepInfra inference API.
type deepInfraResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Duration float64            `json:"duration"`
	Words    []deepInfraWord    `json:"words"`
	Segments []deepInfraSegment `json:"segments"`
}

// deepInfraWord uses "text" for the word, not "word" like OpenAI.
type deepInfraWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type deepInfraSegment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewDeepInfraClient creates a new DeepInfra inference client.
func NewDeepInfraClient(apiKey, model string, timeout time.Duration) *DeepInfraClient {
	return &DeepInfraClient{
		apiKey:  apiKey,
		baseURL: deepInfraBaseURL,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (di *DeepInfraClient) Name() string { return "deepinfra" }

// Model returns the configured model identifier.
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts the audio to https://api.deepinfra.com/v1/inference/{model}.
func (di *DeepInfraClient) Transcribe(ctx context.Context, req Request) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// DeepInfra uses "audio", not "file"
	part, err := w.CreateFormFile("audio", req.Filename())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if req.Language != "" {
		w.WriteField("language", req.Language)
	}
	w.Close()

	model := req.Model
	if model == "" {
		model = di.model
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, di.baseURL+model, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+di.apiKey)

	resp, err := di.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepinfra request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: di.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &responseDecodeError{Err: err}
	}

	segments := make([]Segment, 0, len(result.Segments))
	for i, s := range result.Segments {
		segments = append(segments, Segment{ID: i, Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}

	var words []Word
	if len(result.Words) > 0 {
		words = make([]Word, len(result.Words))
		for i, dw := range result.Words {
			words[i] = Word{Word: dw.Text, Start: dw.Start, End: dw.End}
		}
	} else if req.WordTimestamps {
		// No word-level data: interpolate evenly across each segment.
		words = wordsFromSegments(result.Segments)
	}

	switch {
	case len(segments) > 0 && req.WordTimestamps:
		attachWords(segments, words)
	case len(segments) == 0 && len(words) > 0:
		segments = segmentsFromWords(words)
	case len(segments) == 0 && strings.TrimSpace(result.Text) != "":
		segments = []Segment{{Start: 0, End: result.Duration, Text: strings.TrimSpace(result.Text)}}
	}

	return &Result{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
		Duration: result.Duration,
		Segments: segments,
	}, nil
}

// wordsFromSegments synthesizes word-level entries from segment-level
// timestamps, interpolating evenly across each segment's time range.
func wordsFromSegments(segments []deepInfraSegment) []Word {
	var words []Word
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tokens := strings.Fields(text)
		n := len(tokens)
		dur := seg.End - seg.Start
		wordDur := dur / float64(n)
		for i, tok := range tokens {
			words = append(words, Word{
				Word:  tok,
				Start: seg.Start + float64(i)*wordDur,
				End:   seg.Start + float64(i+1)*wordDur,
			})
		}
	}
	return words
}
