package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

const defaultOpenAIModel = "whisper-1"

// OpenAIClient transcribes through the OpenAI audio API using the official
// SDK. Any OpenAI-compatible base URL works.
type OpenAIClient struct {
	api   openai.Client
	model string
}

// NewOpenAIClient creates an OpenAI SDK backed provider. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIClient {
	requestOpts := make([]option.RequestOption, 0, 2+len(opts))
	if baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(apiKey))
	}
	requestOpts = append(requestOpts, opts...)

	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		api:   openai.NewClient(requestOpts...),
		model: model,
	}
}

// Name returns the provider name.
func (oc *OpenAIClient) Name() string { return "openai" }

// Model returns the configured model identifier.
func (oc *OpenAIClient) Model() string { return oc.model }

// Transcribe requests verbose_json output and parses the raw body, since the
// SDK's union type only models the plain text field directly.
func (oc *OpenAIClient) Transcribe(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = oc.model
	}

	contentType := mime.TypeByExtension(req.Suffix)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(req.Audio), req.Filename(), contentType),
		Model:          openai.AudioModel(model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" {
		params.Language = param.NewOpt(req.Language)
	}
	if req.WordTimestamps {
		params.TimestampGranularities = []string{"word", "segment"}
	} else {
		params.TimestampGranularities = []string{"segment"}
	}

	response, err := oc.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{Provider: oc.Name(), StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if response == nil {
		return nil, errors.New("audio transcriptions API returned nil response")
	}

	return parseVerbose([]byte(response.RawJSON()))
}
