package transcribe

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
	Name() string  // "whisper", "openai", "deepinfra", "elevenlabs"
	Model() string // configured default model identifier
}

// Request is one transcription call. Audio is the raw container bytes;
// Suffix (".wav", ".mp3", ...) tells the backend which decoder to use.
type Request struct {
	Audio          []byte
	Suffix         string
	Model          string // empty = provider default
	Language       string // empty = auto-detect
	WordTimestamps bool
}

// Filename returns a synthetic upload filename carrying the suffix.
func (r Request) Filename() string {
	suffix := r.Suffix
	if suffix == "" {
		suffix = ".wav"
	}
	return "audio" + suffix
}

// Result is the common transcription result from any provider.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"` // audio duration in seconds
	Segments []Segment `json:"segments"`

	// Set by the Engine, not by providers.
	Model    string `json:"-"`
	Provider string `json:"-"`

	// LanguageProbability is reported by some providers (ElevenLabs).
	LanguageProbability *float64 `json:"-"`
}

// Segment is a time-aligned span of the transcript.
type Segment struct {
	ID               int      `json:"id"`
	Start            float64  `json:"start"`
	End              float64  `json:"end"`
	Text             string   `json:"text"`
	AvgLogprob       *float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb     *float64 `json:"no_speech_prob,omitempty"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Words            []Word   `json:"words,omitempty"`
}

// Word is a timestamped word. Probability is nil when the provider
// doesn't score words.
type Word struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

// Words flattens the word timestamps of all segments in order.
func (r *Result) Words() []Word {
	var words []Word
	for _, seg := range r.Segments {
		words = append(words, seg.Words...)
	}
	return words
}

var (
	// ErrQueueFull is returned when the inference queue cannot take more work.
	ErrQueueFull = errors.New("inference queue full")
	// ErrStopped is returned after the engine has been stopped.
	ErrStopped = errors.New("inference engine stopped")
)

// APIError is a non-200 response from an upstream STT API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request could succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TranscriptionError wraps any failure to produce a Result: upstream API
// errors, unsupported audio, a full queue, cancellation.
type TranscriptionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe (provider=%s model=%s): %v", e.Provider, e.Model, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

func float64Ptr(v float64) *float64 { return &v }
