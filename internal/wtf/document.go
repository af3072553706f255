// Package wtf projects transcription results into the World Transcription
// Format (WTF), a provider-neutral JSON transcript document.
package wtf

import "time"

// SchemaVersion identifies the document layout in vCon analysis entries.
const SchemaVersion = "wtf-1.0"

// Document is a complete WTF transcript.
type Document struct {
	Transcript Transcript  `json:"transcript"`
	Segments   []Segment   `json:"segments"`
	Words      []Word      `json:"words,omitempty"`
	Metadata   Metadata    `json:"metadata"`
	Quality    *Quality    `json:"quality,omitempty"`
	Extensions *Extensions `json:"extensions,omitempty"`
}

// Transcript is the document-level summary.
type Transcript struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Duration   float64 `json:"duration" jsonschema:"minimum=0"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

// Segment is a time-aligned span. Words holds the IDs of the words that
// fall inside it.
type Segment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start" jsonschema:"minimum=0"`
	End        float64 `json:"end" jsonschema:"minimum=0"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Words      []int   `json:"words,omitempty"`
}

type Word struct {
	ID            int     `json:"id"`
	Start         float64 `json:"start" jsonschema:"minimum=0"`
	End           float64 `json:"end" jsonschema:"minimum=0"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	IsPunctuation bool    `json:"is_punctuation"`
}

type Metadata struct {
	CreatedAt      time.Time         `json:"created_at"`
	ProcessedAt    time.Time         `json:"processed_at"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	ProcessingTime float64           `json:"processing_time" jsonschema:"minimum=0"`
	Audio          AudioInfo         `json:"audio"`
	Options        map[string]string `json:"options,omitempty"`
}

type AudioInfo struct {
	Duration float64 `json:"duration" jsonschema:"minimum=0"`
}

// Quality summarises how trustworthy the transcript is.
type Quality struct {
	AverageConfidence  float64  `json:"average_confidence" jsonschema:"minimum=0,maximum=1"`
	LowConfidenceWords int      `json:"low_confidence_words" jsonschema:"minimum=0"`
	ProcessingWarnings []string `json:"processing_warnings,omitempty"`
}

// Extensions carries provider-specific data that has no WTF equivalent.
type Extensions struct {
	Whisper *WhisperExtension `json:"whisper,omitempty"`
}

type WhisperExtension struct {
	LanguageProbability *float64         `json:"language_probability,omitempty"`
	Segments            []WhisperSegment `json:"segments,omitempty"`
}

// WhisperSegment keeps the decoder statistics for one segment.
type WhisperSegment struct {
	ID               int      `json:"id"`
	AvgLogprob       *float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb     *float64 `json:"no_speech_prob,omitempty"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}
