package wtf

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/snarg/vcon-wtf/internal/transcribe"
)

const (
	defaultLanguage = "en"

	// Words scored below this count as low confidence.
	lowConfidenceThreshold = 0.5

	// Whisper's own hallucination heuristics.
	noSpeechThreshold         = 0.6
	compressionRatioThreshold = 2.4
)

// ProjectionError reports a transcription result that cannot be expressed
// as a WTF document.
type ProjectionError struct {
	Reason string
}

func (e *ProjectionError) Error() string {
	return "wtf projection: " + e.Reason
}

func projectionErrorf(format string, args ...any) error {
	return &ProjectionError{Reason: fmt.Sprintf(format, args...)}
}

// Converter builds WTF documents from transcription results.
type Converter struct {
	provider string
	now      func() time.Time
}

// NewConverter creates a converter. provider is used when a result does not
// name its own.
func NewConverter(provider string) *Converter {
	return &Converter{provider: provider, now: time.Now}
}

// Project converts res into a WTF document. model is recorded in metadata
// and elapsed is the wall time the transcription took.
func (c *Converter) Project(res *transcribe.Result, model string, elapsed time.Duration) (*Document, error) {
	if res == nil {
		return nil, projectionErrorf("nil transcription result")
	}
	if err := checkTimes(res); err != nil {
		return nil, err
	}

	lang := res.Language
	if lang == "" {
		lang = defaultLanguage
	}
	provider := res.Provider
	if provider == "" {
		provider = c.provider
	}

	doc := &Document{
		Segments: make([]Segment, 0, len(res.Segments)),
	}

	var (
		warnings     []string
		lowWords     int
		wordConfSum  float64
		weightedConf float64
		totalWeight  float64
		segConfSum   float64
		lastEnd      float64
	)

	for i, seg := range res.Segments {
		conf, scored := segmentConfidence(seg)
		if !scored {
			warnings = append(warnings, fmt.Sprintf("segment %d has no confidence score", i))
		}
		if seg.NoSpeechProb != nil && *seg.NoSpeechProb > noSpeechThreshold {
			warnings = append(warnings, fmt.Sprintf("segment %d: high no-speech probability (%.2f)", i, *seg.NoSpeechProb))
		}
		if seg.CompressionRatio != nil && *seg.CompressionRatio > compressionRatioThreshold {
			warnings = append(warnings, fmt.Sprintf("segment %d: high compression ratio (%.2f), possible repetition", i, *seg.CompressionRatio))
		}

		out := Segment{
			ID:         i,
			Start:      seg.Start,
			End:        seg.End,
			Text:       strings.TrimSpace(seg.Text),
			Confidence: conf,
		}
		for _, w := range seg.Words {
			wc := conf
			if w.Probability != nil {
				wc = clamp01(*w.Probability)
			}
			if wc < lowConfidenceThreshold {
				lowWords++
			}
			wordConfSum += wc

			id := len(doc.Words)
			text := strings.TrimSpace(w.Word)
			doc.Words = append(doc.Words, Word{
				ID:            id,
				Start:         w.Start,
				End:           w.End,
				Text:          text,
				Confidence:    wc,
				IsPunctuation: isPunctuation(text),
			})
			out.Words = append(out.Words, id)
		}
		doc.Segments = append(doc.Segments, out)

		segConfSum += conf
		if d := seg.End - seg.Start; d > 0 {
			weightedConf += conf * d
			totalWeight += d
		}
		if seg.End > lastEnd {
			lastEnd = seg.End
		}
	}

	var transcriptConf float64
	switch {
	case totalWeight > 0:
		transcriptConf = weightedConf / totalWeight
	case len(doc.Segments) > 0:
		transcriptConf = segConfSum / float64(len(doc.Segments))
	}

	duration := res.Duration
	if duration == 0 {
		duration = lastEnd
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		warnings = append(warnings, "no speech detected")
	}

	doc.Transcript = Transcript{
		Text:       text,
		Language:   lang,
		Duration:   duration,
		Confidence: clamp01(transcriptConf),
	}

	avg := transcriptConf
	if len(doc.Words) > 0 {
		avg = wordConfSum / float64(len(doc.Words))
	}
	doc.Quality = &Quality{
		AverageConfidence:  clamp01(avg),
		LowConfidenceWords: lowWords,
		ProcessingWarnings: warnings,
	}

	now := c.now().UTC()
	doc.Metadata = Metadata{
		CreatedAt:      now,
		ProcessedAt:    now,
		Provider:       provider,
		Model:          model,
		ProcessingTime: elapsed.Seconds(),
		Audio:          AudioInfo{Duration: duration},
		Options:        map[string]string{"model": model},
	}
	if res.Language != "" {
		doc.Metadata.Options["language"] = res.Language
	}

	if ext := whisperExtension(res); ext != nil {
		doc.Extensions = &Extensions{Whisper: ext}
	}
	return doc, nil
}

// checkTimes rejects results whose timing cannot be represented.
func checkTimes(res *transcribe.Result) error {
	if bad(res.Duration) {
		return projectionErrorf("invalid duration %v", res.Duration)
	}
	for i, seg := range res.Segments {
		if bad(seg.Start) || bad(seg.End) || seg.End < seg.Start {
			return projectionErrorf("segment %d has invalid span %v..%v", i, seg.Start, seg.End)
		}
		for j, w := range seg.Words {
			if bad(w.Start) || bad(w.End) || w.End < w.Start {
				return projectionErrorf("segment %d word %d has invalid span %v..%v", i, j, w.Start, w.End)
			}
		}
	}
	return nil
}

func bad(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0) || f < 0
}

// segmentConfidence derives a [0, 1] score from avg_logprob, falling back to
// the mean word probability. scored is false when neither is available.
func segmentConfidence(seg transcribe.Segment) (conf float64, scored bool) {
	if seg.AvgLogprob != nil && !math.IsNaN(*seg.AvgLogprob) {
		return clamp01(math.Exp(*seg.AvgLogprob)), true
	}
	var sum float64
	var n int
	for _, w := range seg.Words {
		if w.Probability != nil {
			sum += clamp01(*w.Probability)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func whisperExtension(res *transcribe.Result) *WhisperExtension {
	ext := &WhisperExtension{LanguageProbability: res.LanguageProbability}
	for i, seg := range res.Segments {
		if seg.AvgLogprob == nil && seg.NoSpeechProb == nil && seg.CompressionRatio == nil && seg.Temperature == nil {
			continue
		}
		ext.Segments = append(ext.Segments, WhisperSegment{
			ID:               i,
			AvgLogprob:       seg.AvgLogprob,
			NoSpeechProb:     seg.NoSpeechProb,
			CompressionRatio: seg.CompressionRatio,
			Temperature:      seg.Temperature,
		})
	}
	if ext.LanguageProbability == nil && len(ext.Segments) == 0 {
		return nil
	}
	return ext
}

func isPunctuation(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
