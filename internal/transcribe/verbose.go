package transcribe

import (
	"encoding/json"
	"math"
	"strings"
)

// verboseResponse is the OpenAI verbose_json transcription shape. Servers
// differ on where word timestamps live: OpenAI returns a top-level words
// array, whisper.cpp/mlx style servers nest them in each segment.
type verboseResponse struct {
	Task     string    `json:"task"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Words    []Word    `json:"words"`
}

// responseDecodeError marks a 200 response whose body could not be parsed.
type responseDecodeError struct {
	Err error
}

func (e *responseDecodeError) Error() string { return "decode response: " + e.Err.Error() }
func (e *responseDecodeError) Unwrap() error { return e.Err }

// parseVerbose decodes a verbose_json body into a Result with words nested
// under their segments.
func parseVerbose(body []byte) (*Result, error) {
	var vr verboseResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, &responseDecodeError{Err: err}
	}

	segments := vr.Segments
	if len(segments) == 0 && strings.TrimSpace(vr.Text) != "" {
		segments = []Segment{{Start: 0, End: vr.Duration, Text: vr.Text}}
	}
	for i := range segments {
		segments[i].ID = i
	}

	if len(vr.Words) > 0 && !hasNestedWords(segments) {
		attachWords(segments, vr.Words)
	}

	return &Result{
		Text:     strings.TrimSpace(vr.Text),
		Language: vr.Language,
		Duration: vr.Duration,
		Segments: segments,
	}, nil
}

func hasNestedWords(segments []Segment) bool {
	for _, s := range segments {
		if len(s.Words) > 0 {
			return true
		}
	}
	return false
}

// attachWords distributes time-ordered words into the segment whose span
// contains the word's start. Words past the last segment stay with it.
func attachWords(segments []Segment, words []Word) {
	if len(segments) == 0 {
		return
	}
	si := 0
	for _, w := range words {
		for si < len(segments)-1 && w.Start >= segments[si].End {
			si++
		}
		segments[si].Words = append(segments[si].Words, w)
	}
}

// segmentsFromWords groups a flat word list into sentence-like segments,
// splitting after terminal punctuation. Used for providers that only
// return words.
func segmentsFromWords(words []Word) []Segment {
	var segments []Segment
	var cur []Word
	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		for i, w := range cur {
			texts[i] = strings.TrimSpace(w.Word)
		}
		segments = append(segments, Segment{
			ID:    len(segments),
			Start: cur[0].Start,
			End:   cur[len(cur)-1].End,
			Text:  strings.Join(texts, " "),
			Words: cur,
		})
		cur = nil
	}
	for _, w := range words {
		cur = append(cur, w)
		if strings.HasSuffix(w.Word, ".") || strings.HasSuffix(w.Word, "?") || strings.HasSuffix(w.Word, "!") {
			flush()
		}
	}
	flush()
	return segments
}

// logprobToProbability converts a natural-log probability to [0, 1].
func logprobToProbability(lp float64) float64 {
	p := math.Exp(lp)
	if p > 1 {
		return 1
	}
	return p
}
