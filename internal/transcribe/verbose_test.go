package transcribe

import (
	"math"
	"testing"
)

func TestParseVerbose_NestedWordsKept(t *testing.T) {
	body := `{"text": "a b", "duration": 2, "segments": [
		{"start": 0, "end": 2, "text": "a b", "words": [
			{"word": "a", "start": 0, "end": 1, "probability": 0.9},
			{"word": "b", "start": 1, "end": 2, "probability": 0.8}
		]}
	], "words": [{"word": "ignored", "start": 0, "end": 2}]}`

	res, err := parseVerbose([]byte(body))
	if err != nil {
		t.Fatalf("parseVerbose: %v", err)
	}
	words := res.Words()
	if len(words) != 2 || words[0].Word != "a" {
		t.Errorf("words = %+v, want nested words only", words)
	}
	if words[0].Probability == nil || *words[0].Probability != 0.9 {
		t.Errorf("probability not decoded: %v", words[0].Probability)
	}
}

func TestParseVerbose_EmptyText(t *testing.T) {
	res, err := parseVerbose([]byte(`{"text": "  ", "duration": 1}`))
	if err != nil {
		t.Fatalf("parseVerbose: %v", err)
	}
	if res.Text != "" || len(res.Segments) != 0 {
		t.Errorf("got %+v, want empty result", res)
	}
}

func TestSegmentsFromWords(t *testing.T) {
	words := []Word{
		{Word: "Is", Start: 0, End: 0.2},
		{Word: "it?", Start: 0.2, End: 0.5},
		{Word: "Yes!", Start: 0.8, End: 1.0},
		{Word: "maybe", Start: 1.2, End: 1.5},
	}
	segs := segmentsFromWords(words)
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want 3", len(segs))
	}
	want := []string{"Is it?", "Yes!", "maybe"}
	for i, s := range segs {
		if s.ID != i || s.Text != want[i] {
			t.Errorf("segment %d = {%d %q}, want %q", i, s.ID, s.Text, want[i])
		}
	}
	if segs[0].Start != 0 || segs[0].End != 0.5 {
		t.Errorf("segment 0 span = %v..%v", segs[0].Start, segs[0].End)
	}
}

func TestLogprobToProbability(t *testing.T) {
	if got := logprobToProbability(0); got != 1 {
		t.Errorf("logprob 0 = %v, want 1", got)
	}
	if got := logprobToProbability(0.5); got != 1 {
		t.Errorf("positive logprob = %v, want capped at 1", got)
	}
	if got := logprobToProbability(-1); math.Abs(got-math.Exp(-1)) > 1e-12 {
		t.Errorf("logprob -1 = %v", got)
	}
}
