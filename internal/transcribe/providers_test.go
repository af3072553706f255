package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
)

const verboseBody = `{
	"task": "transcribe",
	"language": "en",
	"duration": 3.0,
	"text": " Hello world. Goodbye.",
	"segments": [
		{"id": 7, "start": 0.0, "end": 1.5, "text": " Hello world.", "avg_logprob": -0.2},
		{"id": 8, "start": 1.5, "end": 3.0, "text": " Goodbye.", "avg_logprob": -0.4}
	],
	"words": [
		{"word": "Hello", "start": 0.0, "end": 0.6},
		{"word": "world.", "start": 0.7, "end": 1.4},
		{"word": "Goodbye.", "start": 1.6, "end": 2.8}
	]
}`

func TestWhisperClient_Transcribe(t *testing.T) {
	var form map[string][]string
	var filename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		form = r.MultipartForm.Value
		_, fh, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			filename = fh.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, verboseBody)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "default-model", 5*time.Second)
	res, err := wc.Transcribe(context.Background(), Request{
		Audio: []byte("audio"), Suffix: ".mp3", Model: "m1", Language: "en", WordTimestamps: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if filename != "audio.mp3" {
		t.Errorf("filename = %q, want audio.mp3", filename)
	}
	if got := form["model"]; len(got) != 1 || got[0] != "m1" {
		t.Errorf("model field = %v", got)
	}
	if got := form["response_format"]; len(got) != 1 || got[0] != "verbose_json" {
		t.Errorf("response_format = %v", got)
	}
	if got := form["timestamp_granularities[]"]; len(got) != 2 {
		t.Errorf("timestamp_granularities = %v, want segment and word", got)
	}

	if res.Text != "Hello world. Goodbye." {
		t.Errorf("Text = %q", res.Text)
	}
	if len(res.Segments) != 2 || res.Segments[0].ID != 0 || res.Segments[1].ID != 1 {
		t.Fatalf("segments not renumbered: %+v", res.Segments)
	}
	if len(res.Segments[0].Words) != 2 || len(res.Segments[1].Words) != 1 {
		t.Errorf("words not attached by time: %d/%d", len(res.Segments[0].Words), len(res.Segments[1].Words))
	}
}

func TestWhisperClient_NoLanguageField(t *testing.T) {
	var hasLanguage bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		_, hasLanguage = r.MultipartForm.Value["language"]
		io.WriteString(w, `{"text": "x", "duration": 1}`)
	}))
	defer srv.Close()

	wc := NewWhisperClient(srv.URL, "", 5*time.Second)
	res, err := wc.Transcribe(context.Background(), Request{Audio: []byte("a")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if hasLanguage {
		t.Error("language field sent when unset")
	}
	if len(res.Segments) != 1 || res.Segments[0].End != 1 {
		t.Errorf("expected one synthesized segment, got %+v", res.Segments)
	}
}

func TestWhisperClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantAPI   bool
		temporary bool
	}{
		{"server error", 503, "overloaded", true, true},
		{"rate limited", 429, "slow down", true, true},
		{"bad request", 400, "bad audio", true, false},
		{"malformed body", 200, "not json", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewWhisperClient(srv.URL, "", 5*time.Second).Transcribe(context.Background(), Request{Audio: []byte("a")})
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) != tt.wantAPI {
				t.Fatalf("APIError = %v, want %v (err %v)", apiErr != nil, tt.wantAPI, err)
			}
			if tt.wantAPI && apiErr.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", apiErr.Temporary(), tt.temporary)
			}
			if !tt.wantAPI && isRetryable(context.Background(), err) {
				t.Error("decode errors should not be retryable")
			}
		})
	}
}

func TestDeepInfraClient_Transcribe(t *testing.T) {
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("missing audio part: %v", err)
		}
		io.WriteString(w, `{"text": "one two three", "language": "en", "duration": 3,
			"segments": [{"id": 0, "text": "one two three", "start": 0, "end": 3}]}`)
	}))
	defer srv.Close()

	di := NewDeepInfraClient("key", "openai/whisper-large-v3", 5*time.Second)
	di.baseURL = srv.URL + "/v1/inference/"

	res, err := di.Transcribe(context.Background(), Request{Audio: []byte("a"), WordTimestamps: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if path != "/v1/inference/openai/whisper-large-v3" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer key" {
		t.Errorf("Authorization = %q", auth)
	}
	words := res.Words()
	if len(words) != 3 {
		t.Fatalf("words = %d, want 3 interpolated", len(words))
	}
	if words[1].Start != 1 || words[1].End != 2 {
		t.Errorf("word[1] = %+v, want 1..2", words[1])
	}
}

func TestElevenLabsClient_Transcribe(t *testing.T) {
	var form map[string][]string
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("xi-api-key")
		r.ParseMultipartForm(1 << 20)
		form = r.MultipartForm.Value
		io.WriteString(w, `{"language_code": "en", "language_probability": 0.98, "text": "Hi there. Bye.",
			"words": [
				{"text": "Hi", "type": "word", "start": 0.0, "end": 0.3, "logprob": 0},
				{"text": " ", "type": "spacing", "start": 0.3, "end": 0.4},
				{"text": "there.", "type": "word", "start": 0.4, "end": 0.9},
				{"text": "Bye.", "type": "word", "start": 1.2, "end": 1.6}
			]}`)
	}))
	defer srv.Close()

	el := NewElevenLabsClient("xi", "scribe_v1", "vCon, WTF", 5*time.Second)
	el.endpoint = srv.URL

	res, err := el.Transcribe(context.Background(), Request{Audio: []byte("a"), WordTimestamps: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if apiKey != "xi" {
		t.Errorf("xi-api-key = %q", apiKey)
	}
	if got := form["keyterms"]; len(got) != 1 || got[0] != `[{"text":"vCon"},{"text":"WTF"}]` {
		t.Errorf("keyterms = %v", got)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Text != "Hi there." {
		t.Errorf("segment[0].Text = %q", res.Segments[0].Text)
	}
	if res.Duration != 1.6 {
		t.Errorf("Duration = %v, want 1.6", res.Duration)
	}
	w := res.Segments[0].Words[0]
	if w.Probability == nil || *w.Probability != 1 {
		t.Errorf("word probability = %v, want 1", w.Probability)
	}
	if res.LanguageProbability == nil || *res.LanguageProbability != 0.98 {
		t.Errorf("LanguageProbability = %v", res.LanguageProbability)
	}
}

func TestOpenAIClient_Transcribe(t *testing.T) {
	var path string
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		r.ParseMultipartForm(1 << 20)
		form = r.MultipartForm.Value
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, verboseBody)
	}))
	defer srv.Close()

	oc := NewOpenAIClient("sk-test", srv.URL+"/v1/", "", option.WithMaxRetries(0))
	if oc.Model() != "whisper-1" {
		t.Errorf("Model = %q, want whisper-1", oc.Model())
	}

	res, err := oc.Transcribe(context.Background(), Request{Audio: []byte("a"), Suffix: ".wav", WordTimestamps: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", path)
	}
	if got := form["response_format"]; len(got) != 1 || got[0] != "verbose_json" {
		t.Errorf("response_format = %v", got)
	}
	if len(res.Segments) != 2 || len(res.Words()) != 3 {
		t.Errorf("segments=%d words=%d", len(res.Segments), len(res.Words()))
	}
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	oc := NewOpenAIClient("sk-bad", srv.URL+"/v1/", "whisper-1", option.WithMaxRetries(0))
	_, err := oc.Transcribe(context.Background(), Request{Audio: []byte("a")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("err = %v, want APIError 401", err)
	}
	if apiErr.Temporary() {
		t.Error("401 should not be temporary")
	}
}
