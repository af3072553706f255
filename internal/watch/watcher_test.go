package watch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/audio"
	"github.com/snarg/vcon-wtf/internal/mqttclient"
	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/vcon"
	"github.com/snarg/vcon-wtf/internal/wtf"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &transcribe.Result{Text: "hello", Language: "en", Duration: 0.1, Model: req.Model}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mqttclient.Event
}

func (p *recordingPublisher) PublishEnrichment(ev mqttclient.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newTestWatcher(t *testing.T, pub Publisher) (*FileWatcher, string, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "enriched")
	enricher := vcon.NewEnricher(vcon.EnricherOptions{
		Transcriber:  stubTranscriber{},
		Projector:    wtf.NewConverter("stub"),
		Vendor:       "stub",
		DefaultModel: "base",
		Log:          zerolog.Nop(),
	})
	fw := New(Options{
		WatchDir:      dir,
		OutputDir:     out,
		Enricher:      enricher,
		EnrichOptions: vcon.Options{WordTimestamps: true},
		Provider:      "stub",
		Publisher:     pub,
		Log:           zerolog.Nop(),
	})
	return fw, dir, out
}

func vconJSON(uuid string) []byte {
	body := base64.RawURLEncoding.EncodeToString(audio.SilentWAV(16000, 100*time.Millisecond))
	return []byte(`{"uuid": "` + uuid + `", "dialog": [
		{"type": "recording", "mediatype": "audio/wav", "encoding": "base64url", "body": "` + body + `"}
	]}`)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForFile(t *testing.T, path string) []byte {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
	return nil
}

func TestProcessFile(t *testing.T) {
	pub := &recordingPublisher{}
	fw, dir, out := newTestWatcher(t, pub)
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "call.json")
	writeFile(t, src, vconJSON("u-1"))

	if got := fw.processFile(context.Background(), src); got != resultProcessed {
		t.Fatalf("first pass = %q, want processed", got)
	}

	data, err := os.ReadFile(filepath.Join(out, "call.json"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	var doc struct {
		UUID     string            `json:"uuid"`
		Analysis []json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if doc.UUID != "u-1" || len(doc.Analysis) != 1 {
		t.Errorf("output uuid=%q analysis=%d", doc.UUID, len(doc.Analysis))
	}

	if pub.count() != 1 {
		t.Fatalf("events = %d, want 1", pub.count())
	}
	ev := pub.events[0]
	if ev.Source != "watch:call.json" || ev.VconUUID != "u-1" || ev.Processed != 1 || ev.Model != "base" {
		t.Errorf("event = %+v", ev)
	}

	// Already enriched: not processed again.
	if got := fw.processFile(context.Background(), src); got != resultExists {
		t.Errorf("second pass = %q, want exists", got)
	}
	st := fw.Status()
	if st.FilesProcessed != 1 || st.FilesSkipped != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestProcessFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"dialog": [`},
		{"no dialog", `{"uuid": "x"}`},
		{"no audio", `{"dialog": [{"type": "text", "body": "hi"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw, dir, out := newTestWatcher(t, nil)
			src := filepath.Join(dir, "bad.json")
			writeFile(t, src, []byte(tt.data))

			if got := fw.processFile(context.Background(), src); got != resultInvalid {
				t.Errorf("result = %q, want invalid", got)
			}
			if _, err := os.Stat(filepath.Join(out, "bad.json")); err == nil {
				t.Error("invalid input must not produce output")
			}
		})
	}
}

func TestProcessFile_CancelledLeavesNoOutput(t *testing.T) {
	fw, dir, out := newTestWatcher(t, nil)
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "call.json")
	writeFile(t, src, vconJSON("u"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := fw.processFile(ctx, src); got != resultFailed {
		t.Errorf("result = %q, want failed", got)
	}
	if _, err := os.Stat(filepath.Join(out, "call.json")); err == nil {
		t.Error("interrupted run must not write output")
	}
}

func TestFileWatcher_BackfillAndWatch(t *testing.T) {
	fw, dir, out := newTestWatcher(t, nil)
	fw.opts.Backfill = true

	writeFile(t, filepath.Join(dir, "existing.json"), vconJSON("old"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignore me"))

	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	waitForFile(t, filepath.Join(out, "existing.json"))

	writeFile(t, filepath.Join(dir, "new.json"), vconJSON("new"))
	waitForFile(t, filepath.Join(out, "new.json"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := fw.Status(); s.Status == "watching" && s.FilesProcessed == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s := fw.Status(); s.Status != "watching" || s.FilesProcessed != 2 {
		t.Errorf("status = %+v", s)
	}
	if _, err := os.Stat(filepath.Join(out, "notes.txt")); err == nil {
		t.Error("non-JSON file was processed")
	}
}

func TestScheduleProcess_RearmAfterFire(t *testing.T) {
	fw, dir, out := newTestWatcher(t, nil)
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	fw.ctx, fw.cancel = context.WithCancel(context.Background())
	defer fw.cancel()

	path := filepath.Join(dir, "a.json")
	writeFile(t, path, vconJSON("a"))
	fw.scheduleProcess(path)

	// Hold the lock across the deadline so the callback is parked on it,
	// then schedule the same path again.
	fw.debounceMu.Lock()
	time.Sleep(debounce + 200*time.Millisecond)
	fw.scheduleLocked(path)
	fw.debounceMu.Unlock()

	done := make(chan struct{})
	go func() {
		fw.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pending callbacks never finished")
	}

	s := fw.Status()
	if s.FilesProcessed != 1 || s.FilesSkipped != 1 || s.FilesFailed != 0 {
		t.Errorf("status = %+v, want 1 processed and 1 skipped", s)
	}
	fw.debounceMu.Lock()
	n := len(fw.debounceTimers)
	fw.debounceMu.Unlock()
	if n != 0 {
		t.Errorf("%d debounce timers left", n)
	}
	waitForFile(t, filepath.Join(out, "a.json"))
}

func TestIsCandidate(t *testing.T) {
	tests := map[string]bool{
		"/x/call.json":          true,
		"/x/CALL.JSON":          true,
		"/x/.call.json.tmp-123": false,
		"/x/.hidden.json":       false,
		"/x/audio.wav":          false,
	}
	for path, want := range tests {
		if got := isCandidate(path); got != want {
			t.Errorf("isCandidate(%q) = %v, want %v", path, got, want)
		}
	}
}
