// Package watch enriches vCon files dropped into a directory.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/vcon-wtf/internal/metrics"
	"github.com/snarg/vcon-wtf/internal/mqttclient"
	"github.com/snarg/vcon-wtf/internal/vcon"
)

const debounce = 500 * time.Millisecond

// Enricher is the part of vcon.Enricher the watcher needs.
type Enricher interface {
	Enrich(ctx context.Context, doc *vcon.Document, opts vcon.Options) (*vcon.Document, vcon.Stats)
	EffectiveModel(opts vcon.Options) string
}

// Publisher receives one event per enriched file.
type Publisher interface {
	PublishEnrichment(ev mqttclient.Event)
}

type Options struct {
	WatchDir      string
	OutputDir     string
	Enricher      Enricher
	EnrichOptions vcon.Options
	Provider      string
	Publisher     Publisher // optional
	Backfill      bool
	Log           zerolog.Logger
}

// Status is reported on the health endpoint.
type Status struct {
	Status         string `json:"status"` // "starting", "backfilling", "watching", "stopped"
	WatchDir       string `json:"watch_dir"`
	OutputDir      string `json:"output_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
	FilesFailed    int64  `json:"files_failed"`
}

// FileWatcher monitors a directory for new vCon JSON files and writes an
// enriched copy of each to the output directory under the same name. Files
// whose output already exists are not processed again.
type FileWatcher struct {
	opts Options
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // string
}

func New(opts Options) *FileWatcher {
	fw := &FileWatcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start begins watching the directory. Existing files are backfilled in the
// background when enabled.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Only the top-level directory is watched; the output directory commonly
	// lives inside it.
	if err := w.Add(fw.opts.WatchDir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", fw.opts.WatchDir, err)
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(ctx)

	fw.log.Info().
		Str("watch_dir", fw.opts.WatchDir).
		Str("output_dir", fw.opts.OutputDir).
		Msg("file watcher initialized")

	fw.wg.Add(1)
	go fw.watchLoop()

	if fw.opts.Backfill {
		fw.wg.Add(1)
		go fw.backfill()
	} else {
		fw.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher, cancels pending work and waits for
// in-flight files to finish.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		if t.Stop() {
			fw.wg.Done()
		}
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.wg.Wait()
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() Status {
	s, _ := fw.status.Load().(string)
	return Status{
		Status:         s,
		WatchDir:       fw.opts.WatchDir,
		OutputDir:      fw.opts.OutputDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
		FilesFailed:    fw.filesFailed.Load(),
	}
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isCandidate(event.Name) {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// isCandidate accepts visible *.json files.
func isCandidate(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(strings.ToLower(base), ".json")
}

// scheduleProcess debounces file processing so the file is fully written
// before it is read.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()
	fw.scheduleLocked(path)
}

// scheduleLocked arms or re-arms the debounce timer for path. Caller holds
// debounceMu. A timer that already fired keeps its pending callback and is
// replaced by a new one, so every callback matches exactly one wg.Add.
func (fw *FileWatcher) scheduleLocked(path string) {
	if fw.ctx.Err() != nil {
		return
	}
	if t, ok := fw.debounceTimers[path]; ok && t.Stop() {
		t.Reset(debounce)
		return
	}

	fw.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(debounce, func() {
		defer fw.wg.Done()
		fw.debounceMu.Lock()
		if fw.debounceTimers[path] == t {
			delete(fw.debounceTimers, path)
		}
		fw.debounceMu.Unlock()

		if fw.ctx.Err() != nil {
			return
		}
		fw.processFile(fw.ctx, path)
	})
	fw.debounceTimers[path] = t
}

type fileResult string

const (
	resultProcessed fileResult = "processed"
	resultExists    fileResult = "exists"
	resultInvalid   fileResult = "invalid"
	resultFailed    fileResult = "failed"
)

// processFile enriches one vCon file. Files that are not valid vCons with
// audio are counted as skipped.
func (fw *FileWatcher) processFile(ctx context.Context, path string) fileResult {
	res := fw.enrichFile(ctx, path)
	metrics.WatcherFilesTotal.WithLabelValues(string(res)).Inc()
	switch res {
	case resultProcessed:
		fw.filesProcessed.Add(1)
	case resultFailed:
		fw.filesFailed.Add(1)
	default:
		fw.filesSkipped.Add(1)
	}
	return res
}

func (fw *FileWatcher) enrichFile(ctx context.Context, path string) fileResult {
	name := filepath.Base(path)
	log := fw.log.With().Str("file", name).Logger()
	outPath := filepath.Join(fw.opts.OutputDir, name)

	if _, err := os.Stat(outPath); err == nil {
		log.Debug().Msg("output exists, skipping")
		return resultExists
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read vCon file")
		return resultFailed
	}

	doc, err := vcon.Parse(data)
	if err != nil {
		log.Warn().Err(err).Msg("failed to parse vCon")
		return resultInvalid
	}
	if err := vcon.Validate(doc); err != nil {
		log.Info().Err(err).Msg("skipping vCon")
		return resultInvalid
	}

	enriched, stats := fw.opts.Enricher.Enrich(ctx, doc, fw.opts.EnrichOptions)
	metrics.ObserveDialogs(stats.Processed, stats.Skipped, stats.Failed)
	if ctx.Err() != nil {
		// Interrupted: leave no output so the file is retried on next start.
		log.Warn().Err(ctx.Err()).Msg("enrichment interrupted")
		return resultFailed
	}

	out, err := json.MarshalIndent(enriched, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode enriched vCon")
		return resultFailed
	}
	if err := writeFileAtomic(outPath, out); err != nil {
		log.Error().Err(err).Msg("failed to write enriched vCon")
		return resultFailed
	}

	if fw.opts.Publisher != nil {
		fw.opts.Publisher.PublishEnrichment(mqttclient.NewEvent(
			"watch:"+name, doc.UUID(), fw.opts.Provider, fw.opts.Enricher.EffectiveModel(fw.opts.EnrichOptions),
			stats.Processed, stats.Skipped, stats.Failed, stats.TotalTimeMS,
		))
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Str("output", outPath).
		Msg("vCon enriched")
	return resultProcessed
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// backfill processes files already present in the watch directory,
// oldest first.
func (fw *FileWatcher) backfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	entries, err := os.ReadDir(fw.opts.WatchDir)
	if err != nil {
		fw.log.Error().Err(err).Msg("backfill: read watch dir")
	}
	for _, e := range entries {
		if e.IsDir() || !isCandidate(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				fw.log.Warn().Err(err).Str("file", e.Name()).Msg("backfill: stat failed")
			}
			continue
		}
		files = append(files, fileEntry{path: filepath.Join(fw.opts.WatchDir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")

	processed := 0
	for _, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Int("processed", processed).Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(fw.ctx, f.path)
		processed++
	}

	fw.status.CompareAndSwap("backfilling", "watching")
	fw.log.Info().
		Int("processed", processed).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}
