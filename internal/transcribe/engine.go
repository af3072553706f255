package transcribe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/snarg/vcon-wtf/internal/audio"
)

// EngineStats reports the current state of the inference queue.
type EngineStats struct {
	Pending   int   `json:"pending"`
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// CompleteFunc is called after every upstream call (metrics hook).
type CompleteFunc func(provider string, elapsed time.Duration, err error)

// EngineOptions configures the inference engine.
type EngineOptions struct {
	Provider     Provider
	Models       *ModelRegistry
	DefaultModel string
	Preprocess   bool
	Workers      int
	QueueSize    int
	OnComplete   CompleteFunc
	Log          zerolog.Logger
}

// Engine dispatches transcription requests to a bounded pool of workers so
// slow inference never runs on a request goroutine's own budget and the
// upstream sees at most Workers concurrent calls.
type Engine struct {
	jobs     chan job
	provider Provider
	models   *ModelRegistry
	opts     EngineOptions
	log      zerolog.Logger
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	loaded    atomic.Value // string
	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type job struct {
	ctx  context.Context
	req  Request
	done chan jobResult
}

type jobResult struct {
	res *Result
	err error
}

// NewEngine creates an engine. Call Start before Transcribe.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Workers < 0 {
		opts.Workers = 0
	}
	models := opts.Models
	if models == nil {
		models = &ModelRegistry{aliases: map[string]string{}}
	}
	e := &Engine{
		jobs:     make(chan job, opts.QueueSize),
		provider: opts.Provider,
		models:   models,
		opts:     opts,
		log:      opts.Log,
	}
	e.loaded.Store("")
	return e
}

// Start launches the worker goroutines.
func (e *Engine) Start() {
	if e.opts.Preprocess {
		if CheckSox() {
			e.log.Info().Msg("audio preprocessing enabled (sox found)")
		} else {
			e.log.Warn().Msg("PREPROCESS_AUDIO=true but sox not found in PATH; preprocessing disabled")
		}
	}

	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.log.Info().
		Int("workers", e.opts.Workers).
		Int("queue_size", e.opts.QueueSize).
		Str("provider", e.provider.Name()).
		Msg("inference engine started")
}

// Stop rejects new work, lets queued jobs drain and waits for the workers.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info().
		Int64("completed", e.completed.Load()).
		Int64("failed", e.failed.Load()).
		Msg("inference engine stopped")
}

// Transcribe resolves the model, submits the request to the pool and waits
// for its result or ctx cancellation. Every failure is a *TranscriptionError.
func (e *Engine) Transcribe(ctx context.Context, req Request) (*Result, error) {
	model := e.ResolveModel(req.Model)
	req.Model = model
	fail := func(err error) error {
		return &TranscriptionError{Provider: e.provider.Name(), Model: model, Err: err}
	}

	if len(req.Audio) == 0 {
		return nil, fail(errors.New("empty audio"))
	}

	j := job{ctx: ctx, req: req, done: make(chan jobResult, 1)}
	if err := e.enqueue(j); err != nil {
		return nil, fail(err)
	}

	select {
	case r := <-j.done:
		if r.err != nil {
			return nil, fail(r.err)
		}
		r.res.Model = model
		r.res.Provider = e.provider.Name()
		e.loaded.Store(model)
		return r.res, nil
	case <-ctx.Done():
		return nil, fail(ctx.Err())
	}
}

func (e *Engine) enqueue(j job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return ErrStopped
	}
	select {
	case e.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Load warms up a model with a short silent clip so the upstream downloads
// and loads it before real traffic arrives.
func (e *Engine) Load(ctx context.Context, model string) error {
	_, err := e.Transcribe(ctx, Request{
		Audio:  audio.SilentWAV(16000, 100*time.Millisecond),
		Suffix: ".wav",
		Model:  model,
	})
	return err
}

// Preload calls Load until it succeeds, retrying with backoff for up to
// retryFor while the upstream comes up.
func (e *Engine) Preload(ctx context.Context, model string, retryFor time.Duration) error {
	resolved := e.ResolveModel(model)
	e.log.Info().Str("model", resolved).Msg("preloading model")
	start := time.Now()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = retryFor
	err := backoff.Retry(func() error {
		err := e.Load(ctx, model)
		if err != nil {
			e.log.Debug().Err(err).Msg("model warm-up failed")
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return err
	}

	e.log.Info().Str("model", resolved).Dur("elapsed", time.Since(start)).Msg("model loaded")
	return nil
}

// ResolveModel maps an alias to its model ID; empty means the default.
func (e *Engine) ResolveModel(name string) string {
	if name == "" {
		name = e.opts.DefaultModel
	}
	return e.models.Resolve(name)
}

// LoadedModel returns the last model that completed a transcription, or ""
// if none has yet.
func (e *Engine) LoadedModel() string {
	s, _ := e.loaded.Load().(string)
	return s
}

// IsLoaded reports whether any model has completed a transcription.
func (e *Engine) IsLoaded() bool { return e.LoadedModel() != "" }

// ProviderName returns the upstream provider name.
func (e *Engine) ProviderName() string { return e.provider.Name() }

// DefaultModel returns the resolved default model.
func (e *Engine) DefaultModel() string { return e.ResolveModel("") }

// Models returns the alias registry.
func (e *Engine) Models() *ModelRegistry { return e.models }

// Workers returns the number of worker goroutines.
func (e *Engine) Workers() int { return e.opts.Workers }

// Stats returns current queue statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Pending:   len(e.jobs),
		InFlight:  e.inFlight.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
	}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	log := e.log.With().Int("worker", id).Logger()

	for j := range e.jobs {
		// Caller gave up while the job sat in the queue.
		if err := j.ctx.Err(); err != nil {
			j.done <- jobResult{err: err}
			continue
		}

		e.inFlight.Add(1)
		start := time.Now()
		res, err := e.process(log, j)
		elapsed := time.Since(start)
		e.inFlight.Add(-1)

		if err != nil {
			e.failed.Add(1)
			log.Warn().Err(err).
				Str("model", j.req.Model).
				Int("bytes", len(j.req.Audio)).
				Msg("transcription failed")
		} else {
			e.completed.Add(1)
			log.Debug().
				Str("model", j.req.Model).
				Int("segments", len(res.Segments)).
				Dur("elapsed", elapsed).
				Msg("transcription complete")
		}
		if e.opts.OnComplete != nil {
			e.opts.OnComplete(e.provider.Name(), elapsed, err)
		}
		j.done <- jobResult{res: res, err: err}
	}
}

func (e *Engine) process(log zerolog.Logger, j job) (*Result, error) {
	req := j.req
	if e.opts.Preprocess {
		converted, suffix, err := Preprocess(j.ctx, req.Audio, req.Suffix)
		if err != nil {
			log.Warn().Err(err).Msg("preprocessing failed, using original audio")
		} else {
			req.Audio, req.Suffix = converted, suffix
		}
	}

	res, err := e.provider.Transcribe(j.ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("provider returned no result")
	}
	return res, nil
}
