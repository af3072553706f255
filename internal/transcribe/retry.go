package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryingProvider retries transient upstream failures (network errors,
// 429, 5xx) with exponential backoff. Client errors are not retried.
type RetryingProvider struct {
	Provider
	maxElapsed time.Duration
	log        zerolog.Logger
}

// WithRetry wraps p. A zero maxElapsed disables retries and returns p as is.
func WithRetry(p Provider, maxElapsed time.Duration, log zerolog.Logger) Provider {
	if maxElapsed <= 0 {
		return p
	}
	return &RetryingProvider{Provider: p, maxElapsed: maxElapsed, log: log}
}

// Transcribe calls the wrapped provider until it succeeds, fails
// permanently, or the retry budget runs out.
func (rp *RetryingProvider) Transcribe(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	attempt := 0

	op := func() error {
		attempt++
		res, err := rp.Provider.Transcribe(ctx, req)
		if err == nil {
			result = res
			return nil
		}
		if !isRetryable(ctx, err) {
			return backoff.Permanent(err)
		}
		rp.log.Debug().Err(err).Int("attempt", attempt).Str("provider", rp.Name()).Msg("transient upstream error, retrying")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = rp.maxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Malformed responses won't get better on retry.
	var decodeErr *responseDecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return true
}
