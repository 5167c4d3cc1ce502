package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryConfigFrom builds the retry policy from the download configuration.
func RetryConfigFrom(cfg config.DownloadConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}
}

// RetryWithCheck executes a function with retry, allowing custom retry decision.
func RetryWithCheck[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func() (T, error),
	shouldRetry func(error) bool,
) (T, error) {
	var lastErr error
	var zero T

	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Check if we should retry this error
		if !shouldRetry(err) {
			break
		}

		// Don't wait after the last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

// IsRetryable reports whether another attempt could succeed. Missing and forbidden
// media and a canceled run are final.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAuth):
		return false
	case errors.Is(err, domain.ErrUnresolvableMedia):
		return false
	}
	return true
}
