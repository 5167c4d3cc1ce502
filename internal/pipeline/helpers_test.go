package pipeline

import (
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/downloader"
	"github.com/qepting91/reddit-media-dl/internal/request"
)

func retryFast() downloader.RetryConfig {
	return downloader.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2}
}

func parseTokens(tokens ...string) (domain.FetchRequest, error) {
	return request.ParseCommand(tokens)
}
