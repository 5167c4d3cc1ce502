package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// StatusError is a non-success HTTP status from a media host.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Unwrap maps the status onto the shared sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusNotFound, http.StatusGone:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuth
	}
	return nil
}

// HTTPDownloader fetches media over plain HTTP. Every call is a single attempt.
type HTTPDownloader struct {
	// client is used for short requests (Probe) with an overall timeout
	client *http.Client
	// streamClient is used for downloads, bounded per attempt by context
	streamClient *http.Client
	userAgent    string
	cfg          config.DownloadConfig
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig) *HTTPDownloader {
	streamTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout: cfg.ProbeTimeout,
		},
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		userAgent: cfg.UserAgent,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for download progress reporting.
func (d *HTTPDownloader) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

func (d *HTTPDownloader) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "image/*,video/*;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	host := mediaurl.Host(req.URL.String())
	if mediaurl.HostMatches(host, "reddit.com") || mediaurl.HostMatches(host, "redd.it") {
		// Skips the NSFW interstitial.
		req.Header.Set("Cookie", "over18=1")
	}
}

// Fetch streams url into dest, which must not exist yet. A partial file is removed on error.
// The attempt is bounded by the configured download timeout.
func (d *HTTPDownloader) Fetch(ctx context.Context, url, dest string) (int64, error) {
	attemptCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	n, err := d.fetchOnce(attemptCtx, url, dest)
	if err == nil {
		return n, nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return 0, fmt.Errorf("%w after %v: %s", domain.ErrDownloadTimeout, d.cfg.Timeout, url)
	}
	return 0, err
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	d.setHeaders(req)

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	body := newProgressReader(resp.Body, resp.ContentLength, d.logger, url)
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("write body: %w", copyErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		os.Remove(dest)
		return 0, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	return n, nil
}

// Probe checks URL accessibility without downloading full content. Hosts that refuse
// HEAD are retried with a one-byte ranged GET.
func (d *HTTPDownloader) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	result, err := d.probe(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	if result.Accessible {
		return result, nil
	}
	switch result.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return result, nil
	}
	return d.probe(ctx, http.MethodGet, url)
}

func (d *HTTPDownloader) probe(ctx context.Context, method, url string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	d.setHeaders(req)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &ProbeResult{
			Accessible: false,
			Error:      err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	result := &ProbeResult{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		StatusCode:    resp.StatusCode,
		Accessible:    resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent,
	}

	if !result.Accessible {
		result.Error = fmt.Sprintf("status code %d", resp.StatusCode)
	}

	return result, nil
}
