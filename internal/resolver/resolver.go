// Package resolver turns a post into a concrete, fetchable media location.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/downloader"
)

// Prober checks whether a URL is currently fetchable.
type Prober interface {
	Probe(ctx context.Context, url string) (*downloader.ProbeResult, error)
}

// Strategy resolves the posts it matches.
type Strategy interface {
	Name() string
	Match(p domain.Post) bool
	Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error)
}

// Resolver runs an ordered strategy chain. Strategies are tried in order; the first
// matching strategy that succeeds wins.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

// New creates a resolver over strategies.
func New(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve finds the media of p. Every failure wraps domain.ErrUnresolvableMedia; a kind
// that does not satisfy hint additionally wraps domain.ErrMediaTypeMismatch.
func (r *Resolver) Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error) {
	var lastErr error
	matched := false
	for _, s := range r.strategies {
		if !s.Match(p) {
			continue
		}
		matched = true

		m, err := s.Resolve(ctx, p, hint)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ResolvedMedia{}, ctx.Err()
			}
			r.logger.Debug("strategy failed", "post_id", p.ID, "strategy", s.Name(), "error", err)
			lastErr = fmt.Errorf("%s: %w", s.Name(), err)
			if errors.Is(err, domain.ErrMediaTypeMismatch) {
				break
			}
			continue
		}

		if !hint.Accepts(m.Kind) {
			lastErr = fmt.Errorf("%s: resolved %s, want %s: %w", s.Name(), m.Kind, hint, domain.ErrMediaTypeMismatch)
			break
		}
		m.PostID = p.ID
		if m.Strategy == "" {
			m.Strategy = s.Name()
		}
		return m, nil
	}

	if !matched {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: no strategy for %q", domain.ErrUnresolvableMedia, p.URL)
	}
	if errors.Is(lastErr, domain.ErrUnresolvableMedia) {
		return domain.ResolvedMedia{}, lastErr
	}
	return domain.ResolvedMedia{}, fmt.Errorf("%w: %w", domain.ErrUnresolvableMedia, lastErr)
}

// accessible probes url and reports whether it can be fetched.
func accessible(ctx context.Context, p Prober, url string) bool {
	res, err := p.Probe(ctx, url)
	return err == nil && res != nil && res.Accessible
}

// SelectBest returns the first accessible URL. urls are ordered best first.
func SelectBest(ctx context.Context, p Prober, urls []string) (string, error) {
	for _, u := range urls {
		if accessible(ctx, p, u) {
			return u, nil
		}
	}
	return "", fmt.Errorf("none of %d candidates accessible: %w", len(urls), domain.ErrUnresolvableMedia)
}
