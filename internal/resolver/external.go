package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// Stream is one downloadable rendition offered by an external host.
type Stream struct {
	URL      string
	AudioURL string
	Height   int
	Kind     domain.MediaKind
	Ext      string
}

// Extractor lists the streams behind a page on a third-party host, best first.
type Extractor interface {
	Name() string
	Handles(host string) bool
	Extract(ctx context.Context, pageURL string) ([]Stream, error)
}

// ExternalStrategy delegates third-party hosts to the extractors registered for them.
type ExternalStrategy struct {
	extractors []Extractor
	logger     *slog.Logger
}

func NewExternalStrategy(logger *slog.Logger, extractors ...Extractor) *ExternalStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalStrategy{extractors: extractors, logger: logger}
}

func (s *ExternalStrategy) Name() string { return "external" }

func (s *ExternalStrategy) Match(p domain.Post) bool {
	host := mediaurl.Host(mediaurl.Normalize(p.URL))
	for _, e := range s.extractors {
		if e.Handles(host) {
			return true
		}
	}
	return false
}

func (s *ExternalStrategy) Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error) {
	u := mediaurl.Normalize(p.URL)
	host := mediaurl.Host(u)

	var errs []error
	for _, e := range s.extractors {
		if !e.Handles(host) {
			continue
		}
		streams, err := e.Extract(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ResolvedMedia{}, ctx.Err()
			}
			s.logger.Debug("extractor failed", "post_id", p.ID, "extractor", e.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if len(streams) == 0 {
			errs = append(errs, fmt.Errorf("%s: no streams", e.Name()))
			continue
		}
		for _, st := range streams {
			if !hint.Accepts(st.Kind) {
				continue
			}
			return domain.ResolvedMedia{
				URL:        st.URL,
				AudioURL:   st.AudioURL,
				NeedsMerge: st.AudioURL != "",
				Kind:       st.Kind,
				Ext:        st.Ext,
				Strategy:   s.Name() + ":" + e.Name(),
			}, nil
		}
		errs = append(errs, fmt.Errorf("%s: no %s stream: %w", e.Name(), hint, domain.ErrMediaTypeMismatch))
	}
	if len(errs) == 0 {
		return domain.ResolvedMedia{}, fmt.Errorf("no extractor for %s", host)
	}
	return domain.ResolvedMedia{}, errors.Join(errs...)
}
