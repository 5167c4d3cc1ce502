package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// GalleryStrategy picks the first usable item of a native gallery. Broken items are
// skipped, never fatal.
type GalleryStrategy struct {
	lookup domain.GalleryLookup
	prober Prober
	logger *slog.Logger
}

// NewGalleryStrategy creates the strategy. lookup may be nil when listings always carry items.
func NewGalleryStrategy(lookup domain.GalleryLookup, p Prober, logger *slog.Logger) *GalleryStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &GalleryStrategy{lookup: lookup, prober: p, logger: logger}
}

func (s *GalleryStrategy) Name() string { return "gallery" }

func (s *GalleryStrategy) Match(p domain.Post) bool {
	return p.IsGallery || mediaurl.IsGallery(p.URL)
}

func (s *GalleryStrategy) Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error) {
	items := p.Gallery
	if len(items) == 0 {
		items = s.lookupItems(ctx, p)
	}
	if len(items) == 0 {
		return domain.ResolvedMedia{}, errors.New("gallery has no items")
	}

	wrongKind := 0
	for i, it := range items {
		if !it.Valid() {
			s.logger.Debug("skipping gallery item", "post_id", p.ID, "index", i+1, "status", it.Status)
			continue
		}
		if !hint.Accepts(it.Kind) {
			wrongKind++
			continue
		}
		if !accessible(ctx, s.prober, it.URL) {
			s.logger.Debug("gallery item not accessible", "post_id", p.ID, "index", i+1)
			continue
		}
		return domain.ResolvedMedia{
			URL:          it.URL,
			Kind:         it.Kind,
			Ext:          it.Ext,
			GalleryIndex: i + 1,
		}, nil
	}
	if wrongKind > 0 {
		return domain.ResolvedMedia{}, fmt.Errorf("no %s item in gallery: %w", hint, domain.ErrMediaTypeMismatch)
	}
	return domain.ResolvedMedia{}, fmt.Errorf("none of %d gallery items accessible", len(items))
}

// lookupItems asks the platform for items, trying the post itself then its crosspost parent.
func (s *GalleryStrategy) lookupItems(ctx context.Context, p domain.Post) []domain.GalleryItem {
	if s.lookup == nil {
		return nil
	}
	ids := []string{p.ID}
	if id := mediaurl.GalleryID(p.URL); id != "" && id != p.ID {
		ids = append(ids, id)
	}
	if p.CrosspostParent != "" {
		ids = append(ids, p.CrosspostParent)
	}
	for _, id := range ids {
		items, err := s.lookup.Gallery(ctx, id)
		if err != nil {
			s.logger.Debug("gallery lookup failed", "post_id", p.ID, "lookup_id", id, "error", err)
			continue
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}
