package resolver

import (
	"log/slog"
	"net/http"

	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// NewDefault assembles the standard chain: native video, gallery, direct file, then
// third-party hosts.
func NewDefault(cfg *config.Config, prober Prober, lookup domain.GalleryLookup, logger *slog.Logger) *Resolver {
	client := &http.Client{Timeout: cfg.Download.ProbeTimeout}
	external := NewExternalStrategy(logger,
		NewStreamableExtractor(client, ""),
		NewYtDLPExtractor(cfg.Media.YtDLPPath, cfg.Media.ExtractTimeout),
		NewOpenGraphExtractor(client, cfg.Download.UserAgent, "imgur.com"),
	)
	return New(logger,
		NewRedditVideoStrategy(prober),
		NewGalleryStrategy(lookup, prober, logger),
		NewDirectStrategy(prober),
		external,
	)
}
