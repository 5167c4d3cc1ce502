package resolver

import (
	"context"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// DirectStrategy returns links that already point at a media file.
type DirectStrategy struct {
	prober Prober
}

// NewDirectStrategy creates the strategy. The prober is only used to learn the type of
// extension-less links and may be nil.
func NewDirectStrategy(p Prober) *DirectStrategy {
	return &DirectStrategy{prober: p}
}

func (s *DirectStrategy) Name() string { return "direct" }

func (s *DirectStrategy) Match(p domain.Post) bool {
	return mediaurl.IsDirect(mediaurl.Normalize(p.URL))
}

func (s *DirectStrategy) Resolve(ctx context.Context, p domain.Post, _ domain.MediaType) (domain.ResolvedMedia, error) {
	u := mediaurl.Normalize(p.URL)
	ext := mediaurl.Ext(u)
	kind := mediaurl.KindForExt(ext)

	if kind == domain.KindUnknown && s.prober != nil {
		if res, err := s.prober.Probe(ctx, u); err == nil && res.Accessible {
			kind = mediaurl.KindForMIME(res.ContentType)
			ext = mediaurl.ExtForMIME(res.ContentType)
		}
	}
	if kind == domain.KindUnknown {
		kind, ext = domain.KindImage, ".jpg"
	}
	switch {
	case ext == ".jpeg":
		ext = ".jpg"
	case ext == "" && kind == domain.KindVideo:
		ext = ".mp4"
	case ext == "":
		ext = ".jpg"
	}
	return domain.ResolvedMedia{URL: u, Kind: kind, Ext: ext}, nil
}
