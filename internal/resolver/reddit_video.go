package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// dashHeights are the DASH renditions tried, best first.
var dashHeights = []int{1080, 720, 480, 360, 240, 220}

var dashAudio = []string{"DASH_AUDIO_128.mp4", "DASH_AUDIO_64.mp4", "DASH_audio.mp4", "DASH_audio"}

// RedditVideoStrategy picks the best DASH video track of a natively hosted video and
// pairs it with the audio track when one exists.
type RedditVideoStrategy struct {
	prober Prober
}

func NewRedditVideoStrategy(p Prober) *RedditVideoStrategy {
	return &RedditVideoStrategy{prober: p}
}

func (s *RedditVideoStrategy) Name() string { return "reddit_video" }

func (s *RedditVideoStrategy) Match(p domain.Post) bool {
	return p.Video != nil || mediaurl.IsRedditVideo(p.URL)
}

func (s *RedditVideoStrategy) Resolve(ctx context.Context, p domain.Post, _ domain.MediaType) (domain.ResolvedMedia, error) {
	base := videoBase(p)
	if base == "" {
		return domain.ResolvedMedia{}, errors.New("no video base url")
	}

	maxHeight := 0
	if p.Video != nil {
		maxHeight = p.Video.Height
	}

	m := domain.ResolvedMedia{Kind: domain.KindVideo, Ext: ".mp4"}
	if u, err := SelectBest(ctx, s.prober, VideoCandidates(base, maxHeight)); err == nil {
		m.URL = u
	} else {
		if p.Video == nil || p.Video.FallbackURL == "" {
			return domain.ResolvedMedia{}, fmt.Errorf("no accessible DASH rendition under %s", base)
		}
		m.URL = p.Video.FallbackURL
	}

	if p.Video != nil && p.Video.IsGIF {
		return m, nil
	}
	audio := make([]string, len(dashAudio))
	for i, name := range dashAudio {
		audio[i] = base + "/" + name
	}
	if u, err := SelectBest(ctx, s.prober, audio); err == nil {
		m.AudioURL = u
		m.NeedsMerge = true
	}
	return m, nil
}

// VideoCandidates lists DASH video URLs best first. Heights above maxHeight are
// skipped when it is known.
func VideoCandidates(base string, maxHeight int) []string {
	var out []string
	for _, h := range dashHeights {
		if maxHeight > 0 && h > maxHeight {
			continue
		}
		out = append(out, fmt.Sprintf("%s/DASH_%d.mp4", base, h))
		out = append(out, fmt.Sprintf("%s/DASH_%d", base, h))
	}
	return out
}

// videoBase returns https://v.redd.it/<id> for the post.
func videoBase(p domain.Post) string {
	for _, raw := range []string{p.URL, fallbackURL(p)} {
		if !mediaurl.IsRedditVideo(raw) {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		if len(segs) == 0 {
			continue
		}
		return "https://" + u.Host + "/" + segs[0]
	}
	return ""
}

func fallbackURL(p domain.Post) string {
	if p.Video == nil {
		return ""
	}
	return p.Video.FallbackURL
}
