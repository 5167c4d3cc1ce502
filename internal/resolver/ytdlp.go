package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// ytdlpHosts are the page hosts handed to yt-dlp.
var ytdlpHosts = []string{
	"youtube.com", "youtu.be", "twitch.tv", "kick.com", "x.com", "twitter.com", "redgifs.com", "imgur.com",
}

// YtDLPExtractor asks yt-dlp for the format list of a page without downloading it.
type YtDLPExtractor struct {
	path    string
	timeout time.Duration
	run     CommandRunner
}

// NewYtDLPExtractor creates an extractor running the binary at path.
func NewYtDLPExtractor(path string, timeout time.Duration) *YtDLPExtractor {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDLPExtractor{path: path, timeout: timeout, run: execRunner}
}

// WithRunner replaces the process runner.
func (e *YtDLPExtractor) WithRunner(r CommandRunner) *YtDLPExtractor {
	e.run = r
	return e
}

func (e *YtDLPExtractor) Name() string { return "yt-dlp" }

func (e *YtDLPExtractor) Handles(host string) bool {
	if host == "i.imgur.com" {
		return false
	}
	for _, h := range ytdlpHosts {
		if mediaurl.HostMatches(host, h) {
			return true
		}
	}
	return false
}

func (e *YtDLPExtractor) Extract(ctx context.Context, pageURL string) ([]Stream, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	out, err := e.run(ctx, e.path, "-J", "--no-playlist", "--no-warnings", "--", pageURL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return ParseYtDLP(out)
}

type ytdlpFormat struct {
	URL      string  `json:"url"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	Protocol string  `json:"protocol"`
	TBR      float64 `json:"tbr"`
	ABR      float64 `json:"abr"`
}

type ytdlpInfo struct {
	ytdlpFormat
	Formats []ytdlpFormat `json:"formats"`
}

func (f ytdlpFormat) direct() bool {
	return f.URL != "" && (f.Protocol == "" || f.Protocol == "https" || f.Protocol == "http")
}

func (f ytdlpFormat) hasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }
func (f ytdlpFormat) hasAudio() bool { return f.ACodec != "" && f.ACodec != "none" }

// ParseYtDLP ranks the formats of a yt-dlp JSON dump: progressive files and
// video+audio pairs by height, progressive first on ties. Streaming manifests are ignored.
func ParseYtDLP(data []byte) ([]Stream, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	var progressive, videoOnly []ytdlpFormat
	var bestAudio *ytdlpFormat
	for i := range info.Formats {
		f := info.Formats[i]
		if !f.direct() {
			continue
		}
		switch {
		case f.hasVideo() && f.hasAudio():
			progressive = append(progressive, f)
		case f.hasVideo():
			videoOnly = append(videoOnly, f)
		case f.hasAudio():
			if bestAudio == nil || audioRank(f) > audioRank(*bestAudio) {
				bestAudio = &info.Formats[i]
			}
		}
	}

	type ranked struct {
		Stream
		merged bool
	}
	var all []ranked
	for _, f := range progressive {
		all = append(all, ranked{Stream: formatStream(f)})
	}
	if bestAudio != nil {
		for _, f := range videoOnly {
			if f.Ext != "mp4" {
				continue
			}
			st := formatStream(f)
			st.AudioURL = bestAudio.URL
			all = append(all, ranked{Stream: st, merged: true})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Height != all[j].Height {
			return all[i].Height > all[j].Height
		}
		return !all[i].merged && all[j].merged
	})

	streams := make([]Stream, 0, len(all)+1)
	for _, r := range all {
		streams = append(streams, r.Stream)
	}
	if len(streams) == 0 && info.direct() {
		streams = append(streams, formatStream(info.ytdlpFormat))
	}
	return streams, nil
}

func audioRank(f ytdlpFormat) float64 {
	r := f.ABR
	if r == 0 {
		r = f.TBR
	}
	if f.Ext == "m4a" {
		r += 10_000
	}
	return r
}

func formatStream(f ytdlpFormat) Stream {
	ext := "." + strings.TrimPrefix(strings.ToLower(f.Ext), ".")
	if ext == "." {
		ext = mediaurl.Ext(f.URL)
	}
	kind := mediaurl.KindForExt(ext)
	if kind == domain.KindUnknown {
		kind = domain.KindVideo
		if !f.hasVideo() && f.VCodec == "" && f.Height == 0 {
			kind = domain.KindImage
		}
	}
	return Stream{URL: f.URL, Height: f.Height, Kind: kind, Ext: ext}
}
