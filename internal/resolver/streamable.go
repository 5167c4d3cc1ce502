package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// StreamableExtractor reads file URLs from the public video API.
type StreamableExtractor struct {
	client  *http.Client
	apiBase string
}

func NewStreamableExtractor(client *http.Client, apiBase string) *StreamableExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	if apiBase == "" {
		apiBase = "https://api.streamable.com"
	}
	return &StreamableExtractor{client: client, apiBase: strings.TrimRight(apiBase, "/")}
}

func (e *StreamableExtractor) Name() string { return "streamable" }

func (e *StreamableExtractor) Handles(host string) bool {
	return mediaurl.HostMatches(host, "streamable.com") && !strings.HasPrefix(host, "api.")
}

type streamableFile struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
}

func (e *StreamableExtractor) Extract(ctx context.Context, pageURL string) ([]Stream, error) {
	code := shortcode(pageURL)
	if code == "" {
		return nil, fmt.Errorf("no shortcode in %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBase+"/videos/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("video %s: %w", code, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("streamable api status %d", resp.StatusCode)
	}

	var body struct {
		Files map[string]streamableFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode streamable response: %w", err)
	}

	var streams []Stream
	for _, key := range []string{"mp4", "mp4-mobile"} {
		f, ok := body.Files[key]
		if !ok || f.URL == "" {
			continue
		}
		u := f.URL
		if strings.HasPrefix(u, "//") {
			u = "https:" + u
		}
		streams = append(streams, Stream{URL: u, Height: f.Height, Kind: domain.KindVideo, Ext: ".mp4"})
	}
	return streams, nil
}

// shortcode is the last path segment of a page URL.
func shortcode(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
