package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// OpenGraphExtractor reads og:video and og:image tags from a host's HTML page.
type OpenGraphExtractor struct {
	client    *http.Client
	userAgent string
	hosts     []string
}

func NewOpenGraphExtractor(client *http.Client, userAgent string, hosts ...string) *OpenGraphExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenGraphExtractor{client: client, userAgent: userAgent, hosts: hosts}
}

func (e *OpenGraphExtractor) Name() string { return "opengraph" }

func (e *OpenGraphExtractor) Handles(host string) bool {
	for _, h := range e.hosts {
		if mediaurl.HostMatches(host, h) {
			return true
		}
	}
	return false
}

func (e *OpenGraphExtractor) Extract(ctx context.Context, pageURL string) ([]Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("page %s: %w", pageURL, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page status %d", resp.StatusCode)
	}
	return ParseOpenGraph(resp.Body, pageURL)
}

// ParseOpenGraph extracts media streams from page HTML, videos before images.
// Relative URLs are resolved against pageURL.
func ParseOpenGraph(r io.Reader, pageURL string) ([]Stream, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	meta := func(props ...string) string {
		for _, p := range props {
			sel := fmt.Sprintf("meta[property='%s'], meta[name='%s']", p, p)
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return resolveURL(pageURL, strings.TrimSpace(v))
			}
		}
		return ""
	}

	var streams []Stream
	if v := meta("og:video:secure_url", "og:video:url", "og:video", "twitter:player:stream"); v != "" {
		ext := mediaurl.Ext(v)
		if mediaurl.KindForExt(ext) != domain.KindVideo {
			ext = ".mp4"
		}
		streams = append(streams, Stream{URL: v, Kind: domain.KindVideo, Ext: ext})
	}
	if v := meta("og:image:secure_url", "og:image", "twitter:image"); v != "" {
		ext := mediaurl.Ext(v)
		if mediaurl.KindForExt(ext) != domain.KindImage {
			ext = ".jpg"
		}
		if ext == ".jpeg" {
			ext = ".jpg"
		}
		streams = append(streams, Stream{URL: v, Kind: domain.KindImage, Ext: ext})
	}
	return streams, nil
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
