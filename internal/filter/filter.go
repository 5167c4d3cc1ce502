// Package filter narrows fetched posts to the eligible, deduplicated set a run will process.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

// Drop reasons counted in Stats.
const (
	ReasonNonMedia     = "non_media"
	ReasonTermMiss     = "term_miss"
	ReasonBlacklisted  = "blacklisted"
	ReasonLowScore     = "low_score"
	ReasonWrongType    = "wrong_type"
	ReasonDuplicateID  = "duplicate_id"
	ReasonDuplicateURL = "duplicate_url"
	ReasonOverCount    = "over_count"
)

// Stats counts why posts were dropped.
type Stats map[string]int

// String renders the counts in a stable order, e.g. "duplicate_id: 1, non_media: 3".
func (s Stats) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, s[k]))
	}
	return strings.Join(parts, ", ")
}

// Total is the number of dropped posts.
func (s Stats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Engine applies the request filters plus optional title blacklist and score floor.
type Engine struct {
	Blacklist []string
	MinScore  int
}

// Filter is Engine{}.Apply without the stats.
func Filter(posts []domain.Post, req domain.FetchRequest) []domain.Post {
	out, _ := Engine{}.Apply(posts, req)
	return out
}

// Apply keeps posts that carry media, match every search term, may match the media type,
// and are not duplicates by ID or URL. The result keeps input order and holds at most
// req.Count posts. Fewer eligible posts are returned as-is.
func (e Engine) Apply(posts []domain.Post, req domain.FetchRequest) ([]domain.Post, Stats) {
	stats := Stats{}
	terms := normalizeTerms(req.SearchTerms)
	blacklist := compileBlacklist(e.Blacklist)
	seenID := make(map[string]bool)
	seenURL := make(map[string]bool)

	var out []domain.Post
	for _, p := range posts {
		urlKey := mediaurl.Normalize(p.URL)
		reason := ""
		switch {
		case !HasMedia(p):
			reason = ReasonNonMedia
		case !matchesTerms(p.Title, terms):
			reason = ReasonTermMiss
		case isBlacklisted(p.Title, blacklist):
			reason = ReasonBlacklisted
		case e.MinScore > 0 && p.Score < e.MinScore:
			reason = ReasonLowScore
		case !mayMatchType(p, req.MediaType):
			reason = ReasonWrongType
		case seenID[p.ID]:
			reason = ReasonDuplicateID
		case urlKey != "" && seenURL[urlKey]:
			reason = ReasonDuplicateURL
		}
		if reason != "" {
			stats[reason]++
			continue
		}
		seenID[p.ID] = true
		if urlKey != "" {
			seenURL[urlKey] = true
		}
		if req.Count > 0 && len(out) >= req.Count {
			stats[ReasonOverCount]++
			continue
		}
		out = append(out, p)
	}
	return out, stats
}

// HasMedia reports whether a post carries anything a resolver could turn into a file.
func HasMedia(p domain.Post) bool {
	if p.IsSelf && !p.IsGallery {
		return false
	}
	if mediaurl.IsDead(p.URL) {
		return false
	}
	if p.IsGallery || p.IsVideo || p.Video != nil {
		return true
	}
	return mediaurl.IsMedia(p.URL)
}

func mayMatchType(p domain.Post, mt domain.MediaType) bool {
	if mt == domain.MediaAny || mt == "" {
		return true
	}
	k := mediaurl.GuessKind(p)
	return k == domain.KindUnknown || mt.Accepts(k)
}

// normalizeTerms lowercases terms and treats underscores as spaces.
func normalizeTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(strings.ReplaceAll(strings.ToLower(t), "_", " "))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeTitle(title string) string {
	title = strings.ReplaceAll(strings.ToLower(title), "_", " ")
	return strings.Join(strings.Fields(title), " ")
}

func matchesTerms(title string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	t := normalizeTitle(title)
	for _, term := range terms {
		if !strings.Contains(t, term) {
			return false
		}
	}
	return true
}

func compileBlacklist(terms []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, t := range normalizeTerms(terms) {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return out
}

func isBlacklisted(title string, blacklist []*regexp.Regexp) bool {
	if len(blacklist) == 0 {
		return false
	}
	t := normalizeTitle(title)
	for _, re := range blacklist {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// URLSet records resolved media URLs claimed during a run. Safe for concurrent use.
//
// A claim is held until its owner calls Release. Other posts asking for the same URL
// wait for that outcome: a saved URL stays owned, a failed one passes to the next post.
type URLSet struct {
	mu   sync.Mutex
	seen map[string]*urlClaim
}

type urlClaim struct {
	owner string
	saved bool
	done  chan struct{}
}

// NewURLSet creates an empty set.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]*urlClaim)}
}

// Claim records url for postID. It returns false and the owner when another post
// already saved the same URL. While another post holds the URL, Claim blocks until
// that post releases it or ctx is done.
func (s *URLSet) Claim(ctx context.Context, url, postID string) (bool, string, error) {
	key := mediaurl.Normalize(url)
	for {
		s.mu.Lock()
		c, ok := s.seen[key]
		switch {
		case !ok:
			s.seen[key] = &urlClaim{owner: postID, done: make(chan struct{})}
			s.mu.Unlock()
			return true, "", nil
		case c.owner == postID:
			s.mu.Unlock()
			return true, "", nil
		case c.saved:
			s.mu.Unlock()
			return false, c.owner, nil
		}
		s.mu.Unlock()

		select {
		case <-c.done:
		case <-ctx.Done():
			return false, "", ctx.Err()
		}
	}
}

// Release ends postID's hold on url. A saved URL keeps its owner; otherwise the URL
// becomes free for the next claimant.
func (s *URLSet) Release(url, postID string, saved bool) {
	key := mediaurl.Normalize(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.seen[key]
	if !ok || c.owner != postID || c.saved {
		return
	}
	if saved {
		c.saved = true
	} else {
		delete(s.seen, key)
	}
	close(c.done)
}
