package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// Listing size bounds. The platform caps a page at 100.
const (
	minListingLimit = 25
	maxListingLimit = 100
)

// FetchResult is the merged output of one fetch across all requested subreddits.
type FetchResult struct {
	Posts  []domain.Post
	Failed []*domain.SubredditError
	Notes  []string
}

// Fetcher queries every requested subreddit concurrently and merges the listings.
type Fetcher struct {
	collector domain.Collector
	overfetch int
	logger    *slog.Logger
}

// NewFetcher creates a fetcher. overfetch multiplies the requested count to leave
// room for posts the filter will drop.
func NewFetcher(c domain.Collector, overfetch int, logger *slog.Logger) *Fetcher {
	if overfetch < 1 {
		overfetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{collector: c, overfetch: overfetch, logger: logger}
}

// ListingLimit is the page size requested per subreddit for count wanted posts.
func ListingLimit(count, factor int) int {
	n := count * factor
	if n < minListingLimit {
		n = minListingLimit
	}
	if n > maxListingLimit {
		n = maxListingLimit
	}
	return n
}

// Fetch loads all subreddits of req. A failing subreddit contributes zero posts and a
// SubredditError; it never fails the fetch as a whole.
func (f *Fetcher) Fetch(ctx context.Context, req domain.FetchRequest) FetchResult {
	limit := ListingLimit(req.Count, f.overfetch)
	lists := make([][]domain.Post, len(req.Subreddits))
	errs := make([]error, len(req.Subreddits))

	var wg sync.WaitGroup
	for i, sub := range req.Subreddits {
		wg.Add(1)
		go func(i int, sub string) {
			defer wg.Done()
			q := domain.ListingQuery{
				Subreddit:  sub,
				Sort:       req.Sort,
				TimeFilter: req.TimeFilter,
				Limit:      limit,
			}
			posts, err := f.collector.FetchPosts(ctx, q)
			if err != nil {
				errs[i] = err
				return
			}
			lists[i] = posts
		}(i, sub)
	}
	wg.Wait()

	var res FetchResult
	for i, sub := range req.Subreddits {
		if errs[i] == nil {
			f.logger.Debug("listing fetched", "sub", sub, "posts", len(lists[i]), "limit", limit)
			continue
		}
		se := &domain.SubredditError{Subreddit: sub, Err: errs[i]}
		res.Failed = append(res.Failed, se)
		res.Notes = append(res.Notes, "fetch failed for "+se.Error())
		level := slog.LevelWarn
		if errors.Is(errs[i], context.Canceled) {
			level = slog.LevelInfo
		}
		f.logger.Log(ctx, level, "Scrape failed", "sub", sub, "error", errs[i])
	}
	res.Posts = Interleave(lists)
	return res
}

// Interleave merges listings round-robin in list order. A single list passes through unchanged.
func Interleave(lists [][]domain.Post) []domain.Post {
	if len(lists) == 1 {
		return lists[0]
	}
	total, longest := 0, 0
	for _, l := range lists {
		total += len(l)
		if len(l) > longest {
			longest = len(l)
		}
	}
	out := make([]domain.Post, 0, total)
	for i := 0; i < longest; i++ {
		for _, l := range lists {
			if i < len(l) {
				out = append(out, l[i])
			}
		}
	}
	return out
}
