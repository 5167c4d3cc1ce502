package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// FixtureClient implements domain.Collector and domain.GalleryLookup over in-memory posts.
type FixtureClient struct {
	mu      sync.Mutex
	posts   map[string][]domain.Post
	errs    map[string]error
	queries []domain.ListingQuery

	// Latency simulates network time per listing call.
	Latency time.Duration
}

// NewFixtureClient returns an empty fixture.
func NewFixtureClient() *FixtureClient {
	return &FixtureClient{
		posts: make(map[string][]domain.Post),
		errs:  make(map[string]error),
	}
}

// Add appends posts to a subreddit listing, in platform order.
func (fc *FixtureClient) Add(sub string, posts ...domain.Post) *FixtureClient {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.posts[sub] = append(fc.posts[sub], posts...)
	return fc
}

// Fail makes every listing call for sub return err.
func (fc *FixtureClient) Fail(sub string, err error) *FixtureClient {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.errs[sub] = err
	return fc
}

// Queries returns the listing queries received so far.
func (fc *FixtureClient) Queries() []domain.ListingQuery {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]domain.ListingQuery(nil), fc.queries...)
}

func (fc *FixtureClient) FetchPosts(ctx context.Context, q domain.ListingQuery) ([]domain.Post, error) {
	if fc.Latency > 0 {
		select {
		case <-time.After(fc.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.queries = append(fc.queries, q)
	if err := fc.errs[q.Subreddit]; err != nil {
		return nil, err
	}
	posts := fc.posts[q.Subreddit]
	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	return append([]domain.Post(nil), posts...), nil
}

func (fc *FixtureClient) Gallery(ctx context.Context, postID string) ([]domain.GalleryItem, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, posts := range fc.posts {
		for _, p := range posts {
			if p.ID == postID {
				return p.Gallery, nil
			}
		}
	}
	return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
}

// DemoPosts generates deterministic image posts whose media lives under mediaBase.
func DemoPosts(sub string, n int, mediaBase string) []domain.Post {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	posts := make([]domain.Post, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("mock%s%d", sub, i)
		posts = append(posts, domain.Post{
			ID:          id,
			Title:       fmt.Sprintf("[%s] Simulated media post #%d", sub, i),
			Author:      "simulated_user",
			Subreddit:   sub,
			Permalink:   "https://www.reddit.com/r/" + sub + "/comments/" + id,
			URL:         fmt.Sprintf("%s/%s.jpg", mediaBase, id),
			CreatedUTC:  base.Add(time.Duration(i) * time.Hour),
			Score:       100 - i,
			UpvoteRatio: 0.9,
			NumComments: i,
			Domain:      "i.redd.it",
		})
	}
	return posts
}
