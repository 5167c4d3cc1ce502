package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"github.com/qepting91/reddit-media-dl/internal/domain"
	"golang.org/x/time/rate"
)

// APIClient reads listings through the authenticated API.
type APIClient struct {
	client  *reddit.Client
	limiter *rate.Limiter
}

// NewAPIClient creates an authenticated client. The user agent is required by the API rules.
func NewAPIClient(id, secret, user, pass, userAgent string) (*APIClient, error) {
	creds := reddit.Credentials{ID: id, Secret: secret, Username: user, Password: pass}

	client, err := reddit.NewClient(creds, reddit.WithUserAgent(userAgent))
	if err != nil {
		return nil, err
	}

	// API Rate Limit: ~60 reqs/min (safe buffer)
	limiter := rate.NewLimiter(rate.Every(1*time.Second), 1)

	return &APIClient{client: client, limiter: limiter}, nil
}

// FetchPosts loads one listing page. The random sentinel is resolved to a real subreddit first.
func (ac *APIClient) FetchPosts(ctx context.Context, q domain.ListingQuery) ([]domain.Post, error) {
	sub := q.Subreddit
	if sub == domain.RandomSubreddit {
		if err := ac.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		s, _, err := ac.client.Subreddit.Random(ctx)
		if err != nil {
			return nil, fmt.Errorf("authenticated api error: %w", mapAPIError(err))
		}
		sub = s.Name
	}

	if err := ac.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		posts []*reddit.Post
		err   error
	)
	opts := reddit.ListOptions{Limit: q.Limit}
	if q.Sort == domain.SortTop {
		posts, _, err = ac.client.Subreddit.TopPosts(ctx, sub, &reddit.ListPostOptions{
			ListOptions: opts,
			Time:        string(q.TimeFilter),
		})
	} else {
		posts, _, err = ac.client.Subreddit.HotPosts(ctx, sub, &opts)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticated api error: %w", mapAPIError(err))
	}

	result := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		result = append(result, apiPost(p))
	}
	return result, nil
}

// apiPost maps a go-reddit post. Gallery and video metadata are not part of this
// listing shape and are looked up later through the public client.
func apiPost(p *reddit.Post) domain.Post {
	post := domain.Post{
		ID:          p.ID,
		Title:       p.Title,
		Author:      p.Author,
		Subreddit:   p.SubredditName,
		Permalink:   permalink(p.Permalink, p.ID),
		URL:         p.URL,
		Score:       p.Score,
		UpvoteRatio: float64(p.UpvoteRatio),
		NumComments: p.NumberOfComments,
		Flair:       CleanFlair(p.LinkFlairText),
		IsSelf:      p.IsSelfPost,
		IsVideo:     p.IsVideo,
	}
	if p.Created != nil {
		post.CreatedUTC = p.Created.Time.UTC()
	}
	return post
}

func mapAPIError(err error) error {
	var rl *reddit.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	var er *reddit.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		if se := statusError(er.Response.StatusCode); se != nil {
			return fmt.Errorf("%w: %v", se, err)
		}
	}
	return err
}
