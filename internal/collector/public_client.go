package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"golang.org/x/time/rate"
)

// PublicClient reads the unauthenticated JSON listings.
type PublicClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	baseURL    string
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Kind string  `json:"kind"`
			Data rawPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type rawVideo struct {
	RedditVideo *struct {
		FallbackURL string `json:"fallback_url"`
		Height      int    `json:"height"`
		IsGIF       bool   `json:"is_gif"`
	} `json:"reddit_video"`
}

type rawMediaMeta struct {
	Status string `json:"status"`
	E      string `json:"e"`
	M      string `json:"m"`
	S      struct {
		U   string `json:"u"`
		MP4 string `json:"mp4"`
		GIF string `json:"gif"`
	} `json:"s"`
	P []struct {
		U string `json:"u"`
	} `json:"p"`
}

type rawGalleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type rawPost struct {
	ID                  string                  `json:"id"`
	Title               string                  `json:"title"`
	Author              string                  `json:"author"`
	Subreddit           string                  `json:"subreddit"`
	Permalink           string                  `json:"permalink"`
	URL                 string                  `json:"url"`
	URLOverriddenByDest string                  `json:"url_overridden_by_dest"`
	CreatedUTC          float64                 `json:"created_utc"`
	Score               int                     `json:"score"`
	UpvoteRatio         float64                 `json:"upvote_ratio"`
	NumComments         int                     `json:"num_comments"`
	LinkFlairText       string                  `json:"link_flair_text"`
	IsGallery           bool                    `json:"is_gallery"`
	IsVideo             bool                    `json:"is_video"`
	IsSelf              bool                    `json:"is_self"`
	Domain              string                  `json:"domain"`
	SecureMedia         *rawVideo               `json:"secure_media"`
	Media               *rawVideo               `json:"media"`
	GalleryData         *rawGalleryData         `json:"gallery_data"`
	MediaMetadata       map[string]rawMediaMeta `json:"media_metadata"`
	CrosspostParent     string                  `json:"crosspost_parent"`
	CrosspostParentList []rawPost               `json:"crosspost_parent_list"`
}

// NewPublicClient creates a client for the public JSON endpoints.
func NewPublicClient(baseURL, userAgent string, interval, timeout time.Duration) (*PublicClient, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("user agent is required for public mode")
	}
	if baseURL == "" {
		baseURL = "https://www.reddit.com"
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PublicClient{
		httpClient: &http.Client{Timeout: timeout},
		// Public JSON Limit: 1 req / 2 seconds (Stricter)
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		userAgent: userAgent,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// FetchPosts loads one listing page.
func (pc *PublicClient) FetchPosts(ctx context.Context, q domain.ListingQuery) ([]domain.Post, error) {
	sort := q.Sort
	if sort == "" {
		sort = domain.SortHot
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("raw_json", "1")
	if sort == domain.SortTop && q.TimeFilter != domain.TimeNone {
		params.Set("t", string(q.TimeFilter))
	}
	endpoint := fmt.Sprintf("%s/r/%s/%s.json?%s", pc.baseURL, url.PathEscape(q.Subreddit), sort, params.Encode())

	var listing listingResponse
	if err := pc.getJSON(ctx, endpoint, &listing); err != nil {
		return nil, err
	}

	posts := make([]domain.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		posts = append(posts, child.Data.toPost())
	}
	return posts, nil
}

// Gallery loads gallery items for a post, following crossposts to the original.
func (pc *PublicClient) Gallery(ctx context.Context, postID string) ([]domain.GalleryItem, error) {
	endpoint := fmt.Sprintf("%s/comments/%s.json?raw_json=1&limit=1", pc.baseURL, url.PathEscape(postID))

	// The comments endpoint returns [post listing, comment listing].
	var pages []listingResponse
	if err := pc.getJSON(ctx, endpoint, &pages); err != nil {
		return nil, err
	}
	if len(pages) == 0 || len(pages[0].Data.Children) == 0 {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}

	raw := pages[0].Data.Children[0].Data
	if items := raw.galleryItems(); len(items) > 0 {
		return items, nil
	}
	for _, parent := range raw.CrosspostParentList {
		if items := parent.galleryItems(); len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

func (pc *PublicClient) getJSON(ctx context.Context, endpoint string, v any) error {
	if err := pc.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", pc.userAgent)
	req.Header.Set("Cookie", "over18=1")

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("reddit public access: %w", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", code, domain.ErrAuth)
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("status %d: %w", code, domain.ErrNotFound)
	}
	return fmt.Errorf("unexpected status: %d", code)
}

func (r rawPost) toPost() domain.Post {
	u := r.URLOverriddenByDest
	if u == "" {
		u = r.URL
	}
	p := domain.Post{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Subreddit:   r.Subreddit,
		Permalink:   permalink(r.Permalink, r.ID),
		URL:         u,
		CreatedUTC:  unixTime(r.CreatedUTC),
		Score:       r.Score,
		UpvoteRatio: r.UpvoteRatio,
		NumComments: r.NumComments,
		Flair:       CleanFlair(r.LinkFlairText),
		IsGallery:   r.IsGallery,
		IsVideo:     r.IsVideo,
		IsSelf:      r.IsSelf,
		Domain:      r.Domain,
		Gallery:     r.galleryItems(),
	}
	for _, m := range []*rawVideo{r.SecureMedia, r.Media} {
		if m != nil && m.RedditVideo != nil && m.RedditVideo.FallbackURL != "" {
			p.Video = &domain.RedditVideo{
				FallbackURL: m.RedditVideo.FallbackURL,
				Height:      m.RedditVideo.Height,
				IsGIF:       m.RedditVideo.IsGIF,
			}
			break
		}
	}
	if strings.HasPrefix(r.CrosspostParent, "t3_") {
		p.CrosspostParent = strings.TrimPrefix(r.CrosspostParent, "t3_")
	}
	return p
}

// galleryItems lists items in gallery order. Prefers mp4 (animated), then the image, then gif.
func (r rawPost) galleryItems() []domain.GalleryItem {
	if r.GalleryData == nil || len(r.MediaMetadata) == 0 {
		return nil
	}
	var items []domain.GalleryItem
	for _, it := range r.GalleryData.Items {
		md, ok := r.MediaMetadata[it.MediaID]
		if !ok {
			// Placeholder keeps later items at their display position.
			items = append(items, domain.GalleryItem{MediaID: it.MediaID, Status: "missing"})
			continue
		}
		item := domain.GalleryItem{MediaID: it.MediaID, Status: strings.ToLower(md.Status)}
		switch {
		case md.S.MP4 != "":
			item.URL, item.Kind, item.Ext = md.S.MP4, domain.KindVideo, ".mp4"
		case md.S.U != "":
			item.URL, item.Kind = md.S.U, domain.KindImage
		case md.S.GIF != "":
			item.URL, item.Kind, item.Ext = md.S.GIF, domain.KindImage, ".gif"
		case len(md.P) > 0:
			item.URL, item.Kind = md.P[len(md.P)-1].U, domain.KindImage
		}
		if item.Ext == "" {
			item.Ext = extFor(item.URL, md.M)
		}
		items = append(items, item)
	}
	return items
}
