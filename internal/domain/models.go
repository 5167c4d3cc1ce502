package domain

import (
	"context"
	"time"
)

// MediaKind is the kind of a resolved media file.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"

	// KindUnknown is used by cheap pre-checks that cannot tell without resolving.
	KindUnknown MediaKind = ""
)

// RedditVideo is the subset of reddit_video metadata needed to locate DASH tracks.
type RedditVideo struct {
	FallbackURL string `json:"fallback_url"`
	Height      int    `json:"height"`
	IsGIF       bool   `json:"is_gif"`
}

// GalleryItem is one entry of a native gallery, in display order.
type GalleryItem struct {
	MediaID string    `json:"media_id"`
	URL     string    `json:"url"`
	Kind    MediaKind `json:"kind"`
	Ext     string    `json:"ext"`
	Status  string    `json:"status"`
}

// Valid reports whether the platform marked the item as processed and usable.
func (g GalleryItem) Valid() bool {
	return g.URL != "" && (g.Status == "" || g.Status == "valid")
}

// Post is a fetched submission. It is passed by value and never mutated after fetch.
type Post struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Author          string        `json:"author"`
	Subreddit       string        `json:"subreddit"`
	Permalink       string        `json:"permalink"`
	URL             string        `json:"url"`
	CreatedUTC      time.Time     `json:"created_utc"`
	Score           int           `json:"score"`
	UpvoteRatio     float64       `json:"upvote_ratio"`
	NumComments     int           `json:"num_comments"`
	Flair           string        `json:"flair,omitempty"`
	IsGallery       bool          `json:"is_gallery"`
	IsVideo         bool          `json:"is_video"`
	IsSelf          bool          `json:"is_self"`
	Domain          string        `json:"domain,omitempty"`
	Video           *RedditVideo  `json:"video,omitempty"`
	Gallery         []GalleryItem `json:"gallery,omitempty"`
	CrosspostParent string        `json:"crosspost_parent,omitempty"`
}

// ListingQuery asks a collector for one subreddit listing.
type ListingQuery struct {
	Subreddit  string
	Sort       Sort
	TimeFilter TimeFilter
	Limit      int
}

// Collector defines the interface for data fetching.
type Collector interface {
	FetchPosts(ctx context.Context, q ListingQuery) ([]Post, error)
}

// GalleryLookup loads gallery items for a post that was listed without them.
type GalleryLookup interface {
	Gallery(ctx context.Context, postID string) ([]GalleryItem, error)
}

// ResolvedMedia is a concrete, fetchable media location for one post.
type ResolvedMedia struct {
	PostID string    `json:"post_id"`
	URL    string    `json:"resolved_url"`
	Kind   MediaKind `json:"kind"`
	Ext    string    `json:"ext"`

	// AudioURL is set when NeedsMerge is true.
	AudioURL     string `json:"audio_url,omitempty"`
	NeedsMerge   bool   `json:"needs_merge"`
	Strategy     string `json:"strategy"`
	GalleryIndex int    `json:"gallery_index,omitempty"`
}

// SavedArtifact is a media file that landed on disk together with its metadata.
type SavedArtifact struct {
	Post        Post          `json:"post"`
	Media       ResolvedMedia `json:"media"`
	Path        string        `json:"path"`
	SidecarPath string        `json:"sidecar_path,omitempty"`
	Size        int64         `json:"size"`
	SavedAt     time.Time     `json:"saved_at"`
}

// Stage names the pipeline step a post failed or was skipped in.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageResolve  Stage = "resolve"
	StageDedup    Stage = "dedup"
	StageDownload Stage = "download"
	StageSave     Stage = "save"
	StageCanceled Stage = "canceled"
)

// Outcome statuses.
const (
	StatusSaved   = "saved"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Outcome is the per-post record written to the run report.
type Outcome struct {
	PostID    string `json:"id"`
	Subreddit string `json:"subreddit"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Stage     Stage  `json:"stage,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Path      string `json:"path,omitempty"`
}
