package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// TimeFilter is the lookback window for top listings.
type TimeFilter string

const (
	TimeNone  TimeFilter = ""
	TimeAll   TimeFilter = "all"
	TimeYear  TimeFilter = "year"
	TimeMonth TimeFilter = "month"
	TimeWeek  TimeFilter = "week"
	TimeDay   TimeFilter = "day"
)

// ParseTimeFilter accepts the listing names plus "none".
func ParseTimeFilter(s string) (TimeFilter, bool) {
	switch tf := TimeFilter(strings.ToLower(strings.TrimSpace(s))); tf {
	case TimeAll, TimeYear, TimeMonth, TimeWeek, TimeDay:
		return tf, true
	case TimeNone, "none":
		return TimeNone, true
	}
	return TimeNone, false
}

// Sort is the listing order.
type Sort string

const (
	SortHot Sort = "hot"
	SortTop Sort = "top"
)

// MediaType restricts which media kinds a request accepts.
type MediaType string

const (
	MediaAny   MediaType = "any"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Accepts reports whether a resolved kind satisfies the media type.
func (m MediaType) Accepts(k MediaKind) bool {
	switch m {
	case MediaImage:
		return k == KindImage
	case MediaVideo:
		return k == KindVideo
	}
	return true
}

// RandomSubreddit lets the platform pick the subreddit.
const RandomSubreddit = "random"

var subNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// ValidSubredditName reports whether s is a plausible subreddit name.
func ValidSubredditName(s string) bool {
	return s == RandomSubreddit || subNameRegex.MatchString(s)
}

// FetchRequest is the normalized description of what to download.
type FetchRequest struct {
	Subreddits  []string   `json:"subreddits"`
	TimeFilter  TimeFilter `json:"time_filter,omitempty"`
	Sort        Sort       `json:"sort"`
	SearchTerms []string   `json:"search_terms,omitempty"`
	Count       int        `json:"count"`
	MediaType   MediaType  `json:"media_type"`
}

// Normalize cleans names and fills defaults. A time filter forces top sort.
func (r FetchRequest) Normalize() FetchRequest {
	out := r
	out.Subreddits = nil
	seen := make(map[string]bool)
	for _, s := range r.Subreddits {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.TrimPrefix(s, "/")
		s = strings.TrimPrefix(s, "r/")
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out.Subreddits = append(out.Subreddits, s)
	}

	out.SearchTerms = nil
	for _, t := range r.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			out.SearchTerms = append(out.SearchTerms, t)
		}
	}

	if out.Count == 0 {
		out.Count = 1
	}
	if out.MediaType == "" {
		out.MediaType = MediaAny
	}
	out.TimeFilter = TimeFilter(strings.ToLower(string(out.TimeFilter)))
	if out.TimeFilter == "none" {
		out.TimeFilter = TimeNone
	}
	if out.TimeFilter != TimeNone {
		out.Sort = SortTop
	}
	if out.Sort == "" {
		out.Sort = SortHot
	}
	return out
}

// Validate returns a *ConfigError describing the first invalid field.
func (r FetchRequest) Validate() error {
	if len(r.Subreddits) == 0 {
		return &ConfigError{Field: "subreddits", Reason: "at least one subreddit is required"}
	}
	for _, s := range r.Subreddits {
		if !ValidSubredditName(s) {
			return &ConfigError{Field: "subreddits", Reason: fmt.Sprintf("invalid subreddit name %q", s)}
		}
	}
	if r.Count < 1 {
		return &ConfigError{Field: "count", Reason: fmt.Sprintf("must be positive, got %d", r.Count)}
	}
	if _, ok := ParseTimeFilter(string(r.TimeFilter)); !ok {
		return &ConfigError{Field: "time_filter", Reason: fmt.Sprintf("unknown value %q", r.TimeFilter)}
	}
	switch r.Sort {
	case SortHot, SortTop:
	default:
		return &ConfigError{Field: "sort", Reason: fmt.Sprintf("unknown value %q", r.Sort)}
	}
	switch r.MediaType {
	case MediaAny, MediaImage, MediaVideo:
	default:
		return &ConfigError{Field: "media_type", Reason: fmt.Sprintf("unknown value %q", r.MediaType)}
	}
	if r.TimeFilter != TimeNone && r.Sort != SortTop {
		return &ConfigError{Field: "sort", Reason: "a time filter requires sort=top"}
	}
	return nil
}

// Label is a short human description used in logs and reports.
func (r FetchRequest) Label() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Subreddits, "+"))
	b.WriteString(" sort=" + string(r.Sort))
	if r.TimeFilter != TimeNone {
		b.WriteString(" t=" + string(r.TimeFilter))
	}
	if len(r.SearchTerms) > 0 {
		b.WriteString(" terms=" + strings.Join(r.SearchTerms, ","))
	}
	fmt.Fprintf(&b, " n=%d type=%s", r.Count, r.MediaType)
	return b.String()
}
