// Package request turns command tokens and CLI flags into a validated fetch request.
package request

import (
	"errors"
	"flag"
	"strconv"
	"strings"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// ErrNoSubreddits is returned when the tokens name no subreddit at all.
var ErrNoSubreddits = errors.New("no subreddits provided, example: /r year kpop sana 5 image")

// ParseCommand reads chat-style tokens such as "/r year kpop,aww sana 5 image".
//
// An optional leading time filter is followed by a comma separated subreddit list. Of the
// remaining tokens, digits set the count, image/video set the media type and everything
// else is a search term.
func ParseCommand(tokens []string) (domain.FetchRequest, error) {
	var rest []string
	for _, t := range tokens {
		switch strings.TrimSpace(t) {
		case "", "/r", "r", "r/":
			continue
		}
		rest = append(rest, strings.TrimSpace(t))
	}

	req := domain.FetchRequest{Sort: domain.SortHot}
	if len(rest) > 0 {
		if tf, ok := domain.ParseTimeFilter(rest[0]); ok && tf != domain.TimeNone {
			req.TimeFilter = tf
			req.Sort = domain.SortTop
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return domain.FetchRequest{}, &domain.ConfigError{Field: "subreddits", Reason: ErrNoSubreddits.Error()}
	}

	req.Subreddits = SplitList(rest[0])
	for _, t := range rest[1:] {
		low := strings.ToLower(t)
		if isDigits(low) {
			n, err := strconv.Atoi(low)
			if err != nil || n == 0 {
				return domain.FetchRequest{}, &domain.ConfigError{Field: "count", Reason: "must be a positive number, got " + t}
			}
			req.Count = n
			continue
		}
		switch domain.MediaType(low) {
		case domain.MediaImage, domain.MediaVideo:
			req.MediaType = domain.MediaType(low)
			continue
		}
		req.SearchTerms = append(req.SearchTerms, t)
	}
	return finish(req)
}

// Flags is the flag form of a request.
type Flags struct {
	Subs  string
	Time  string
	Sort  string
	Count int
	Type  string
	Terms []string
}

// Bind registers the request flags on fs.
func Bind(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Subs, "subs", "", "Comma-separated subreddits")
	fs.StringVar(&f.Time, "time", "", "Time filter for top listings: all, year, month, week, day")
	fs.StringVar(&f.Sort, "sort", string(domain.SortHot), "Sort mode: hot or top")
	fs.IntVar(&f.Count, "count", 1, "Number of media files to download")
	fs.StringVar(&f.Type, "type", string(domain.MediaAny), "Media type: image, video or any")
	return f
}

// FromFlags builds a request from parsed flags. A time filter implies sort=top.
func FromFlags(f Flags) (domain.FetchRequest, error) {
	subs := SplitList(f.Subs)
	if len(subs) == 0 {
		return domain.FetchRequest{}, &domain.ConfigError{Field: "subreddits", Reason: "provide subreddits via command tokens or --subs"}
	}
	tf, ok := domain.ParseTimeFilter(f.Time)
	if !ok {
		return domain.FetchRequest{}, &domain.ConfigError{Field: "time_filter", Reason: "unknown value " + strconv.Quote(f.Time)}
	}
	req := domain.FetchRequest{
		Subreddits:  subs,
		TimeFilter:  tf,
		Sort:        domain.Sort(strings.ToLower(f.Sort)),
		SearchTerms: f.Terms,
		Count:       f.Count,
		MediaType:   domain.MediaType(strings.ToLower(f.Type)),
	}
	if f.Count == 0 {
		// An explicit zero is invalid, not a request for the default.
		return domain.FetchRequest{}, &domain.ConfigError{Field: "count", Reason: "must be positive, got 0"}
	}
	return finish(req)
}

// SplitList splits a comma separated subreddit list, dropping empties and r/ prefixes.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "/")
		part = strings.TrimPrefix(strings.TrimPrefix(part, "r/"), "R/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func finish(req domain.FetchRequest) (domain.FetchRequest, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.FetchRequest{}, err
	}
	return req, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
