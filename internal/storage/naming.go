package storage

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

const (
	createdLayout = "20060102_150405"
	zeroCreated   = "00000000_000000"
	slugFallback  = "post"
)

// Slugify lowercases s and collapses every run of non [a-z0-9] characters into
// a single underscore. The result is at most max bytes and never empty.
func Slugify(s string, max int) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	slug := b.String()
	if max > 0 && len(slug) > max {
		slug = strings.TrimRight(slug[:max], "_")
	}
	if slug == "" {
		return slugFallback
	}
	return slug
}

// FormatCreated renders a creation time for filenames.
func FormatCreated(t time.Time) string {
	if t.IsZero() {
		return zeroCreated
	}
	return t.UTC().Format(createdLayout)
}

// NameParams configures BuildFilename.
type NameParams struct {
	Template   string
	SlugMaxLen int
	MaxLen     int
}

// BuildFilename expands the template for one artifact. When the result is
// longer than MaxLen the slug is shortened first, then the stem is cut.
func BuildFilename(np NameParams, p domain.Post, m domain.ResolvedMedia) string {
	ext := strings.ToLower(m.Ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	index := ""
	if m.GalleryIndex > 0 {
		index = strconv.Itoa(m.GalleryIndex)
	}

	expand := func(slug string) string {
		r := strings.NewReplacer(
			"{created}", FormatCreated(p.CreatedUTC),
			"{id}", safeComponent(p.ID),
			"{subreddit}", safeComponent(strings.ToLower(p.Subreddit)),
			"{slug}", slug,
			"{index}", index,
			"{ext}", ext,
		)
		return r.Replace(np.Template)
	}

	slug := Slugify(p.Title, np.SlugMaxLen)
	name := expand(slug)
	if np.MaxLen <= 0 || len(name) <= np.MaxLen {
		return name
	}

	if over := len(name) - np.MaxLen; over < len(slug) {
		name = expand(Slugify(slug[:len(slug)-over], 0))
		if len(name) <= np.MaxLen {
			return name
		}
	}
	stem := strings.TrimSuffix(name, ext)
	keep := np.MaxLen - len(ext)
	if keep < 1 {
		keep = 1
	}
	if len(stem) > keep {
		stem = strings.TrimRight(stem[:keep], "_")
	}
	return stem + ext
}

// safeComponent strips path separators and dots from platform-provided values.
func safeComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', 0:
			return '_'
		}
		return r
	}, s)
}

// UniquePath returns desired if it is free, otherwise the first free
// "stem(n).ext" with n starting at 2.
func UniquePath(desired string, exists func(string) bool) string {
	if !exists(desired) {
		return desired
	}
	ext := filepath.Ext(desired)
	stem := strings.TrimSuffix(desired, ext)
	for n := 2; ; n++ {
		candidate := stem + "(" + strconv.Itoa(n) + ")" + ext
		if !exists(candidate) {
			return candidate
		}
	}
}

// CollectionLabel names the directory shared by every artifact of one request.
func CollectionLabel(req domain.FetchRequest) string {
	parts := []string{strings.Join(req.Subreddits, "+")}
	parts = append(parts, req.SearchTerms...)
	return Slugify(strings.Join(parts, " "), 80)
}
