package collector

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/mediaurl"
)

var flairEmoji = regexp.MustCompile(`:[^:\s]+:`)

// CleanFlair strips :emoji: tokens from a flair and maps "none" to empty.
func CleanFlair(flair string) string {
	flair = strings.TrimSpace(flairEmoji.ReplaceAllString(flair, ""))
	flair = strings.Join(strings.Fields(flair), " ")
	if strings.EqualFold(flair, "none") {
		return ""
	}
	return flair
}

func permalink(path, id string) string {
	switch {
	case strings.HasPrefix(path, "http"):
		return path
	case path != "":
		return "https://www.reddit.com" + path
	case id != "":
		return "https://www.reddit.com/comments/" + id
	}
	return ""
}

func unixTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// extFor picks a file extension for a gallery item from its URL, then its MIME type.
func extFor(rawURL, mime string) string {
	if ext := mediaurl.Ext(mediaurl.Normalize(rawURL)); mediaurl.KindForExt(ext) != domain.KindUnknown {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	if ext := mediaurl.ExtForMIME(mime); ext != "" {
		return ext
	}
	return ".jpg"
}
