// Package mediaurl classifies and normalizes post URLs without network access.
package mediaurl

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	videoExts = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".m4v": true}

	redgifsID = regexp.MustCompile(`(?i)/(?:watch|ifr)/([a-z0-9]+)`)
	galleryID = regexp.MustCompile(`(?i)/gallery/([a-z0-9]+)`)
)

// deadHosts never serve media any more.
var deadHosts = []string{"gfycat.com"}

// ExternalHosts serve media behind a page or player and need an extractor.
var ExternalHosts = []string{
	"youtube.com", "youtu.be", "twitch.tv", "kick.com", "x.com", "twitter.com",
	"redgifs.com", "imgur.com", "streamable.com",
}

// Normalize drops fragments, unescapes HTML entities and canonicalizes a few hosts.
func Normalize(raw string) string {
	raw = strings.TrimSpace(html.UnescapeString(raw))
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	host := strings.ToLower(u.Hostname())

	switch {
	case hostIs(host, "redgifs.com"):
		id := ""
		if m := redgifsID.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		} else {
			segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
			if len(segs) > 0 {
				id = segs[len(segs)-1]
			}
		}
		if id == "" {
			u.RawQuery = ""
			return u.String()
		}
		return "https://www.redgifs.com/watch/" + strings.ToLower(id)
	case hostIs(host, "imgur.com") && strings.EqualFold(path.Ext(u.Path), ".gifv"):
		u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path)) + ".mp4"
	}
	return u.String()
}

// Host returns the lowercased hostname of raw, or "" if it does not parse.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Ext returns the lowercased extension of the URL path, including the dot.
func Ext(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

// KindForExt maps a file extension to a media kind.
func KindForExt(ext string) domain.MediaKind {
	ext = strings.ToLower(ext)
	switch {
	case imageExts[ext]:
		return domain.KindImage
	case videoExts[ext]:
		return domain.KindVideo
	}
	return domain.KindUnknown
}

// KindForMIME maps a content type to a media kind.
func KindForMIME(m string) domain.MediaKind {
	m = strings.ToLower(m)
	switch {
	case strings.HasPrefix(m, "image/"):
		return domain.KindImage
	case strings.HasPrefix(m, "video/"):
		return domain.KindVideo
	}
	return domain.KindUnknown
}

// ExtForMIME maps a gallery/content MIME type to a file extension.
func ExtForMIME(m string) string {
	switch strings.ToLower(m) {
	case "image/jpg", "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4", "image/mp4":
		return ".mp4"
	}
	return ""
}

// IsRedditVideo reports whether raw points at the native video host.
func IsRedditVideo(raw string) bool {
	return hostIs(Host(raw), "v.redd.it")
}

// IsGallery reports whether raw is a native gallery link.
func IsGallery(raw string) bool {
	h := Host(raw)
	return (hostIs(h, "reddit.com") || h == "") && galleryID.MatchString(raw)
}

// GalleryID extracts the post id from a gallery link.
func GalleryID(raw string) string {
	if m := galleryID.FindStringSubmatch(raw); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// IsDirect reports whether raw can be downloaded as-is.
func IsDirect(raw string) bool {
	h := Host(raw)
	if hostIs(h, "i.redd.it") || hostIs(h, "preview.redd.it") || hostIs(h, "external-preview.redd.it") {
		return true
	}
	return KindForExt(Ext(raw)) != domain.KindUnknown
}

// IsExternal reports whether raw lives on a host from ExternalHosts.
func IsExternal(raw string) bool {
	h := Host(raw)
	for _, d := range ExternalHosts {
		if hostIs(h, d) {
			return true
		}
	}
	return false
}

// IsMedia reports whether raw looks like it leads to media at all.
func IsMedia(raw string) bool {
	if raw == "" || IsDead(raw) {
		return false
	}
	return IsRedditVideo(raw) || IsGallery(raw) || IsDirect(raw) || IsExternal(raw)
}

// IsDead reports whether the host is known to no longer serve media.
func IsDead(raw string) bool {
	h := Host(raw)
	for _, d := range deadHosts {
		if hostIs(h, d) {
			return true
		}
	}
	return false
}

// GuessKind is the cheap pre-resolution kind of a post. KindUnknown means
// only full resolution can tell.
func GuessKind(p domain.Post) domain.MediaKind {
	switch {
	case p.IsVideo || p.Video != nil || IsRedditVideo(p.URL):
		return domain.KindVideo
	case p.IsGallery || IsGallery(p.URL):
		return galleryKind(p.Gallery)
	}
	if k := KindForExt(Ext(Normalize(p.URL))); k != domain.KindUnknown {
		return k
	}
	if hostIs(Host(p.URL), "i.redd.it") {
		return domain.KindImage
	}
	return domain.KindUnknown
}

// galleryKind is the shared kind of the valid items, KindUnknown when they are mixed,
// and KindImage when no item metadata is known yet.
func galleryKind(items []domain.GalleryItem) domain.MediaKind {
	kind := domain.KindUnknown
	for _, it := range items {
		if !it.Valid() {
			continue
		}
		switch kind {
		case domain.KindUnknown:
			kind = it.Kind
		case it.Kind:
		default:
			return domain.KindUnknown
		}
	}
	if kind == domain.KindUnknown {
		return domain.KindImage
	}
	return kind
}

// hostIs reports whether host equals d or is a subdomain of it.
func hostIs(host, d string) bool {
	return host == d || strings.HasSuffix(host, "."+d)
}

// HostMatches is hostIs for callers outside the package.
func HostMatches(host, d string) bool {
	return hostIs(strings.ToLower(host), d)
}
