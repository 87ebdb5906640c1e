package extract

import (
	"hash/fnv"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"igharvest/pkg/models"
)

var shortcodePattern = regexp.MustCompile(`/(?:p|reel)/([A-Za-z0-9_-]+)`)

// Normalize strips the query string, the fragment and trailing slashes.
// It is the de-duplication key for candidate URLs and is idempotent.
func Normalize(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

// IsCandidate reports whether href points at a post or a reel
func IsCandidate(href string) bool {
	return strings.Contains(href, "/p/") || strings.Contains(href, "/reel/")
}

// KindOf infers the content kind from the URL path
func KindOf(u string) models.ContentKind {
	switch {
	case strings.Contains(u, "/reel/"):
		return models.KindReel
	case strings.Contains(u, "/p/"):
		return models.KindPost
	default:
		return models.KindUnknown
	}
}

// Shortcode returns the platform short code of a post URL. URLs without one
// get a stable hash of the URL instead.
func Shortcode(u string) string {
	if m := shortcodePattern.FindStringSubmatch(u); m != nil {
		code := m[1]
		if len(code) > models.MaxExternalIDLength {
			code = code[:models.MaxExternalIDLength]
		}
		return code
	}
	h := fnv.New32a()
	h.Write([]byte(u))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// absolute resolves href against base; unparsable input is returned as is
func absolute(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
