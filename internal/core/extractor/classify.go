package extractor

import (
	"regexp"
	"strings"
)

// Provider names the resolution pipeline that handles a URL
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderInstagram
)

func (p Provider) String() string {
	switch p {
	case ProviderInstagram:
		return "instagram"
	default:
		return "generic"
	}
}

// instagramMarker is matched as a plain substring, no URL parsing.
const instagramMarker = "instagram.com"

var (
	shortsRe     = regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]+)/?(\?)?`)
	shortsRepl   = "youtube.com/watch?v=$1"
	trailingAmpR = regexp.MustCompile(`(watch\?v=[A-Za-z0-9_-]+)&$`)
)

// Route is the outcome of classifying a URL
type Route struct {
	Provider Provider
	URL      string
}

// Classify picks the provider for rawURL. Non-Instagram URLs get the
// youtube.com shorts and mobile-host rewrites; other hosts, youtu.be
// included, pass through untouched,
// so malformed input fails later inside the extractor.
func Classify(rawURL string) Route {
	if strings.Contains(rawURL, instagramMarker) {
		return Route{Provider: ProviderInstagram, URL: rawURL}
	}
	return Route{Provider: ProviderGeneric, URL: normalize(rawURL)}
}

func normalize(rawURL string) string {
	u := strings.Replace(rawURL, "://m.youtube.com", "://www.youtube.com", 1)
	// a query string after the shorts id joins the watch query with '&'
	u = shortsRe.ReplaceAllStringFunc(u, func(m string) string {
		out := shortsRe.ReplaceAllString(m, shortsRepl)
		if strings.HasSuffix(m, "?") {
			out += "&"
		}
		return out
	})
	return trailingAmpR.ReplaceAllString(u, "$1")
}

// WatchURL is the canonical page for a YouTube video id
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
