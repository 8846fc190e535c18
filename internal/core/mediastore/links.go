package mediastore

import (
	"strings"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

// Namespace the /file endpoint serves from
const YouTube = "youtube"

// Cacheable reports whether info can be materialized under the YouTube namespace
func Cacheable(info *extractor.MediaInfo) bool {
	return info != nil && strings.EqualFold(info.Platform, YouTube) && ValidateID(info.ID) == nil
}

// FileLink returns the public /file/<id> link for info, or "" when the
// result is not cacheable or no public base is known.
func FileLink(publicBase string, info *extractor.MediaInfo) string {
	if publicBase == "" || !Cacheable(info) {
		return ""
	}
	return strings.TrimRight(publicBase, "/") + "/file/" + info.ID
}

// NamespaceFor maps a platform name to a directory-safe namespace
func NamespaceFor(platform string) string {
	ns := strings.ToLower(strings.TrimSpace(platform))
	ns = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, ns)
	if ns == "" {
		return "generic"
	}
	return ns
}
