package extractor

import (
	"context"
	"errors"
	"regexp"
)

const (
	instagramPlatform = "Instagram"
	noCaption         = "No caption"
)

var reelRe = regexp.MustCompile(`reel/([A-Za-z0-9_-]+)/`)

// Post is the subset of Instagram post metadata the resolver needs
type Post struct {
	Shortcode     string
	IsVideo       bool
	VideoURL      string
	DisplayURL    string
	Caption       string
	OwnerUsername string
	Duration      float64
}

// PostFetcher loads a post by shortcode
type PostFetcher interface {
	FetchPost(ctx context.Context, shortcode string) (*Post, error)
}

// InstagramResolver handles reel URLs. Only reel/<shortcode>/ paths are
// understood; /p/ posts are rejected as invalid input.
type InstagramResolver struct {
	posts PostFetcher
}

// NewInstagramResolver creates a resolver backed by the given fetcher
func NewInstagramResolver(posts PostFetcher) *InstagramResolver {
	return &InstagramResolver{posts: posts}
}

// Shortcode extracts the reel shortcode from rawURL
func Shortcode(rawURL string) (string, bool) {
	m := reelRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (r *InstagramResolver) Resolve(ctx context.Context, rawURL string) (*MediaInfo, error) {
	shortcode, ok := Shortcode(rawURL)
	if !ok {
		return nil, InvalidInput("not a recognized reel URL")
	}

	post, err := r.posts.FetchPost(ctx, shortcode)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, ExtractionFailed("instagram", err)
	}

	info := &MediaInfo{
		Platform: instagramPlatform,
		Title:    post.Caption,
		Owner:    post.OwnerUsername,
		Duration: int(post.Duration),
	}
	if info.Title == "" {
		info.Title = noCaption
	}

	if post.IsVideo {
		info.MediaKind = MediaKindVideo
		info.DownloadLink = post.VideoURL
		info.Thumbnail = post.DisplayURL
	} else {
		info.MediaKind = MediaKindImage
		info.DownloadLink = post.DisplayURL
	}

	return info, nil
}
