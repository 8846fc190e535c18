package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	instagramBaseURL = "https://www.instagram.com"
	instagramAppID   = "936619743392459"
	// persisted query id for PolarisPostActionLoadPostQueryQuery
	instagramDocID = "8845758582119845"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodySize    = 8 << 20
)

// Credentials supplies optional session cookies for outbound requests
type Credentials interface {
	HTTPCookies() ([]*http.Cookie, error)
}

// InstagramClient fetches post metadata from Instagram's web GraphQL endpoint
type InstagramClient struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
}

// InstagramOption customizes an InstagramClient
type InstagramOption func(*InstagramClient)

// WithBaseURL points the client at another host (tests, proxies)
func WithBaseURL(base string) InstagramOption {
	return func(c *InstagramClient) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) InstagramOption {
	return func(c *InstagramClient) { c.httpClient = hc }
}

// NewInstagramClient creates a client. creds may be nil.
func NewInstagramClient(creds Credentials, opts ...InstagramOption) *InstagramClient {
	c := &InstagramClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    instagramBaseURL,
		creds:      creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InstagramClient) FetchPost(ctx context.Context, shortcode string) (*Post, error) {
	form := url.Values{}
	form.Set("variables", fmt.Sprintf(`{"shortcode":%q,"fetch_tagged_user_count":null,"hoisted_comment_id":null,"hoisted_reply_id":null}`, shortcode))
	form.Set("doc_id", instagramDocID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql/query", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ExtractionFailed("instagram", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-IG-App-ID", instagramAppID)
	req.Header.Set("Referer", instagramBaseURL+"/reel/"+shortcode+"/")
	c.addCookies(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ExtractionFailed("instagram request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, ExtractionFailed("instagram response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, AuthRequired("instagram requires login, update credentials", fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, ExtractionFailed("instagram", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	return parsePost(shortcode, body)
}

func parsePost(shortcode string, body []byte) (*Post, error) {
	if !gjson.ValidBytes(body) {
		return nil, ExtractionFailed("instagram", fmt.Errorf("unexpected response: %s", truncate(string(body), 200)))
	}

	root := gjson.ParseBytes(body)
	if root.Get("require_login").Bool() {
		return nil, AuthRequired("instagram requires login, update credentials", nil)
	}

	media := root.Get("data.xdt_shortcode_media")
	if !media.Exists() || media.Type == gjson.Null {
		return nil, ExtractionFailed("instagram", fmt.Errorf("post %s not found or private", shortcode))
	}

	return &Post{
		Shortcode:     shortcode,
		IsVideo:       media.Get("is_video").Bool(),
		VideoURL:      media.Get("video_url").String(),
		DisplayURL:    media.Get("display_url").String(),
		Caption:       media.Get("edge_media_to_caption.edges.0.node.text").String(),
		OwnerUsername: media.Get("owner.username").String(),
		Duration:      media.Get("video_duration").Float(),
	}, nil
}

func (c *InstagramClient) addCookies(req *http.Request) {
	if c.creds == nil {
		return
	}
	cookies, err := c.creds.HTTPCookies()
	if err != nil {
		return
	}
	for _, ck := range cookies {
		if !strings.HasSuffix(strings.TrimPrefix(ck.Domain, "."), "instagram.com") {
			continue
		}
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		if ck.Name == "csrftoken" {
			req.Header.Set("X-CSRFToken", ck.Value)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
