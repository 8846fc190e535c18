package extractor

import (
	"context"
	"errors"
	"fmt"
)

// MediaKind represents the type of media a post carries
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
)

// MediaInfo is the normalized result of resolving a URL.
// DownloadLink is usually a short-lived signed URL and must never be cached.
type MediaInfo struct {
	Platform     string    `json:"platform"`
	ID           string    `json:"id,omitempty"`
	Title        string    `json:"title"`
	MediaKind    MediaKind `json:"media_kind,omitempty"`
	DownloadLink string    `json:"download_link,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Owner        string    `json:"owner,omitempty"`
	Duration     int       `json:"duration,omitempty"` // seconds
	FileURL      string    `json:"file_url,omitempty"`
}

// Resolver turns a URL into MediaInfo
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*MediaInfo, error)
}

// Downloader materializes a URL into dir and returns the final file path
type Downloader interface {
	Download(ctx context.Context, rawURL, dir string) (string, error)
}

// Kind classifies failures so that callers can map them to responses
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindAuthRequired     Kind = "auth_required"
	KindExtractionFailed Kind = "extraction_failed"
	KindNotConfigured    Kind = "not_configured"
)

// Error carries a Kind, a user-facing message and the underlying cause
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidInput builds a KindInvalidInput error
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

// AuthRequired builds a KindAuthRequired error
func AuthRequired(msg string, err error) *Error {
	return &Error{Kind: KindAuthRequired, Msg: msg, Err: err}
}

// ExtractionFailed builds a KindExtractionFailed error
func ExtractionFailed(msg string, err error) *Error {
	return &Error{Kind: KindExtractionFailed, Msg: msg, Err: err}
}

// NotConfigured builds a KindNotConfigured error
func NotConfigured(msg string) *Error {
	return &Error{Kind: KindNotConfigured, Msg: msg}
}

// KindOf returns the Kind of err, or KindExtractionFailed for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExtractionFailed
}

// IsKind reports whether err carries the given Kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the text to show an end user. Auth and input errors
// show only their own message; everything else keeps the diagnostic.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" && e.Kind != KindExtractionFailed {
		return e.Msg
	}
	return err.Error()
}
