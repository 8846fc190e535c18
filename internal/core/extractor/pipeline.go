package extractor

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Pipeline classifies a URL and hands it to exactly one of the two resolvers
type Pipeline struct {
	instagram Resolver
	generic   Resolver
	timeout   time.Duration
	log       *log.Logger
}

// NewPipeline wires the two providers. A zero timeout disables the bound.
func NewPipeline(instagram, generic Resolver, timeout time.Duration, logger *log.Logger) *Pipeline {
	return &Pipeline{instagram: instagram, generic: generic, timeout: timeout, log: logger}
}

// Resolve classifies rawURL and resolves it within the configured timeout
func (p *Pipeline) Resolve(ctx context.Context, rawURL string) (*MediaInfo, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, InvalidInput("url is required")
	}

	route := Classify(rawURL)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		info *MediaInfo
		err  error
	)
	switch route.Provider {
	case ProviderInstagram:
		info, err = p.instagram.Resolve(ctx, route.URL)
	default:
		info, err = p.generic.Resolve(ctx, route.URL)
	}

	if p.log != nil {
		if err != nil {
			p.log.Warn("resolve failed", "provider", route.Provider, "url", route.URL, "kind", KindOf(err), "error", err, "duration", time.Since(start).Round(time.Millisecond))
		} else {
			p.log.Info("resolved", "provider", route.Provider, "platform", info.Platform, "id", info.ID, "duration", time.Since(start).Round(time.Millisecond))
		}
	}
	return info, err
}
