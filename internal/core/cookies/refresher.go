package cookies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Source pulls cookies for a domain from somewhere outside the process
type Source interface {
	Cookies(ctx context.Context, domain string) ([]Cookie, error)
}

// ErrNoCookies is returned when the source had nothing for the domain
var ErrNoCookies = errors.New("no cookies found for domain")

// Refresher periodically rewrites the store from a Source
type Refresher struct {
	store    *Store
	source   Source
	domains  []string
	interval time.Duration
	log      *log.Logger
	now      func() time.Time
}

// NewRefresher creates a refresher. domain is a comma-separated list, each
// entry matched as a suffix.
func NewRefresher(store *Store, source Source, domain string, interval time.Duration, logger *log.Logger) *Refresher {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Refresher{
		store:    store,
		source:   source,
		domains:  SplitDomains(domain),
		interval: interval,
		log:      logger,
		now:      time.Now,
	}
}

// Run refreshes once immediately and then on every tick until ctx ends.
// Failures are logged and swallowed; the previous file stays in place.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refreshAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			r.refreshAndLog(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	n, err := r.Refresh(ctx)
	if err != nil {
		if r.log != nil {
			r.log.Warn("cookie refresh failed, keeping previous file", "domains", r.domains, "error", err)
		}
		return
	}
	if r.log != nil {
		r.log.Info("cookies refreshed", "domains", r.domains, "count", n, "path", r.store.Path())
	}
	r.warnExpired()
}

// Refresh performs a single pull-and-replace and returns the number of
// cookies written. Every domain must yield cookies or the file is left alone.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	var rows []Cookie
	for _, domain := range r.domains {
		got, err := r.source.Cookies(ctx, domain)
		if err != nil {
			return 0, fmt.Errorf("read cookies for %s: %w", domain, err)
		}
		got = FilterDomain(got, domain)
		if len(got) == 0 {
			return 0, fmt.Errorf("%s: %w", domain, ErrNoCookies)
		}
		rows = append(rows, got...)
	}

	if err := r.store.Write(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *Refresher) warnExpired() {
	if r.log == nil {
		return
	}
	f, err := r.store.Freshness(r.now())
	if err != nil || f.Expired == 0 {
		return
	}
	r.log.Warn("cookie file contains expired cookies", "expired", f.Expired, "total", f.Total)
}

// SplitDomains parses a comma-separated domain list, dropping blanks and
// duplicates. An empty list yields a single empty entry, which matches
// every cookie.
func SplitDomains(list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, d := range strings.Split(list, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// FilterDomain keeps cookies whose domain equals or is a subdomain of domain
func FilterDomain(rows []Cookie, domain string) []Cookie {
	want := strings.TrimPrefix(strings.ToLower(domain), ".")
	if want == "" {
		return rows
	}
	out := rows[:0:0]
	for _, c := range rows {
		d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if d == want || strings.HasSuffix(d, "."+want) {
			out = append(out, c)
		}
	}
	return out
}
