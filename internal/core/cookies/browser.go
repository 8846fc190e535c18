package cookies

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserSource reads cookies out of a local Chromium profile. The profile
// is opened headless, the domain's home page is visited so that the session
// gets a chance to rotate, and then the cookie jar is dumped.
type BrowserSource struct {
	profileDir string
	bin        string
	timeout    time.Duration
}

// NewBrowserSource creates a source for the given user data dir. bin may
// be empty; ROD_BROWSER and rod's own lookup are tried next.
func NewBrowserSource(profileDir, bin string) *BrowserSource {
	return &BrowserSource{
		profileDir: profileDir,
		bin:        bin,
		timeout:    90 * time.Second,
	}
}

func (b *BrowserSource) Cookies(ctx context.Context, domain string) ([]Cookie, error) {
	if b.profileDir == "" {
		return nil, fmt.Errorf("no browser profile configured")
	}
	if _, err := os.Stat(b.profileDir); err != nil {
		return nil, fmt.Errorf("browser profile: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	l := b.createLauncher().Context(ctx)
	defer l.Cleanup()

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	if visit := b.homePage(domain); visit != "" {
		page, err := stealth.Page(browser)
		if err == nil {
			// best effort, an offline host still has a usable jar
			if err := page.Navigate(visit); err == nil {
				_ = page.WaitLoad()
			}
			_ = page.Close()
		}
	}

	raw, err := browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return fromProto(raw), nil
}

func (b *BrowserSource) homePage(domain string) string {
	host := strings.TrimPrefix(domain, ".")
	if host == "" {
		return ""
	}
	if strings.Count(host, ".") == 1 {
		host = "www." + host
	}
	return "https://" + host + "/"
}

func (b *BrowserSource) createLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(true).
		UserDataDir(b.profileDir).
		Leakless(false).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("no-first-run")

	bin := b.bin
	if bin == "" {
		bin = os.Getenv("ROD_BROWSER")
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	return l
}

func fromProto(raw []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		var expires int64
		if !c.Session && c.Expires > 0 {
			expires = int64(c.Expires)
		}
		out = append(out, Cookie{
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  expires,
			Name:     c.Name,
			Value:    c.Value,
		})
	}
	return out
}
