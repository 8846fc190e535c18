package cookies

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header is written as the first line of every cookie file we produce.
const Header = "# Netscape HTTP Cookie File"

// markers recognized by Valid; yt-dlp accepts both spellings
var markers = []string{"# Netscape HTTP Cookie File", "# HTTP Cookie File"}

// httpOnlyPrefix is how curl and yt-dlp flag HttpOnly cookies in the domain column
const httpOnlyPrefix = "#HttpOnly_"

// Cookie is one row of a Netscape cookie file
type Cookie struct {
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	Expires  int64 // unix seconds, 0 for session cookies
	Name     string
	Value    string
}

// IncludeSubdomains mirrors the second column: TRUE when the domain starts with a dot
func (c Cookie) IncludeSubdomains() bool {
	return strings.HasPrefix(c.Domain, ".")
}

// Expired reports whether a persistent cookie has passed its expiry
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires < now.Unix()
}

// WriteNetscape renders cookies in the tab-separated Netscape format:
// domain, subdomain flag, path, secure flag, expiry, name, value.
func WriteNetscape(w io.Writer, cookies []Cookie) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n# This file was generated by mediagrab. Edit at your own risk.\n\n", Header)

	for _, c := range cookies {
		domain := c.Domain
		if c.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain,
			boolField(c.IncludeSubdomains()),
			path,
			boolField(c.Secure),
			c.Expires,
			c.Name,
			c.Value,
		)
	}
	return bw.Flush()
}

// ParseNetscape reads cookie rows, skipping comments and malformed lines.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var out []Cookie
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HTTPOnly: httpOnly,
			Expires:  expires,
			Name:     fields[5],
			Value:    fields[6],
		})
	}
	return out, sc.Err()
}

// ToHTTP converts rows into net/http cookies
func ToHTTP(cookies []Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(c.Expires, 0)
		}
		out = append(out, hc)
	}
	return out
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
