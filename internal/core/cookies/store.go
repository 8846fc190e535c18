package cookies

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// headerWindow is how much of the file Valid inspects for a format marker.
const headerWindow = 200

// Store owns the credential file. The refresher is its only writer;
// resolvers only read.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore creates a store for the cookie file at path
func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

// Path returns the configured location, whether or not a file is there
func (s *Store) Path() string { return s.path }

// Valid reports whether a plausible cookie file is present: it exists and
// its first bytes carry a Netscape header. Expiry is not checked.
func (s *Store) Valid() bool {
	if s.path == "" {
		return false
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, headerWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	head := buf[:n]
	for _, m := range markers {
		if bytes.Contains(head, []byte(m)) {
			return true
		}
	}
	return false
}

// CredentialPath returns the file path when the file is usable. It never
// touches the network.
func (s *Store) CredentialPath() (string, bool) {
	if !s.Valid() {
		return "", false
	}
	return s.path, true
}

// Read parses the current cookie file
func (s *Store) Read() ([]Cookie, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseNetscape(f)
}

// HTTPCookies returns the stored cookies for outbound requests. A missing
// or invalid file yields no cookies and no error.
func (s *Store) HTTPCookies() ([]*http.Cookie, error) {
	if !s.Valid() {
		return nil, nil
	}
	rows, err := s.Read()
	if err != nil {
		return nil, err
	}
	return ToHTTP(rows), nil
}

// Write replaces the cookie file atomically: the rows go to a temp file in
// the same directory which is then renamed over the old file.
func (s *Store) Write(rows []Cookie) error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()

	if err := WriteNetscape(tmp, rows); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to sync cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Chmod(tmpName, 0600); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

// Freshness summarizes the stored cookies
type Freshness struct {
	Total   int
	Expired int
	ModTime time.Time
}

// Freshness counts expired cookies. It is informational only and does not
// change what Valid reports.
func (s *Store) Freshness(now time.Time) (Freshness, error) {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		return Freshness{}, err
	}
	rows, err := s.Read()
	if err != nil {
		return Freshness{}, err
	}
	f := Freshness{Total: len(rows), ModTime: info.ModTime()}
	for _, c := range rows {
		if c.Expired(now) {
			f.Expired++
		}
	}
	return f, nil
}
