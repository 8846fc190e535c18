package mediastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

const fileExt = ".mp4"

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{5,}$`)

// ValidateID guards every path built from a client-supplied id
func ValidateID(id string) error {
	if !idRe.MatchString(id) {
		return extractor.InvalidInput("invalid video id")
	}
	return nil
}

// Key scopes a provider id to its namespace, since ids are provider-local
type Key struct {
	Namespace string
	ID        string
}

func (k Key) String() string { return k.Namespace + "/" + k.ID }

// Entry describes a cached file
type Entry struct {
	Key     Key
	Path    string
	Size    int64
	ModTime time.Time
}

// Store keeps downloaded media under root/<namespace>/<id>.mp4. Files are
// served forever once present; the only way out is LRU eviction.
type Store struct {
	fs         afero.Fs
	root       string
	downloader extractor.Downloader
	group      singleflight.Group
	recent     *lru.Cache[Key, string] // nil when unbounded
	timeout    time.Duration
	log        *log.Logger
}

// Options tunes a Store
type Options struct {
	// MaxEntries bounds the LRU; <= 0 disables eviction
	MaxEntries int
	// DownloadTimeout bounds a single materialization; 0 means none
	DownloadTimeout time.Duration
}

// New creates a store rooted at root
func New(fs afero.Fs, root string, downloader extractor.Downloader, opts Options, logger *log.Logger) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Store{fs: fs, root: root, downloader: downloader, timeout: opts.DownloadTimeout, log: logger}
	maxEntries := opts.MaxEntries

	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	if maxEntries > 0 {
		cache, err := lru.NewWithEvict(maxEntries, s.onEvict)
		if err != nil {
			return nil, err
		}
		s.recent = cache
		if err := s.seed(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the storage root
func (s *Store) Root() string { return s.root }

// Path returns where key lives, whether or not it exists
func (s *Store) Path(key Key) string {
	return filepath.Join(s.root, key.Namespace, key.ID+fileExt)
}

// EnsureLocal returns the local file for key, downloading canonicalURL on a
// miss. Concurrent misses for the same key share one download; each caller
// still honors its own ctx.
func (s *Store) EnsureLocal(ctx context.Context, key Key, canonicalURL string) (string, error) {
	if err := ValidateID(key.ID); err != nil {
		return "", err
	}
	if err := validateNamespace(key.Namespace); err != nil {
		return "", err
	}

	path := s.Path(key)
	if s.exists(path) {
		s.touch(key, path)
		return path, nil
	}

	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		// another flight may have finished between the check and here
		if s.exists(path) {
			return path, nil
		}
		// detached from the first caller so its cancellation cannot
		// abort a download other callers are waiting on
		return s.materialize(context.WithoutCancel(ctx), key, canonicalURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		s.touch(key, path)
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", extractor.ExtractionFailed("download cancelled", ctx.Err())
	}
}

func (s *Store) materialize(ctx context.Context, key Key, canonicalURL string) (string, error) {
	if s.downloader == nil {
		return "", extractor.NotConfigured("no downloader configured")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	dir := filepath.Join(s.root, key.Namespace)
	got, err := s.downloader.Download(ctx, canonicalURL, dir)
	if err != nil {
		return "", err
	}

	final := s.Path(key)
	if filepath.Clean(got) != final {
		if err := s.fs.Rename(got, final); err != nil {
			return "", extractor.ExtractionFailed("move download into cache", err)
		}
	}

	if s.log != nil {
		size := ""
		if info, err := s.fs.Stat(final); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		s.log.Info("cached", "key", key, "size", size, "duration", time.Since(start).Round(time.Millisecond))
	}
	return final, nil
}

// Open returns a reader for a cached file
func (s *Store) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// List returns cached entries, newest first
func (s *Store) List() ([]Entry, error) {
	var out []Entry
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != fileExt {
			return nil
		}
		key, ok := s.keyFor(path)
		if !ok {
			return nil
		}
		out = append(out, Entry{Key: key, Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// seed loads files already on disk into the LRU, oldest first so that the
// newest survive if the directory is over the bound.
func (s *Store) seed() error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		s.recent.Add(entries[i].Key, entries[i].Path)
	}
	return nil
}

func (s *Store) touch(key Key, path string) {
	if s.recent != nil {
		s.recent.Add(key, path)
	}
}

func (s *Store) onEvict(key Key, path string) {
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		if s.log != nil {
			s.log.Warn("failed to evict cached file", "key", key, "error", err)
		}
		return
	}
	if s.log != nil {
		s.log.Debug("evicted", "key", key)
	}
}

func (s *Store) keyFor(path string) (Key, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return Key{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return Key{}, false
	}
	return Key{Namespace: parts[0], ID: strings.TrimSuffix(parts[1], fileExt)}, true
}

func (s *Store) exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

func validateNamespace(ns string) error {
	if ns == "" || strings.ContainsAny(ns, `/\.`) {
		return extractor.InvalidInput("invalid namespace")
	}
	return nil
}
