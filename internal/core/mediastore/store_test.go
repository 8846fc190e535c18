package mediastore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

const root = "/media"

// fakeDownloader writes a file named after the last path segment of the URL
type fakeDownloader struct {
	fs    afero.Fs
	ext   string
	gate  chan struct{}
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	urls []string
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL, dir string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	ext := f.ext
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, filepath.Base(rawURL)+ext)
	if err := afero.WriteFile(f.fs, path, []byte("video:"+rawURL), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func newStore(t *testing.T, fs afero.Fs, d extractor.Downloader, max int) *Store {
	t.Helper()
	s, err := New(fs, root, d, Options{MaxEntries: max}, nil)
	require.NoError(t, err)
	return s
}

func yt(id string) Key { return Key{Namespace: "youtube", ID: id} }

func TestValidateID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"dQw4w9WgXcQ", true},
		{"abc_-", true},
		{"abcd", false},
		{"", false},
		{"../../etc/passwd", false},
		{"abc/def", false},
		{"abc def", false},
		{"abc.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.True(t, extractor.IsKind(err, extractor.KindInvalidInput))
			}
		})
	}
}

func TestEnsureLocalRejectsBadInputBeforeTouchingDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs}
	s := newStore(t, fs, d, 0)

	_, err := s.EnsureLocal(context.Background(), yt("../x"), "https://example.com/x")
	assert.True(t, extractor.IsKind(err, extractor.KindInvalidInput))

	_, err = s.EnsureLocal(context.Background(), Key{Namespace: "..", ID: "abcdef"}, "https://example.com/x")
	assert.True(t, extractor.IsKind(err, extractor.KindInvalidInput))

	assert.Zero(t, d.calls.Load())
}

func TestEnsureLocalHitSkipsDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/media/youtube/dQw4w9WgXcQ.mp4", []byte("cached"), 0644))
	d := &fakeDownloader{fs: fs}
	s := newStore(t, fs, d, 0)

	path, err := s.EnsureLocal(context.Background(), yt("dQw4w9WgXcQ"), extractor.WatchURL("dQw4w9WgXcQ"))
	require.NoError(t, err)
	assert.Equal(t, "/media/youtube/dQw4w9WgXcQ.mp4", path)
	assert.Zero(t, d.calls.Load())
}

func TestEnsureLocalMissPersistsOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs}
	s := newStore(t, fs, d, 0)

	path, err := s.EnsureLocal(context.Background(), yt("abcdef"), "https://example.com/abcdef")
	require.NoError(t, err)
	assert.Equal(t, "/media/youtube/abcdef.mp4", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "video:https://example.com/abcdef", string(data))

	again, err := s.EnsureLocal(context.Background(), yt("abcdef"), "https://example.com/abcdef")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), d.calls.Load())

	entries, err := afero.ReadDir(fs, "/media/youtube")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsureLocalMovesNonMP4Output(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs, ext: ".webm"}
	s := newStore(t, fs, d, 0)

	path, err := s.EnsureLocal(context.Background(), yt("abcdef"), "https://example.com/abcdef")
	require.NoError(t, err)
	assert.Equal(t, "/media/youtube/abcdef.mp4", path)

	ok, err := afero.Exists(fs, "/media/youtube/abcdef.webm")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureLocalConcurrentMissesShareDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs, gate: make(chan struct{})}
	s := newStore(t, fs, d, 0)

	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = s.EnsureLocal(context.Background(), yt("shared1"), "https://example.com/shared1")
		}(i)
	}

	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(d.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "/media/youtube/shared1.mp4", paths[i])
	}
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestEnsureLocalCallerCancelDoesNotAbortDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs, gate: make(chan struct{})}
	s := newStore(t, fs, d, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.EnsureLocal(ctx, yt("detach1"), "https://example.com/detach1")
		errc <- err
	}()

	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	err := <-errc
	assert.True(t, extractor.IsKind(err, extractor.KindExtractionFailed))
	assert.ErrorIs(t, err, context.Canceled)

	close(d.gate)
	assert.Eventually(t, func() bool {
		ok, _ := afero.Exists(fs, "/media/youtube/detach1.mp4")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestEnsureLocalDownloadFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs, err: extractor.AuthRequired("login required", errors.New("sign in"))}
	s := newStore(t, fs, d, 0)

	_, err := s.EnsureLocal(context.Background(), yt("private1"), "https://example.com/private1")
	assert.True(t, extractor.IsKind(err, extractor.KindAuthRequired))

	ok, err := afero.Exists(fs, "/media/youtube/private1.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureLocalWithoutDownloader(t *testing.T) {
	s := newStore(t, afero.NewMemMapFs(), nil, 0)
	_, err := s.EnsureLocal(context.Background(), yt("abcdef"), "https://example.com/abcdef")
	assert.True(t, extractor.IsKind(err, extractor.KindNotConfigured))
}

func TestDownloadTimeout(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs, gate: make(chan struct{})}
	s, err := New(fs, root, d, Options{DownloadTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = s.EnsureLocal(context.Background(), yt("slow123"), "https://example.com/slow123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvictionRemovesLeastRecentlyUsed(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := &fakeDownloader{fs: fs}
	s := newStore(t, fs, d, 2)
	ctx := context.Background()

	for _, id := range []string{"first1", "second", "third3"} {
		_, err := s.EnsureLocal(ctx, yt(id), "https://example.com/"+id)
		require.NoError(t, err)
		if id == "second" {
			// refresh first1 so second becomes the oldest
			_, err := s.EnsureLocal(ctx, yt("first1"), "https://example.com/first1")
			require.NoError(t, err)
		}
	}

	exists := func(id string) bool {
		ok, _ := afero.Exists(fs, "/media/youtube/"+id+".mp4")
		return ok
	}
	assert.True(t, exists("first1"))
	assert.False(t, exists("second"))
	assert.True(t, exists("third3"))
}

func TestNewSeedsFromDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"oldest", "middle", "newest"} {
		p := "/media/youtube/" + id + ".mp4"
		require.NoError(t, afero.WriteFile(fs, p, []byte(id), 0644))
		mt := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, fs.Chtimes(p, mt, mt))
	}

	s := newStore(t, fs, &fakeDownloader{fs: fs}, 2)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, yt("newest"), entries[0].Key)
	assert.Equal(t, yt("middle"), entries[1].Key)
	assert.Equal(t, int64(len("newest")), entries[0].Size)
}

func TestListIgnoresStrayFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/media/youtube/abcdef.mp4", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/media/youtube/abcdef.part", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/media/loose.mp4", []byte("x"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/media/a/b/deep1.mp4", []byte("x"), 0644))

	s := newStore(t, fs, nil, 0)
	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, yt("abcdef"), entries[0].Key)
	assert.Equal(t, "/media/youtube/abcdef.mp4", entries[0].Path)
}
