package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/cookies"
	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

type recordingRunner struct {
	args [][]string
	out  string
}

func (r *recordingRunner) Run(_ context.Context, _ string, args ...string) (extractor.CmdResult, error) {
	r.args = append(r.args, args)
	return extractor.CmdResult{Stdout: r.out}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MediaDir = "/media"
	cfg.CookieFile = "/data/cookies.txt"
	cfg.Telegram.BotToken = "123:abc"
	return cfg
}

func TestNewWiresResolverAndCookies(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &recordingRunner{out: `{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","extractor":"youtube","vcodec":"avc1"}`}

	store := cookies.NewStore(fs, "/data/cookies.txt")
	require.NoError(t, store.Write([]cookies.Cookie{{Domain: ".youtube.com", Path: "/", Name: "SID", Value: "x"}}))

	a, err := New(testConfig(), nil, Options{Fs: fs, Runner: runner})
	require.NoError(t, err)
	assert.Nil(t, a.Refresher, "no browser profile configured")
	assert.Nil(t, a.Bot, "offline apps never contact telegram")

	info, err := a.Resolver.Resolve(context.Background(), "https://m.youtube.com/shorts/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", info.ID)
	assert.Equal(t, extractor.MediaKindVideo, info.MediaKind)

	require.Len(t, runner.args, 1)
	args := runner.args[0]
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", args[len(args)-1])
	assert.Subset(t, args, []string{"--cookies", "/data/cookies.txt"})
}

func TestNewWithBrowserProfileCreatesRefresher(t *testing.T) {
	cfg := testConfig()
	cfg.Cookies.BrowserProfile = "/home/user/.config/chromium"

	a, err := New(cfg, nil, Options{Fs: afero.NewMemMapFs(), Runner: &recordingRunner{}})
	require.NoError(t, err)
	assert.NotNil(t, a.Refresher)
}

func TestServerWithoutBot(t *testing.T) {
	a, err := New(testConfig(), nil, Options{Fs: afero.NewMemMapFs(), Runner: &recordingRunner{}})
	require.NoError(t, err)

	srv := a.Server()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/setwebhook", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download?url=https://www.instagram.com/p/abc/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0

	a, err := New(cfg, nil, Options{Fs: afero.NewMemMapFs(), Runner: &recordingRunner{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func seedMedia(t *testing.T, fs afero.Fs, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, afero.WriteFile(fs, "/media/youtube/"+id+".mp4", []byte(id), 0644))
	}
}

func TestNewLeavesCacheAloneWithoutEvict(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedMedia(t, fs, "aaaaa1", "bbbbb2", "ccccc3")

	cfg := testConfig()
	cfg.Cache.MaxEntries = 1
	a, err := New(cfg, nil, Options{Fs: fs, Runner: &recordingRunner{}})
	require.NoError(t, err)

	entries, err := a.Media.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestNewEnforcesCacheBoundWhenServing(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedMedia(t, fs, "aaaaa1", "bbbbb2", "ccccc3")

	cfg := testConfig()
	cfg.Cache.MaxEntries = 1
	a, err := New(cfg, nil, Options{Fs: fs, Runner: &recordingRunner{}, Evict: true})
	require.NoError(t, err)

	entries, err := a.Media.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
