package extractor

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result CmdResult
	err    error
	onRun  func(args []string)
	name   string
	args   []string
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (CmdResult, error) {
	f.calls++
	f.name = name
	f.args = args
	if f.onRun != nil {
		f.onRun(args)
	}
	return f.result, f.err
}

type fixedCookies string

func (f fixedCookies) CredentialPath() (string, bool) { return string(f), f != "" }

func TestYtdlpResolveMetadata(t *testing.T) {
	runner := &fakeRunner{result: CmdResult{
		Stdout: `{"id":"xyz","title":"T","thumbnail":"th","extractor":"Youtube"}` + "\n",
	}}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

	info, err := r.Resolve(context.Background(), "https://youtu.be/xyz")
	require.NoError(t, err)

	assert.Equal(t, &MediaInfo{Platform: "Youtube", ID: "xyz", Title: "T", Thumbnail: "th"}, info)
	assert.Equal(t, "yt-dlp", runner.name)
	assert.Equal(t, "https://youtu.be/xyz", runner.args[len(runner.args)-1])
	assert.Contains(t, runner.args, "--dump-json")
}

func TestYtdlpArguments(t *testing.T) {
	runner := &fakeRunner{result: CmdResult{Stdout: `{"id":"a"}`}}
	r := NewYtdlpResolver(YtdlpConfig{Binary: "/opt/yt-dlp", Retries: 5}, runner, fixedCookies("/tmp/cookies.txt"), afero.NewMemMapFs(), nil)

	_, err := r.Resolve(context.Background(), "https://vimeo.com/1")
	require.NoError(t, err)

	assert.Equal(t, "/opt/yt-dlp", runner.name)
	for _, flag := range []string{"--quiet", "--no-playlist", "--no-check-certificates", "--geo-bypass"} {
		assert.Contains(t, runner.args, flag)
	}
	assert.Subset(t, runner.args, []string{"-f", DefaultFormat})
	assert.Subset(t, runner.args, []string{"--retries", "5"})
	assert.Subset(t, runner.args, []string{"--cookies", "/tmp/cookies.txt"})
}

func TestYtdlpSkipsCookiesWhenUnavailable(t *testing.T) {
	runner := &fakeRunner{result: CmdResult{Stdout: `{"id":"a"}`}}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, fixedCookies(""), afero.NewMemMapFs(), nil)

	_, err := r.Resolve(context.Background(), "https://vimeo.com/1")
	require.NoError(t, err)
	assert.NotContains(t, runner.args, "--cookies")
}

func TestYtdlpPlatformFallbacks(t *testing.T) {
	runner := &fakeRunner{result: CmdResult{Stdout: `{"id":"a","extractor_key":"TikTok","vcodec":"h264","duration":9.8}`}}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

	info, err := r.Resolve(context.Background(), "https://tiktok.com/@u/video/1")
	require.NoError(t, err)
	assert.Equal(t, "TikTok", info.Platform)
	assert.Equal(t, MediaKindVideo, info.MediaKind)
	assert.Equal(t, 9, info.Duration)

	runner.result.Stdout = `{"id":"a"}`
	info, err = r.Resolve(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Platform)
}

func TestYtdlpFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		kind   Kind
	}{
		{name: "sign in to confirm", stderr: "ERROR: [youtube] xyz: Sign in to confirm you're not a bot", kind: KindAuthRequired},
		{name: "login required", stderr: "ERROR: [instagram] This content requires login", kind: KindAuthRequired},
		{name: "unsupported url", stderr: "ERROR: Unsupported URL: https://example.com", kind: KindExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: CmdResult{Stderr: tt.stderr, ExitCode: 1}, err: errors.New("exit code 1")}
			r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

			_, err := r.Resolve(context.Background(), "https://youtu.be/xyz")
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Contains(t, err.Error(), tt.stderr)
		})
	}
}

func TestYtdlpFailureWithoutStderrUsesRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("executable file not found in $PATH")}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

	_, err := r.Resolve(context.Background(), "https://youtu.be/xyz")
	assert.True(t, IsKind(err, KindExtractionFailed))
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestYtdlpCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{err: context.Canceled}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

	_, err := r.Resolve(ctx, "https://youtu.be/xyz")
	assert.True(t, IsKind(err, KindExtractionFailed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestYtdlpDownloadRenamesToMP4(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/media/youtube"
	runner := &fakeRunner{}
	runner.onRun = func(args []string) {
		out := filepath.Join(dir, "abcde.webm")
		require.NoError(t, afero.WriteFile(fs, out, []byte("data"), 0644))
		runner.result = CmdResult{Stdout: out + "\n"}
	}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, fs, nil)

	path, err := r.Download(context.Background(), "https://www.youtube.com/watch?v=abcde", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "abcde.mp4"), path)
	exists, _ := afero.Exists(fs, path)
	assert.True(t, exists)
	gone, _ := afero.Exists(fs, filepath.Join(dir, "abcde.webm"))
	assert.False(t, gone)

	assert.Subset(t, runner.args, []string{"-o", filepath.Join(dir, "%(id)s.%(ext)s")})
	assert.Subset(t, runner.args, []string{"--print", "after_move:filepath"})
}

func TestYtdlpDownloadKeepsMP4(t *testing.T) {
	fs := afero.NewMemMapFs()
	out := "/media/youtube/abcde.mp4"
	require.NoError(t, afero.WriteFile(fs, out, []byte("data"), 0644))
	runner := &fakeRunner{result: CmdResult{Stdout: "[info] something\n" + out + "\n"}}

	path, err := NewYtdlpResolver(YtdlpConfig{}, runner, nil, fs, nil).Download(context.Background(), "u", "/media/youtube")
	require.NoError(t, err)
	assert.Equal(t, out, path)
}

func TestYtdlpDownloadWithoutOutput(t *testing.T) {
	runner := &fakeRunner{}
	_, err := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil).Download(context.Background(), "u", "/media")
	assert.True(t, IsKind(err, KindExtractionFailed))
}

func TestYtdlpMissingBinary(t *testing.T) {
	runner := &fakeRunner{err: &exec.Error{Name: "yt-dlp", Err: exec.ErrNotFound}}
	r := NewYtdlpResolver(YtdlpConfig{}, runner, nil, afero.NewMemMapFs(), nil)

	_, err := r.Resolve(context.Background(), "https://vimeo.com/1")
	assert.True(t, IsKind(err, KindNotConfigured))
}
