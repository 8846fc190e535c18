package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// DefaultFormat prefers an mp4 video + m4a audio merge.
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// CmdResult is the captured outcome of an external command
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external command
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CmdResult, error)
}

// ExecRunner runs commands through go-execute
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CmdResult, error) {
	task := execute.ExecTask{
		Command: name,
		Args:    args,
	}
	res, err := task.Execute(ctx)
	out := CmdResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		return out, err
	}
	if res.Cancelled {
		return out, context.Canceled
	}
	if res.ExitCode != 0 {
		return out, fmt.Errorf("exit code %d", res.ExitCode)
	}
	return out, nil
}

// CredentialPather exposes the cookie file, if one is usable
type CredentialPather interface {
	CredentialPath() (string, bool)
}

// YtdlpConfig configures the generic resolver
type YtdlpConfig struct {
	Binary  string
	Format  string
	Retries int
}

// YtdlpResolver delegates to yt-dlp for every non-Instagram platform
type YtdlpResolver struct {
	cfg     YtdlpConfig
	runner  Runner
	cookies CredentialPather
	fs      afero.Fs
	log     *log.Logger
}

// NewYtdlpResolver creates the generic resolver. cookies may be nil.
func NewYtdlpResolver(cfg YtdlpConfig, runner Runner, cookies CredentialPather, fs afero.Fs, logger *log.Logger) *YtdlpResolver {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &YtdlpResolver{cfg: cfg, runner: runner, cookies: cookies, fs: fs, log: logger}
}

type ytdlpMeta struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Ext          string  `json:"ext"`
	Thumbnail    string  `json:"thumbnail"`
	Extractor    string  `json:"extractor"`
	ExtractorKey string  `json:"extractor_key"`
	Uploader     string  `json:"uploader"`
	Duration     float64 `json:"duration"`
	VCodec       string  `json:"vcodec"`
}

func (r *YtdlpResolver) baseArgs() []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-progress",
		"-f", r.cfg.Format,
		"--no-playlist",
		"--no-check-certificates",
		"--geo-bypass",
		"--retries", strconv.Itoa(r.cfg.Retries),
	}
	if r.cookies != nil {
		if path, ok := r.cookies.CredentialPath(); ok {
			args = append(args, "--cookies", path)
		}
	}
	return args
}

// Resolve runs yt-dlp in metadata mode
func (r *YtdlpResolver) Resolve(ctx context.Context, rawURL string) (*MediaInfo, error) {
	args := append(r.baseArgs(), "--dump-json", rawURL)

	res, err := r.runner.Run(ctx, r.cfg.Binary, args...)
	if err != nil {
		return nil, r.failure(ctx, res, err)
	}

	line := firstLine(res.Stdout)
	if line == "" {
		return nil, ExtractionFailed("yt-dlp returned no metadata", nil)
	}

	var meta ytdlpMeta
	if err := json.Unmarshal([]byte(line), &meta); err != nil {
		return nil, ExtractionFailed("decode yt-dlp output", err)
	}

	info := &MediaInfo{
		Platform:     platformName(meta),
		ID:           meta.ID,
		Title:        meta.Title,
		DownloadLink: meta.URL,
		Thumbnail:    meta.Thumbnail,
		Owner:        meta.Uploader,
		Duration:     int(meta.Duration),
	}
	if meta.VCodec != "" && meta.VCodec != "none" {
		info.MediaKind = MediaKindVideo
	}

	if r.log != nil {
		r.log.Debug("resolved", "platform", info.Platform, "id", info.ID, "title", info.Title)
	}
	return info, nil
}

// Download runs yt-dlp in download mode, writing <id>.<ext> into dir.
// Non-mp4 results are renamed to .mp4 without re-encoding.
func (r *YtdlpResolver) Download(ctx context.Context, rawURL, dir string) (string, error) {
	if err := r.fs.MkdirAll(dir, 0755); err != nil {
		return "", ExtractionFailed("create media directory", err)
	}

	args := append(r.baseArgs(),
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		"--merge-output-format", "mp4",
		"--print", "after_move:filepath",
		rawURL,
	)

	res, err := r.runner.Run(ctx, r.cfg.Binary, args...)
	if err != nil {
		return "", r.failure(ctx, res, err)
	}

	path := lastLine(res.Stdout)
	if path == "" {
		return "", ExtractionFailed("yt-dlp did not report an output file", nil)
	}

	return r.ensureMP4(path)
}

func (r *YtdlpResolver) ensureMP4(path string) (string, error) {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".mp4") {
		return path, nil
	}
	final := strings.TrimSuffix(path, ext) + ".mp4"
	if err := r.fs.Rename(path, final); err != nil {
		return "", ExtractionFailed("rename to mp4", err)
	}
	return final, nil
}

func (r *YtdlpResolver) failure(ctx context.Context, res CmdResult, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ExtractionFailed("extraction timed out or was cancelled", ctxErr)
	}

	if errors.Is(err, exec.ErrNotFound) {
		return NotConfigured(fmt.Sprintf("%s not found, install yt-dlp or set YTDLP_BIN", r.cfg.Binary))
	}

	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = err.Error()
	}

	if needsAuth(msg) {
		return AuthRequired("this video requires login, update the cookies file", errors.New(msg))
	}
	return ExtractionFailed("", errors.New(msg))
}

// needsAuth spots yt-dlp's login/sign-in diagnostics
func needsAuth(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"sign in", "login", "log in"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func platformName(meta ytdlpMeta) string {
	switch {
	case meta.Extractor != "":
		return meta.Extractor
	case meta.ExtractorKey != "":
		return meta.ExtractorKey
	default:
		return "Unknown"
	}
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
