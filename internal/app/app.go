package app

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/guiyumin/mediagrab/internal/bot"
	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/cookies"
	"github.com/guiyumin/mediagrab/internal/core/extractor"
	"github.com/guiyumin/mediagrab/internal/core/logging"
	"github.com/guiyumin/mediagrab/internal/core/mediastore"
	"github.com/guiyumin/mediagrab/internal/server"
	"github.com/guiyumin/mediagrab/internal/telegram"
)

// App is built once at startup and handed to every entry point
type App struct {
	Cfg       *config.Config
	Log       *log.Logger
	Cookies   *cookies.Store
	Refresher *cookies.Refresher // nil without a browser profile
	Ytdlp     *extractor.YtdlpResolver
	Resolver  *extractor.Pipeline
	Media     *mediastore.Store

	// nil without a bot token
	Telegram *telegram.Client
	Bot      *bot.Handler
}

// Options lets tests and the CLI swap collaborators
type Options struct {
	Fs     afero.Fs
	Runner extractor.Runner
	// Online connects to Telegram; the CLI resolve command leaves it off
	Online bool
	// Evict enforces cache.max_entries by deleting old files. Only the
	// serving process sets it; other commands leave the directory alone.
	Evict bool
}

// New wires the application from cfg
func New(cfg *config.Config, logger *log.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	a := &App{Cfg: cfg, Log: logger}

	a.Cookies = cookies.NewStore(fs, cfg.CookieFile)
	if cfg.Cookies.BrowserProfile != "" {
		src := cookies.NewBrowserSource(cfg.Cookies.BrowserProfile, cfg.Cookies.BrowserBin)
		a.Refresher = cookies.NewRefresher(a.Cookies, src, cfg.Cookies.Domain, cfg.Cookies.RefreshInterval, logging.Component(logger, "cookies"))
	}

	a.Ytdlp = extractor.NewYtdlpResolver(extractor.YtdlpConfig{
		Binary:  cfg.Extractor.Binary,
		Format:  cfg.Extractor.Format,
		Retries: cfg.Extractor.Retries,
	}, opts.Runner, a.Cookies, fs, logging.Component(logger, "ytdlp"))

	instagram := extractor.NewInstagramResolver(extractor.NewInstagramClient(a.Cookies))
	a.Resolver = extractor.NewPipeline(instagram, a.Ytdlp, cfg.Extractor.Timeout, logging.Component(logger, "resolver"))

	maxEntries := 0
	if opts.Evict {
		maxEntries = cfg.Cache.MaxEntries
	}
	media, err := mediastore.New(fs, cfg.MediaDir, a.Ytdlp, mediastore.Options{
		MaxEntries:      maxEntries,
		DownloadTimeout: cfg.Extractor.DownloadTimeout,
	}, logging.Component(logger, "media"))
	if err != nil {
		return nil, err
	}
	a.Media = media

	if opts.Online && cfg.Telegram.BotToken != "" {
		tg, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.APIBase, logging.Component(logger, "telegram"))
		if err != nil {
			// the HTTP API stays useful without the bot
			logger.Error("telegram disabled", "error", err)
		} else {
			a.Telegram = tg
			a.Bot = bot.New(a.Resolver, tg, cfg.Server.PublicURL, logging.Component(logger, "bot"))
		}
	}

	return a, nil
}

// Server builds the HTTP server over the app's collaborators
func (a *App) Server() *server.Server {
	deps := server.Deps{
		Resolver: a.Resolver,
		Files:    a.Media,
		Logger:   logging.Component(a.Log, "http"),
	}
	if a.Bot != nil {
		deps.Bot = a.Bot
		deps.Webhook = a.Telegram
	}
	return server.NewServer(server.Options{
		Port:      a.Cfg.Server.Port,
		APIKey:    a.Cfg.Server.APIKey,
		PublicURL: a.Cfg.Server.PublicURL,
	}, deps)
}

// Serve runs the HTTP server and the cookie refresher until ctx ends
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Refresher != nil {
		go a.Refresher.Run(ctx)
	} else if !a.Cookies.Valid() {
		a.Log.Warn("no usable cookie file and no browser profile, login-only videos will fail", "path", a.Cookies.Path())
	}

	srv := a.Server()
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}
