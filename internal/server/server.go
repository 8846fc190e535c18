package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
	"github.com/guiyumin/mediagrab/internal/core/logging"
	"github.com/guiyumin/mediagrab/internal/core/mediastore"
	"github.com/guiyumin/mediagrab/internal/core/version"
)

// FileStore materializes and opens cached media
type FileStore interface {
	EnsureLocal(ctx context.Context, key mediastore.Key, canonicalURL string) (string, error)
	Open(path string) (afero.File, error)
}

// UpdateHandler processes one Telegram update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// WebhookRegistrar registers the public webhook URL with Telegram
type WebhookRegistrar interface {
	SetWebhook(url string) error
}

// Options holds listener settings
type Options struct {
	Port      int
	APIKey    string
	PublicURL string
}

// Deps are the collaborators behind the routes. Bot and Webhook are nil
// when no bot token is configured.
type Deps struct {
	Resolver extractor.Resolver
	Files    FileStore
	Bot      UpdateHandler
	Webhook  WebhookRegistrar
	Logger   *log.Logger
}

// Server is the HTTP server for mediagrab
type Server struct {
	opts   Options
	deps   Deps
	log    *log.Logger
	engine *gin.Engine
	server *http.Server
}

// NewServer builds the router; call Start to listen
func NewServer(opts Options, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{opts: opts, deps: deps, log: logger}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Length", "Content-Range", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	s.engine.GET("/", s.handleHome)
	s.engine.GET("/health", s.handleHealth)

	media := s.engine.Group("/")
	if opts.APIKey != "" {
		media.Use(s.authMiddleware())
	}
	media.GET("/download", s.handleDownload)
	media.GET("/file/:video_id", s.handleFile)

	s.engine.POST("/webhook", s.handleWebhook)
	s.engine.GET("/setwebhook", s.handleSetWebhook)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      0, // /file streams can be long
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens until Stop is called
func (s *Server) Start() error {
	s.log.Info("starting server", "port", s.opts.Port)
	if s.opts.APIKey != "" {
		s.log.Info("API key authentication enabled")
	}
	if s.deps.Bot == nil {
		s.log.Warn("telegram bot not configured, /webhook will ignore updates")
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Middleware

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		c.Next()

		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", id,
		)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

// Handlers

func (s *Server) handleHome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the mediagrab API 🚀"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	rawURL := strings.TrimSpace(c.Query("url"))
	if rawURL == "" {
		s.writeError(c, extractor.InvalidInput("url query parameter is required"))
		return
	}

	info, err := s.deps.Resolver.Resolve(c.Request.Context(), rawURL)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.deps.Files != nil {
		info.FileURL = mediastore.FileLink(s.publicBase(c), info)
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleFile(c *gin.Context) {
	id := c.Param("video_id")
	if err := mediastore.ValidateID(id); err != nil {
		s.writeError(c, err)
		return
	}
	if s.deps.Files == nil {
		s.writeError(c, extractor.NotConfigured("media cache is not configured"))
		return
	}

	key := mediastore.Key{Namespace: mediastore.YouTube, ID: id}
	path, err := s.deps.Files.EnsureLocal(c.Request.Context(), key, extractor.WatchURL(id))
	if err != nil {
		s.writeError(c, err)
		return
	}

	f, err := s.deps.Files.Open(path)
	if err != nil {
		s.writeError(c, extractor.ExtractionFailed("failed to open cached file", err))
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		s.writeError(c, extractor.ExtractionFailed("failed to stat cached file", err))
		return
	}

	c.Header("Content-Type", "video/mp4")
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.mp4"`, id))
	http.ServeContent(c.Writer, c.Request, id+".mp4", stat.ModTime(), f)
}

func (s *Server) handleWebhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.log.Warn("ignoring malformed webhook payload", "error", err)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if s.deps.Bot != nil {
		if err := s.deps.Bot.HandleUpdate(c.Request.Context(), update); err != nil {
			s.log.Error("webhook update failed", "update_id", update.UpdateID, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleSetWebhook(c *gin.Context) {
	if s.deps.Webhook == nil {
		s.writeError(c, extractor.NotConfigured("telegram bot token is not set"))
		return
	}

	hook := s.publicBase(c) + "/webhook"
	if err := s.deps.Webhook.SetWebhook(hook); err != nil {
		s.log.Error("setWebhook failed", "url", hook, "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "webhook_url": hook})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "webhook_url": hook})
}

// publicBase is the configured public URL, or the one the request came in on
func (s *Server) publicBase(c *gin.Context) string {
	if s.opts.PublicURL != "" {
		return strings.TrimRight(s.opts.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(extractor.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "error", err, "request_id", c.GetString("request_id"))
	}
	c.JSON(status, gin.H{"error": extractor.Message(err)})
}

func statusFor(kind extractor.Kind) int {
	switch kind {
	case extractor.KindInvalidInput:
		return http.StatusBadRequest
	case extractor.KindAuthRequired:
		return http.StatusForbidden
	case extractor.KindNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
