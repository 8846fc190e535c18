package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guiyumin/mediagrab/internal/app"
	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/logging"
	"github.com/guiyumin/mediagrab/internal/core/version"
)

func main() {
	port := flag.Int("port", 0, "HTTP listen port (default: 8080)")
	mediaDir := flag.String("output", "", "media cache directory")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediagrab-server %s\n", version.Version)
		return
	}

	cfg, envErr := config.LoadOrDefault()

	// flag > env > config file > default
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *mediaDir != "" {
		cfg.MediaDir = config.ExpandPath(*mediaDir)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	if envErr != nil {
		logger.Warn("environment overrides partially applied", "error", envErr)
	}

	a, err := app.New(cfg, logger, app.Options{Online: true, Evict: true})
	if err != nil {
		logger.Fatal("failed to start", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		logger.Fatal("server error", "error", err)
	}
}
