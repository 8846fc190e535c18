package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guiyumin/mediagrab/internal/app"
	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/extractor"
	"github.com/guiyumin/mediagrab/internal/core/logging"
	"github.com/guiyumin/mediagrab/internal/core/mediastore"
	"github.com/guiyumin/mediagrab/internal/core/version"
)

var (
	jsonOutput bool
	download   bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mediagrab [url]",
	Short: "Resolve social-media and video links to downloadable media",
	Long: `Resolve a link to a post or video into its media metadata and a direct
download link, optionally saving the video into the local media cache.

Examples:
  mediagrab https://www.youtube.com/shorts/dQw4w9WgXcQ
  mediagrab --json https://www.instagram.com/reel/Cxyz123/
  mediagrab --download https://youtu.be/dQw4w9WgXcQ
  mediagrab serve -p 9000`,
	Version:       version.Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runResolve(ctx, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	rootCmd.Flags().BoolVar(&download, "download", false, "also save the video into the media cache")
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return err
	}
	return nil
}

// loadApp reads config and environment and wires the application
func loadApp(online bool) (*app.App, error) {
	cfg, envErr := config.LoadOrDefault()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	if envErr != nil {
		logger.Warn("environment overrides partially applied", "error", envErr)
	}
	return app.New(cfg, logger, app.Options{Online: online})
}

func runResolve(ctx context.Context, w io.Writer, rawURL string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}

	info, err := a.Resolver.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}

	var saved string
	if download {
		if saved, err = saveToCache(ctx, a.Media, rawURL, info); err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printInfo(w, info, saved)
	return nil
}

func saveToCache(ctx context.Context, media *mediastore.Store, rawURL string, info *extractor.MediaInfo) (string, error) {
	if info.ID == "" {
		return "", extractor.InvalidInput(fmt.Sprintf("%s results cannot be cached, use the download link instead", info.Platform))
	}

	key := mediastore.Key{Namespace: mediastore.NamespaceFor(info.Platform), ID: info.ID}
	canonical := extractor.Classify(rawURL).URL
	if mediastore.Cacheable(info) {
		key.Namespace = mediastore.YouTube
		canonical = extractor.WatchURL(info.ID)
	}

	fmt.Fprintf(os.Stderr, "  %s Downloading with yt-dlp...\n", "⬇")
	return media.EnsureLocal(ctx, key, canonical)
}

func printInfo(w io.Writer, info *extractor.MediaInfo, saved string) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Fprintln(w)
	bold.Fprintf(w, "  %s\n", info.Platform)
	if info.Title != "" {
		fmt.Fprintf(w, "  %s\n", info.Title)
	}
	fmt.Fprintln(w)

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %-10s %s\n", cyan.Sprint(label), value)
	}
	field("ID", info.ID)
	field("Type", string(info.MediaKind))
	field("Owner", info.Owner)
	if info.Duration > 0 {
		field("Duration", (time.Duration(info.Duration) * time.Second).String())
	}
	field("Thumbnail", info.Thumbnail)
	field("Link", info.DownloadLink)
	if saved != "" {
		field("Saved", green.Sprint(saved))
	}
	if info.DownloadLink == "" && saved == "" {
		fmt.Fprintf(w, "\n  %s\n", color.YellowString("No direct link reported, try --download"))
	}
	fmt.Fprintln(w)
}
