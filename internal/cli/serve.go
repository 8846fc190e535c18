package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guiyumin/mediagrab/internal/app"
	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/logging"
)

var (
	servePort     int
	serveMediaDir string
	serveDaemon   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [stop|status]",
	Short: "Start the HTTP API and Telegram webhook server",
	Long: `Start an HTTP server that resolves links on demand and serves cached videos.
The cookie file is refreshed in the background when a browser profile is configured.

Examples:
  mediagrab serve              # Start server on port 8080
  mediagrab serve -p 9000      # Start server on port 9000
  mediagrab serve -d           # Start server as background daemon
  mediagrab serve -o ~/media   # Use a custom media cache directory

API Endpoints:
  GET  /                     # Welcome message
  GET  /health               # Health check
  GET  /download?url=<url>   # Resolve a link
  GET  /file/:video_id       # Stream a cached YouTube video
  POST /webhook              # Telegram updates
  GET  /setwebhook           # Register the webhook with Telegram`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			switch args[0] {
			case "stop":
				return stopDaemon(cmd.OutOrStdout())
			case "status":
				return daemonStatus(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unknown argument %q", args[0])
			}
		}
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (default: 8080)")
	serveCmd.Flags().StringVarP(&serveMediaDir, "output", "o", "", "media cache directory")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "run as background daemon")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, envErr := config.LoadOrDefault()

	// flag > env > config file > default
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveMediaDir != "" {
		cfg.MediaDir = config.ExpandPath(serveMediaDir)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if serveDaemon {
		if envErr != nil {
			fmt.Fprintln(os.Stderr, color.YellowString("Warning: %v", envErr))
		}
		return startDaemon(cmd.OutOrStdout(), cfg.Server.Port, cfg.MediaDir)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	if envErr != nil {
		logger.Warn("environment overrides partially applied", "error", envErr)
	}
	if !config.Exists() {
		logger.Warn("config file not found, using defaults. Run 'mediagrab init' to create one.")
	}
	logger.Info("media cache", "dir", cfg.MediaDir, "max_entries", cfg.Cache.MaxEntries)

	a, err := app.New(cfg, logger, app.Options{Online: true, Evict: true})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

func startDaemon(w io.Writer, port int, mediaDir string) error {
	if pid := readPID(); pid > 0 {
		if processExists(pid) {
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		// stale PID file
		os.Remove(pidFilePath())
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve", "-p", strconv.Itoa(port), "-o", mediaDir}

	if err := os.MkdirAll(filepath.Dir(logFilePath()), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := writePID(cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		logFile.Close()
		return fmt.Errorf("failed to save PID: %w", err)
	}

	fmt.Fprintf(w, "mediagrab server started as daemon (PID %d)\n", cmd.Process.Pid)
	fmt.Fprintf(w, "  Port: %d\n", port)
	fmt.Fprintf(w, "  Media: %s\n", mediaDir)
	fmt.Fprintf(w, "  Log: %s\n", logFilePath())
	fmt.Fprintf(w, "\nUse 'mediagrab serve stop' to stop the daemon\n")
	return nil
}

func stopDaemon(w io.Writer) error {
	pid := readPID()
	if pid <= 0 {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidFilePath())
		return fmt.Errorf("daemon process not found")
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidFilePath())
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 30; i++ {
		if !processExists(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	os.Remove(pidFilePath())
	fmt.Fprintln(w, "Daemon stopped")
	return nil
}

func daemonStatus(w io.Writer) error {
	pid := readPID()
	if pid <= 0 {
		fmt.Fprintln(w, "Daemon is not running")
		return nil
	}

	if !processExists(pid) {
		os.Remove(pidFilePath())
		fmt.Fprintln(w, "Daemon is not running (stale PID file removed)")
		return nil
	}

	fmt.Fprintf(w, "Daemon is running (PID %d)\n", pid)
	fmt.Fprintf(w, "Log file: %s\n", logFilePath())
	return nil
}

func pidFilePath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediagrab-serve.pid")
	}
	return filepath.Join(dir, "serve.pid")
}

func logFilePath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediagrab-serve.log")
	}
	return filepath.Join(dir, "serve.log")
}

func writePID(pid int) error {
	pidFile := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func readPID() int {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix, signal 0 probes liveness
	return process.Signal(syscall.Signal(0)) == nil
}
