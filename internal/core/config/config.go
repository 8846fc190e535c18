package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "mediagrab"
)

const (
	DefaultPort            = 8080
	DefaultCookieDomain    = ".youtube.com"
	DefaultRefreshInterval = 24 * time.Hour
	DefaultRetries         = 3
	DefaultResolveTimeout  = 2 * time.Minute
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultMaxEntries      = 200
)

// ConfigDir returns the standard config directory for mediagrab.
// Windows: %APPDATA%\mediagrab\
// macOS/Linux: ~/.config/mediagrab/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
// e.g., ~/.config/mediagrab/config.yml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// Directory holding cached media files
	MediaDir string `yaml:"media_dir,omitempty"`

	// Netscape cookie file handed to the extractors
	CookieFile string `yaml:"cookie_file,omitempty"`

	// Log level: debug, info, warn, error
	LogLevel string `yaml:"log_level,omitempty"`

	Server    ServerConfig    `yaml:"server,omitempty"`
	Telegram  TelegramConfig  `yaml:"telegram,omitempty"`
	Extractor ExtractorConfig `yaml:"extractor,omitempty"`
	Cookies   CookiesConfig   `yaml:"cookies,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
}

// ServerConfig holds HTTP server settings for `mediagrab serve`
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `yaml:"port,omitempty"`

	// APIKey guards /download and /file when set (X-API-Key header)
	APIKey string `yaml:"api_key,omitempty"`

	// PublicURL is the externally reachable base URL, used for the
	// webhook registration and for /file links handed to chat users
	PublicURL string `yaml:"public_url,omitempty"`
}

// TelegramConfig holds the bot credentials
type TelegramConfig struct {
	BotToken string `yaml:"bot_token,omitempty"`

	// APIBase overrides https://api.telegram.org (self-hosted Bot API servers)
	APIBase string `yaml:"api_base,omitempty"`
}

// ExtractorConfig tunes the yt-dlp invocation
type ExtractorConfig struct {
	Binary          string        `yaml:"binary,omitempty"`
	Format          string        `yaml:"format,omitempty"`
	Retries         int           `yaml:"retries,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	DownloadTimeout time.Duration `yaml:"download_timeout,omitempty"`
}

// CookiesConfig controls the background cookie refresh
type CookiesConfig struct {
	// Domain lists the cookie domains to export, comma separated
	// (default: .youtube.com). Add .instagram.com to authenticate reels.
	Domain string `yaml:"domain,omitempty"`

	// Chromium user data dir to read cookies from. Empty disables refresh.
	BrowserProfile string `yaml:"browser_profile,omitempty"`

	// Browser binary, falls back to ROD_BROWSER or rod's own lookup
	BrowserBin string `yaml:"browser_bin,omitempty"`

	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// CacheConfig bounds the on-disk media cache
type CacheConfig struct {
	// MaxEntries is the LRU bound; 0 means unbounded
	MaxEntries int `yaml:"max_entries"`
}

// envOverrides lists the variables that take precedence over config.yml.
type envOverrides struct {
	Port           int    `env:"MEDIAGRAB_PORT"`
	MediaDir       string `env:"MEDIAGRAB_MEDIA_DIR"`
	CookieFile     string `env:"MEDIAGRAB_COOKIE_FILE"`
	APIKey         string `env:"MEDIAGRAB_API_KEY"`
	LogLevel       string `env:"MEDIAGRAB_LOG_LEVEL"`
	BotToken       string `env:"TELEGRAM_BOT_TOKEN"`
	PublicURL      string `env:"PUBLIC_URL"`
	YtdlpBin       string `env:"YTDLP_BIN"`
	BrowserProfile string `env:"MEDIAGRAB_BROWSER_PROFILE"`
}

// DefaultMediaDir returns the default media cache directory
func DefaultMediaDir() string {
	// Docker: use the default container path (users mount their volume here)
	if IsRunningInDocker() {
		return "/home/mediagrab/media"
	}

	dir, err := ConfigDir()
	if err != nil {
		return "./media"
	}
	return filepath.Join(dir, "media")
}

// DefaultCookieFile returns the default Netscape cookie file location
func DefaultCookieFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return "cookies.txt"
	}
	return filepath.Join(dir, "cookies.txt")
}

// IsRunningInDocker detects if we're running inside a Docker container
func IsRunningInDocker() bool {
	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	// Check cgroup
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}
	// Check for kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	return false
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MediaDir:   DefaultMediaDir(),
		CookieFile: DefaultCookieFile(),
		LogLevel:   "info",
		Server: ServerConfig{
			Port: DefaultPort,
		},
		Extractor: ExtractorConfig{
			Binary:          "yt-dlp",
			Retries:         DefaultRetries,
			Timeout:         DefaultResolveTimeout,
			DownloadTimeout: DefaultDownloadTimeout,
		},
		Cookies: CookiesConfig{
			Domain:          DefaultCookieDomain,
			RefreshInterval: DefaultRefreshInterval,
		},
		Cache: CacheConfig{
			MaxEntries: DefaultMaxEntries,
		},
	}
}

// Exists checks if config file exists
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config from ~/.config/mediagrab/config.yml
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads a config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.MediaDir = expandPath(cfg.MediaDir)
	cfg.CookieFile = expandPath(cfg.CookieFile)
	cfg.Cookies.BrowserProfile = expandPath(cfg.Cookies.BrowserProfile)
	cfg.fillDefaults()

	return cfg, nil
}

// fillDefaults restores defaults for zero values a partial config file left behind.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.MediaDir == "" {
		c.MediaDir = d.MediaDir
	}
	if c.CookieFile == "" {
		c.CookieFile = d.CookieFile
	}
	if c.Server.Port <= 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Extractor.Binary == "" {
		c.Extractor.Binary = d.Extractor.Binary
	}
	if c.Extractor.Retries <= 0 {
		c.Extractor.Retries = d.Extractor.Retries
	}
	if c.Extractor.Timeout <= 0 {
		c.Extractor.Timeout = d.Extractor.Timeout
	}
	if c.Extractor.DownloadTimeout <= 0 {
		c.Extractor.DownloadTimeout = d.Extractor.DownloadTimeout
	}
	if c.Cookies.Domain == "" {
		c.Cookies.Domain = d.Cookies.Domain
	}
	if c.Cookies.RefreshInterval <= 0 {
		c.Cookies.RefreshInterval = d.Cookies.RefreshInterval
	}
	if c.Cache.MaxEntries < 0 {
		c.Cache.MaxEntries = 0
	}
}

// ApplyEnv overlays environment variables (and a .env file in the working
// directory, if present) on top of the config. A variable that does not
// parse is skipped and reported in the returned error; the others still
// apply.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	bad := dropInvalidEnv(es)

	var o envOverrides
	if err := env.Unmarshal(es, &o); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	c.applyOverrides(o)

	if len(bad) > 0 {
		return fmt.Errorf("ignored invalid environment values: %s", strings.Join(bad, "; "))
	}
	return nil
}

// dropInvalidEnv removes override variables whose values do not parse into
// their field and describes each one.
func dropInvalidEnv(es env.EnvSet) []string {
	var bad []string
	t := reflect.TypeOf(envOverrides{})
	for i := 0; i < t.NumField(); i++ {
		key, _, _ := strings.Cut(t.Field(i).Tag.Get("env"), ",")
		value, ok := es[key]
		if !ok {
			continue
		}
		var one envOverrides
		if err := env.Unmarshal(env.EnvSet{key: value}, &one); err != nil {
			bad = append(bad, fmt.Sprintf("%s=%q: %v", key, value, err))
			delete(es, key)
		}
	}
	return bad
}

func (c *Config) applyOverrides(o envOverrides) {

	if o.Port > 0 {
		c.Server.Port = o.Port
	}
	if o.MediaDir != "" {
		c.MediaDir = expandPath(o.MediaDir)
	}
	if o.CookieFile != "" {
		c.CookieFile = expandPath(o.CookieFile)
	}
	if o.APIKey != "" {
		c.Server.APIKey = o.APIKey
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.BotToken != "" {
		c.Telegram.BotToken = o.BotToken
	}
	if o.PublicURL != "" {
		c.Server.PublicURL = strings.TrimRight(o.PublicURL, "/")
	}
	if o.YtdlpBin != "" {
		c.Extractor.Binary = o.YtdlpBin
	}
	if o.BrowserProfile != "" {
		c.Cookies.BrowserProfile = expandPath(o.BrowserProfile)
	}
}

// expandPath expands the tilde (~) in the path to the user's home directory.
// It handles both forward and backward slashes to ensure cross-platform compatibility
// for configuration files.
func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		// Only expand if it's explicitly "~", "~/", or "~\"
		if len(path) == 1 || path[1] == '/' || path[1] == '\\' {
			home, err := os.UserHomeDir()
			if err == nil {
				subPath := path[1:]
				if len(subPath) > 0 && (subPath[0] == '/' || subPath[0] == '\\') {
					subPath = subPath[1:]
				}
				return filepath.Join(home, subPath)
			}
		}
	}

	return path
}

// ExpandPath is the exported form used by command-line flag handling.
func ExpandPath(path string) string {
	return expandPath(path)
}

// Save writes the config to ~/.config/mediagrab/config.yml
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# mediagrab configuration file\n# Run 'mediagrab init' to regenerate with defaults\n\n"
	content := header + string(data)

	return os.WriteFile(configPath, []byte(content), 0600)
}

// SavePath returns the path where config will be saved
func SavePath() string {
	if path, err := ConfigPath(); err == nil {
		return path
	}
	return "config.yml"
}

// Init creates a new config.yml with default values
func Init() error {
	if Exists() {
		path, _ := ConfigPath()
		return fmt.Errorf("%s already exists", path)
	}
	return Save(DefaultConfig())
}

// LoadOrDefault loads config if it exists, otherwise returns defaults.
// Environment overrides are applied in both cases. The config is always
// usable; a non-nil error lists environment values that were ignored.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		cfg = DefaultConfig()
	}
	return cfg, cfg.ApplyEnv()
}
