package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guiyumin/mediagrab/internal/core/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage mediagrab configuration",
	Long:  "View and modify the settings stored in config.yml",
}

// mediagrab config show - show current config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (file plus environment)",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, envErr := config.LoadOrDefault()
		w := cmd.OutOrStdout()
		warnEnv(cmd, envErr)

		fmt.Fprintln(w, "Current configuration:")
		for _, name := range configKeyNames() {
			fmt.Fprintf(w, "  %-26s %s\n", name, configKeys[name].get(cfg))
		}
		fmt.Fprintf(w, "\n  Config file: %s\n", config.SavePath())
	},
}

// mediagrab config path - show config file path
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.SavePath())
	},
}

// mediagrab config set KEY VALUE - set a config value
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in config.yml.

Examples:
  mediagrab config set server.port 9000
  mediagrab config set telegram.bot_token 123:abc
  mediagrab config set cookies.browser_profile ~/.config/chromium
  mediagrab config set cache.max_entries 500`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadFileConfig()
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

// mediagrab config get KEY - get a config value
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, envErr := config.LoadOrDefault()
		warnEnv(cmd, envErr)
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

// mediagrab config unset KEY - reset a config value to its default
var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadFileConfig()
		key := args[0]
		if _, err := getConfigValue(cfg, key); err != nil {
			return err
		}
		def, _ := getConfigValue(config.DefaultConfig(), key)
		if err := setConfigValue(cfg, key, def); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetCmd, configGetCmd, configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}

func warnEnv(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("Warning: %v", err))
	}
}

// loadFileConfig reads config.yml without the environment overlay so
// secrets from the environment are never written back to disk.
func loadFileConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

type configKey struct {
	get func(*config.Config) string
	set func(*config.Config, string) error
}

func stringKey(field func(*config.Config) *string) configKey {
	return configKey{
		get: func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error { *field(c) = v; return nil },
	}
}

func pathKey(field func(*config.Config) *string) configKey {
	return configKey{
		get: func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error { *field(c) = config.ExpandPath(v); return nil },
	}
}

func intKey(field func(*config.Config) *int) configKey {
	return configKey{
		get: func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid number: %s", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func durationKey(field func(*config.Config) *time.Duration) configKey {
	return configKey{
		get: func(c *config.Config) string { return field(c).String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid duration: %s (e.g. 90s, 10m, 24h)", v)
			}
			*field(c) = d
			return nil
		},
	}
}

var configKeys = map[string]configKey{
	"media_dir":                  pathKey(func(c *config.Config) *string { return &c.MediaDir }),
	"cookie_file":                pathKey(func(c *config.Config) *string { return &c.CookieFile }),
	"log_level":                  stringKey(func(c *config.Config) *string { return &c.LogLevel }),
	"server.port":                intKey(func(c *config.Config) *int { return &c.Server.Port }),
	"server.api_key":             stringKey(func(c *config.Config) *string { return &c.Server.APIKey }),
	"server.public_url":          stringKey(func(c *config.Config) *string { return &c.Server.PublicURL }),
	"telegram.bot_token":         stringKey(func(c *config.Config) *string { return &c.Telegram.BotToken }),
	"telegram.api_base":          stringKey(func(c *config.Config) *string { return &c.Telegram.APIBase }),
	"extractor.binary":           stringKey(func(c *config.Config) *string { return &c.Extractor.Binary }),
	"extractor.format":           stringKey(func(c *config.Config) *string { return &c.Extractor.Format }),
	"extractor.retries":          intKey(func(c *config.Config) *int { return &c.Extractor.Retries }),
	"extractor.timeout":          durationKey(func(c *config.Config) *time.Duration { return &c.Extractor.Timeout }),
	"extractor.download_timeout": durationKey(func(c *config.Config) *time.Duration { return &c.Extractor.DownloadTimeout }),
	"cookies.domain":             stringKey(func(c *config.Config) *string { return &c.Cookies.Domain }),
	"cookies.browser_profile":    pathKey(func(c *config.Config) *string { return &c.Cookies.BrowserProfile }),
	"cookies.browser_bin":        stringKey(func(c *config.Config) *string { return &c.Cookies.BrowserBin }),
	"cookies.refresh_interval":   durationKey(func(c *config.Config) *time.Duration { return &c.Cookies.RefreshInterval }),
	"cache.max_entries":          intKey(func(c *config.Config) *int { return &c.Cache.MaxEntries }),
}

func configKeyNames() []string {
	names := make([]string, 0, len(configKeys))
	for name := range configKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupKey(key string) (configKey, error) {
	k, ok := configKeys[strings.ToLower(key)]
	if !ok {
		return configKey{}, fmt.Errorf("unknown config key: %s\nKnown keys: %s", key, strings.Join(configKeyNames(), ", "))
	}
	return k, nil
}

func setConfigValue(cfg *config.Config, key, value string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	return k.set(cfg, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	k, err := lookupKey(key)
	if err != nil {
		return "", err
	}
	return k.get(cfg), nil
}
