package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or refresh the cookie file handed to yt-dlp",
}

var cookiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the cookie file is usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		store := a.Cookies

		fmt.Fprintf(w, "  Path:   %s\n", store.Path())
		if !store.Valid() {
			fmt.Fprintf(w, "  Status: %s\n", color.RedString("missing or not a Netscape cookie file"))
			return nil
		}
		fmt.Fprintf(w, "  Status: %s\n", color.GreenString("valid"))

		f, err := store.Freshness(time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  Cookies: %d (%d expired)\n", f.Total, f.Expired)
		fmt.Fprintf(w, "  Updated: %s\n", humanize.Time(f.ModTime))
		if f.Expired > 0 {
			fmt.Fprintf(w, "  %s\n", color.YellowString("Some cookies have expired, run 'mediagrab cookies refresh'"))
		}
		return nil
	},
}

var cookiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Export cookies from the configured browser profile now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		if a.Refresher == nil {
			return fmt.Errorf("no browser profile configured, set cookies.browser_profile or MEDIAGRAB_BROWSER_PROFILE")
		}
		n, err := a.Refresher.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s wrote %d cookies to %s\n", color.GreenString("✓"), n, a.Cookies.Path())
		return nil
	},
}

func init() {
	cookiesCmd.AddCommand(cookiesCheckCmd, cookiesRefreshCmd)
	rootCmd.AddCommand(cookiesCmd)
}
