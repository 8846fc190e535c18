package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guiyumin/mediagrab/internal/core/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the mediagrab config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", config.SavePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
