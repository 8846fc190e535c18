package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for mediagrab.

Bash:
  # Add to ~/.bashrc:
  source <(mediagrab completion bash)

Zsh:
  # Add to ~/.zshrc:
  source <(mediagrab completion zsh)

  # Or install to fpath:
  mediagrab completion zsh > "${fpath[1]}/_mediagrab"

Fish:
  mediagrab completion fish > ~/.config/fish/completions/mediagrab.fish

PowerShell:
  mediagrab completion powershell >> $PROFILE
`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return cmd.Help()
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)

	configGetCmd.ValidArgsFunction = completeConfigKey
	configSetCmd.ValidArgsFunction = completeConfigKey
	configUnsetCmd.ValidArgsFunction = completeConfigKey
}

// completeConfigKey completes the first argument of config get/set/unset
func completeConfigKey(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return configKeyNames(), cobra.ShellCompDirectiveNoFileComp
}
