package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/tui"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for archivedl.

To load completions:

Bash:
  $ source <(archivedl completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ archivedl completion bash > /etc/bash_completion.d/archivedl
  # macOS:
  $ archivedl completion bash > /usr/local/etc/bash_completion.d/archivedl

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ archivedl completion zsh > "${fpath[1]}/_archivedl"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ archivedl completion fish | source

  # To load completions for each session, execute once:
  $ archivedl completion fish > ~/.config/fish/completions/archivedl.fish

PowerShell:
  PS> archivedl completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> archivedl completion powershell > archivedl.ps1
  # and source this file from your PowerShell profile.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	// Add dynamic completion for rip IDs
	resumeCmd.ValidArgsFunction = completeRipIDs
	restartCmd.ValidArgsFunction = completeRipIDs
	verifyCmd.ValidArgsFunction = completeRipIDs
	stitchCmd.ValidArgsFunction = completeRipIDs
	removeCmd.ValidArgsFunction = completeRipIDs
}

// completeRipIDs provides dynamic completion for rip IDs
func completeRipIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	rips, err := db.ListRips("", true)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var completions []string
	for _, r := range rips {
		// Format: "ID\tTitle (Status)"
		completions = append(completions, fmt.Sprintf("%d\t%s (%s)", r.ID, tui.Truncate(ripTitle(r), 40), r.Status))
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}
