package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for multiportd.

To load completions:

Bash:
  # Linux:
  $ multiportd completion bash > /etc/bash_completion.d/multiportd
  # macOS:
  $ multiportd completion bash > $(brew --prefix)/etc/bash_completion.d/multiportd

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  # Linux:
  $ multiportd completion zsh > "${fpath[1]}/_multiportd"
  # macOS:
  $ multiportd completion zsh > $(brew --prefix)/share/zsh/site-functions/_multiportd

Fish:
  $ multiportd completion fish > ~/.config/fish/completions/multiportd.fish

PowerShell:
  PS> multiportd completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}
