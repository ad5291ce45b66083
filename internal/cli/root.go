package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
)

// rootCmd is the root command for isogit.
var rootCmd = &cobra.Command{
	Use:     "isogit",
	Version: "dev",
	Short:   "Pure-Go git working tree tooling",
	Long: `isogit manipulates git repositories without shelling out to git.

The checkout command plans the transition of the working tree and index to
a target ref, reports every conflict up front, and applies the plan under
the index lock.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the isogit CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(os.Stdout, rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkoutCmd)
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}
