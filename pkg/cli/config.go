package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyweaver/pkg/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long:  `Print the configuration after flags, environment, config file and defaults are merged. The API key is masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := cfg
		if shown.APIKey != "" {
			shown.APIKey = "****"
		}
		if f := v.ConfigFileUsed(); f != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", f)
		}
		fmt.Fprintln(cmd.OutOrStdout(), utils.PrettyJSON(shown))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
