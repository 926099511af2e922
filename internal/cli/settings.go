package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/convotone/internal/config"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print every setting with its effective value",
		Long: `Print each setting as KEY=value after defaults, the config file, the
dotenv file and the environment are applied. Values are printed before
validation, so a rejected value can be inspected here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.loadEnvFile(); err != nil {
				return err
			}
			values, err := config.Effective(opts.configFile)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			for _, k := range config.Keys() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k])
			}
			return nil
		},
	}
}
