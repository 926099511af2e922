package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ent0n29/convotone/internal/app"
)

func newBindingsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "Print the resolved service bindings with secrets removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			creds, err := app.ResolveCredentials(cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(creds.Redacted())
		},
	}
}
