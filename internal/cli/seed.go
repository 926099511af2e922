package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/convotone/internal/app"
	"github.com/ent0n29/convotone/internal/logstore"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert conversation logs from a JSON file",
		Long: `Insert conversation log documents into the configured store.

The file holds a JSON array of documents shaped like the GET /api/logs
response. Missing ids and dates are filled in on insert.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			docs, err := readSeedFile(file)
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			built, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					logger.Warn().Err(err).Msg("cleanup failed")
				}
			}()

			for i, doc := range docs {
				saved, err := built.Logs.Save(cmd.Context(), doc)
				if err != nil {
					return fmt.Errorf("insert document %d: %w", i, err)
				}
				logger.Debug().Str("id", string(saved.ID)).Str("conversation", saved.Conversation).Msg("seeded")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d\n", len(docs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an array of log documents")
	return cmd
}

func readSeedFile(path string) ([]logstore.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var docs []logstore.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return docs, nil
}
