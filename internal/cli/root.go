// Package cli holds the convotone command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ent0n29/convotone/internal/config"
	"github.com/ent0n29/convotone/internal/logging"
)

type rootOptions struct {
	configFile string
	envFile    string
}

// NewRootCmd builds a fresh command tree. Each call has its own flag state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "convotone",
		Short: "Conversation log and tone service",
		Long: `convotone serves the conversation logs written by a chat front end and
scores the tone of a conversation through the Watson Tone Analyzer.

Service credentials come from VCAP_SERVICES or a local vcap-local.json file.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "optional config file (yaml, json, toml or env)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded when present")

	root.AddCommand(
		newServeCmd(opts),
		newSeedCmd(opts),
		newBindingsCmd(opts),
		newSettingsCmd(opts),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the dotenv file and configuration, then builds the logger.
// Variables already in the environment win over the dotenv file.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	if err := o.loadEnvFile(); err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func (o *rootOptions) loadEnvFile() error {
	if o.envFile == "" {
		return nil
	}
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}
	return nil
}
