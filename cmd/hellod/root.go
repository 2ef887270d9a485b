package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"hello-backend/config"
)

const defaultConfigPath = "./config/config.yaml" // Default path for local development

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "hellod",
		Short:         "Hello payload fetcher and snapshot service",
		Long:          "hellod polls the hello endpoint, keeps snapshots of its payload and serves them over HTTP.",
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Command parsing has been successful. Returns to not print usage anymore.
			cmd.SilenceUsage = true
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.CompletionOptions.HiddenDefaultCmd = true

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", configPath, "path to the YAML configuration file (env CONFIG_PATH)")

	cmd.AddCommand(newServeCmd(opts), newFetchCmd(opts))
	return cmd
}

// loadConfig reads the configuration file. When optional is set, a missing
// file yields the defaults instead of an error.
func loadConfig(path string, optional bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if optional && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, nil
}
