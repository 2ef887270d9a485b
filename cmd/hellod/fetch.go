package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ubuntu/decorate"

	"hello-backend/internal/fetcher"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the payload once and print it",
		Long:  "Fetch issues a single GET against the configured endpoint and prints the decoded payload as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer decorate.OnError(&err, "fetch")

			cfg, err := loadConfig(opts.configPath, !cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Fetcher.URL = url
			}

			payload, err := fetcher.New(cfg.Fetcher).FetchData(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "override the endpoint to fetch from")
	return cmd
}
