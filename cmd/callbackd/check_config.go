package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the resulting access filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			filter, err := buildFilter(cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listen: %s\n", cfg.Server.Address())
			if cfg.GRPC.Addr != "" {
				fmt.Fprintf(out, "grpc: %s\n", cfg.GRPC.Addr)
			}
			fmt.Fprintf(out, "forwarding header: %s\n", filter.HeaderName())
			fmt.Fprintf(out, "trusted proxy depth: %d\n", filter.TrustedProxyDepth())
			fmt.Fprintf(out, "allowlist (%d): %s\n", filter.AllowList().Len(), filter.AllowList())
			if filter.AllowList().Len() == 0 {
				fmt.Fprintln(out, "warning: empty allowlist rejects every protected request")
			}
			return nil
		},
	}
}
