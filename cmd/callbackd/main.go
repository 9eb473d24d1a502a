// Command callbackd receives anchor transaction callbacks behind the ipgate
// client address filter.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/synapse-core/ipgate/internal/config"
	"github.com/synapse-core/ipgate/internal/logging"
)

var Version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "callbackd",
		Short:         "Anchor callback service guarded by a client address allowlist",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", envOr("CALLBACKD_CONFIG", ""), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional .env file loaded before the environment is read")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(checkConfigCmd(opts))

	return rootCmd
}

// load reads and validates the configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	if o.envFile != "" {
		if err := config.LoadDotEnv(o.envFile); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
