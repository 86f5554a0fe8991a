// Package main is the pixelboard entry point.
//
// COMMANDS:
//
//	pixelboard serve   [--config pixelboard.yaml]   run the canvas server
//	pixelboard migrate [--config pixelboard.yaml]   create or upgrade the schema and exit
//
// Settings come from the optional YAML file with environment variables on
// top (see internal/config). main only builds the logger and hands off; all
// wiring lives in internal/server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/pixelboard/internal/config"
	"github.com/sakif/pixelboard/internal/server"
)

func main() {
	if err := newRootCommand(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
	getenv     func(string) string
}

// load reads the configuration and builds the process logger from it.
func (o *rootOptions) load(out io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath, o.getenv)
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{getenv: getenv}

	cmd := &cobra.Command{
		Use:           "pixelboard",
		Short:         "Shared real-time pixel canvas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			// SIGINT/SIGTERM cancel ctx, which starts the graceful shutdown.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to start", slog.String("error", err.Error()))
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			db, err := server.OpenDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.Info("migrations applied",
				slog.String("db_driver", cfg.DBDriver),
			)
			return nil
		},
	}
}
