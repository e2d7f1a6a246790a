package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tendant/video-intake/pkg/intake/config"
)

// app carries what every command shares
type app struct {
	cfg    *config.ServerConfig
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := &cobra.Command{
		Use:               "intake",
		Short:             "Signed direct-to-S3 video uploads with exactly-once ingestion",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(
		newServeCmd(a),
		newIngestCmd(a),
		newMigrateCmd(a),
		newQuotaCmd(a),
		newTokenCmd(a),
		newEnvCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", "err", err)
		}
		stop()
		os.Exit(1)
	}
}

func (a *app) init(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger()
	slog.SetDefault(a.logger)
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(config.Usage() + "\n"))
			return err
		},
	}
}
