package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orchd-dev/orchd/internal/config"
	"github.com/orchd-dev/orchd/internal/daemon"
	"github.com/orchd-dev/orchd/internal/logger"
	"github.com/orchd-dev/orchd/internal/logger/tag"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orchestration daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		loaderOpts := []config.LoaderOption{}
		if configFile != "" {
			loaderOpts = append(loaderOpts, config.WithConfigFile(configFile))
		}
		if rootDir != "" {
			loaderOpts = append(loaderOpts, config.WithRoot(rootDir))
		}
		cfg, err := config.NewLoader(loaderOpts...).Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		logOpts := []logger.Option{
			logger.WithLevel(cfg.LogLevel),
			logger.WithFormat(cfg.LogFormat),
		}
		if quiet {
			logOpts = append(logOpts, logger.WithQuiet())
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logger.WithLogger(ctx, logger.NewLogger(logOpts...))

		for _, warning := range cfg.Warnings {
			logger.Warn(ctx, warning)
		}

		d, err := daemon.New(ctx, cfg)
		if err != nil {
			logger.Error(ctx, "Daemon startup failed", tag.Error(err))
			return err
		}
		return d.Run(ctx)
	},
}
