package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/vine/config"
)

func newMigrateCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// the run lock and event stream are not needed to migrate
			cfg.RedisEnabled = false
			cfg.KafkaEnabled = false

			logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return codeError(3, "invalid LOG_LEVEL: %s", err)
			}
			defer sync()

			a, err := newApp(cmd.Context(), cfg, logger, appOptions{migrate: true})
			if err != nil {
				return codeError(2, "%s", err)
			}
			a.close(context.Background())
			logger.Info("Migrations applied")
			return nil
		},
	}
}
