package main

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/internal/repositories/catalog"
	"github.com/Ramsey-B/vine/pkg/matching"
)

func newReindexCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the catalog match index and drop cached catalog reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return codeError(3, "invalid LOG_LEVEL: %s", err)
			}
			defer sync()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return codeError(2, "%s", err)
			}
			defer a.close(context.Background())

			ctx, err = a.scope(ctx)
			if err != nil {
				return err
			}
			ctx, repo, err := ectoinject.GetContext[*catalog.Repository](ctx)
			if err != nil {
				return codeError(2, "%s", err)
			}

			n, err := matching.NewIndexer(logger, repo, repo, cfg.IndexPageSize).Rebuild(ctx)
			if err != nil {
				return codeError(1, "%s", err)
			}
			if a.cache != nil {
				_, cache, err := ectoinject.GetContext[*catalog.CachedCatalog](ctx)
				if err != nil {
					return codeError(2, "%s", err)
				}
				if err := cache.Invalidate(ctx); err != nil {
					return codeError(1, "index rebuilt but cache not invalidated: %s", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"indexed_products": n})
		},
	}
}
