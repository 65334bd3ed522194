package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/Gobusters/ectoinject"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/processor"
)

func newMatchCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		from       string
		supplierID string
	)

	cmd := &cobra.Command{
		Use:   "match [import-id]",
		Short: "Run matching for an import and print its summary",
		Long: "Runs matching for an existing import job. With --from, a new job is created\n" +
			"for --supplier from a JSON array of import lines and matched immediately.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") == (len(args) == 0) {
				return codeError(3, "pass either an import id or --from")
			}
			if from != "" && supplierID == "" {
				return codeError(3, "--supplier is required with --from")
			}

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

			importID := ""
			if len(args) == 1 {
				importID = args[0]
			} else {
				lines, err := readJSONFile[[]models.ImportLine](from)
				if err != nil {
					return codeError(3, "%s", err)
				}
				importID, err = a.createImport(ctx, supplierID, lines)
				if err != nil {
					return err
				}
				logger.WithField("import_id", importID).Infof("Created import with %d lines", len(lines))
			}

			ctx, err = a.scope(ctx)
			if err != nil {
				return err
			}
			ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
			if err != nil {
				return codeError(2, "%s", err)
			}

			summary, runErr := proc.RunMatching(ctx, importID)
			if summary != nil {
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			}
			if runErr != nil {
				return codeError(1, "%s", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "JSON file with the lines of a new import")
	cmd.Flags().StringVar(&supplierID, "supplier", "", "Supplier id for a new import")
	return cmd
}

// createImport stores a job and its lines in one transaction.
func (a *app) createImport(ctx context.Context, supplierID string, lines []models.ImportLine) (string, error) {
	numberLines(lines)

	var importID string
	err := database.NewTransactor(a.db, nil).InTx(ctx, func(ctx context.Context) error {
		job, err := a.jobs.Create(ctx, &models.ImportJob{SupplierID: supplierID, TotalLines: len(lines)})
		if err != nil {
			return err
		}
		importID = job.ID
		return a.lines.Insert(ctx, job.ID, lines)
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create import")
	}
	return importID, nil
}

// numberLines fills missing line numbers from file order.
func numberLines(lines []models.ImportLine) {
	for i := range lines {
		if lines[i].LineNumber == 0 {
			lines[i].LineNumber = i + 1
		}
	}
}

func readJSONFile[T any](path string) (T, error) {
	var v T
	raw, err := os.ReadFile(path)
	if err != nil {
		return v, errors.Wrapf(err, "failed to read %s", path)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Wrapf(err, "failed to parse %s", path)
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
