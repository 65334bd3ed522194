package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/vine/pkg/matching"
	"github.com/Ramsey-B/vine/pkg/models"
)

type previewLine struct {
	LineNumber  int                 `json:"line_number"`
	SupplierSKU string              `json:"supplier_sku,omitempty"`
	Result      *models.MatchResult `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// newPreviewCmd matches lines against a catalog snapshot without a database.
// Nothing is written.
func newPreviewCmd() *cobra.Command {
	var (
		catalogPath     string
		linesPath       string
		mappingsPath    string
		calibrationPath string
		supplierID      string
		logLevel        string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview match decisions against a catalog snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, sync, err := newLogger(logLevel, true)
			if err != nil {
				return codeError(3, "invalid --log-level: %s", err)
			}
			defer sync()

			products, err := readJSONFile[[]models.CatalogProduct](catalogPath)
			if err != nil {
				return codeError(3, "%s", err)
			}
			lines, err := readJSONFile[[]models.ImportLine](linesPath)
			if err != nil {
				return codeError(3, "%s", err)
			}
			numberLines(lines)

			mappings := matching.NewMemoryMappings()
			if mappingsPath != "" {
				known, err := readJSONFile[[]models.SupplierProductMapping](mappingsPath)
				if err != nil {
					return codeError(3, "%s", err)
				}
				for _, m := range known {
					mappings.Put(m)
				}
			}

			cfg := matching.DefaultConfig()
			if calibrationPath != "" {
				if cfg, err = matching.LoadCalibration(calibrationPath, cfg); err != nil {
					return codeError(3, "%s", err)
				}
			}

			svc := matching.NewService(logger, matching.NewMemoryCatalog(products), mappings, cfg)
			ctx := cmd.Context()

			out := make([]previewLine, 0, len(lines))
			for _, line := range lines {
				pl := previewLine{LineNumber: line.LineNumber, SupplierSKU: line.SupplierSKU}
				result, err := svc.Match(ctx, supplierID, "preview", line)
				if err != nil {
					pl.Error = err.Error()
				} else {
					pl.Result = result
				}
				out = append(out, pl)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "JSON file with catalog products")
	cmd.Flags().StringVar(&linesPath, "lines", "", "JSON file with import lines")
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "JSON file with known supplier mappings")
	cmd.Flags().StringVar(&calibrationPath, "calibration", "", "YAML calibration file")
	cmd.Flags().StringVar(&supplierID, "supplier", "preview", "Supplier id used for mapping lookups")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("lines")
	return cmd
}
