package matching

import (
	"fmt"
	"math"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
)

// GuardrailChecker applies hard domain rules that no score can override.
type GuardrailChecker struct {
	abvTolerance      float64
	volumeToleranceML int
}

func NewGuardrailChecker(cfg Config) *GuardrailChecker {
	return &GuardrailChecker{
		abvTolerance:      cfg.ABVTolerance,
		volumeToleranceML: cfg.VolumeToleranceML,
	}
}

// Check returns every rule the pairing violates; an empty result is a pass.
// Rules only fire when both sides carry the value.
func (g *GuardrailChecker) Check(line normalizers.Wine, product models.CatalogProduct) []models.GuardrailFailure {
	cand := normalizers.NormalizeProduct(product)
	var failures []models.GuardrailFailure

	if line.Vintage != nil && cand.Vintage != nil && *line.Vintage != *cand.Vintage && product.VintageSensitive {
		failures = append(failures, models.GuardrailFailure{
			Code:   models.GuardrailVintageMismatch,
			Detail: fmt.Sprintf("line vintage %d, catalog vintage %d", *line.Vintage, *cand.Vintage),
		})
	}

	if line.ABV != nil && cand.ABV != nil {
		// compare in tenths to avoid float noise at the tolerance edge
		diff := math.Abs(math.Round(*line.ABV*10) - math.Round(*cand.ABV*10))
		if diff > math.Round(g.abvTolerance*10) {
			failures = append(failures, models.GuardrailFailure{
				Code:   models.GuardrailABVMismatch,
				Detail: fmt.Sprintf("line abv %.1f%%, catalog abv %.1f%%, tolerance %.1f", *line.ABV, *cand.ABV, g.abvTolerance),
			})
		}
	}

	if line.PackType != "" && cand.PackType != "" {
		if line.PackType != cand.PackType {
			failures = append(failures, models.GuardrailFailure{
				Code:   models.GuardrailPackTypeMismatch,
				Detail: fmt.Sprintf("line is %s, catalog is %s", line.PackType, cand.PackType),
			})
		} else if line.PackType == models.PackTypeCase && line.UnitsPerCase != nil && cand.UnitsPerCase != nil &&
			*line.UnitsPerCase != *cand.UnitsPerCase {
			failures = append(failures, models.GuardrailFailure{
				Code:   models.GuardrailPackSizeMismatch,
				Detail: fmt.Sprintf("line case of %d, catalog case of %d", *line.UnitsPerCase, *cand.UnitsPerCase),
			})
		}
	}

	if line.VolumeML != nil && cand.VolumeML != nil && abs(*line.VolumeML-*cand.VolumeML) > g.volumeToleranceML {
		failures = append(failures, models.GuardrailFailure{
			Code:   models.GuardrailVolumeMismatch,
			Detail: fmt.Sprintf("line %dml, catalog %dml", *line.VolumeML, *cand.VolumeML),
		})
	}

	return failures
}
