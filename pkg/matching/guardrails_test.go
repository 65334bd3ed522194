package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
)

func codes(failures []models.GuardrailFailure) []models.GuardrailCode {
	out := make([]models.GuardrailCode, 0, len(failures))
	for _, f := range failures {
		out = append(out, f.Code)
	}
	return out
}

func TestGuardrailChecker_Check(t *testing.T) {
	g := NewGuardrailChecker(DefaultConfig())
	product := models.CatalogProduct{
		ID:               "p-1",
		Producer:         "Château Margaux",
		Name:             "Château Margaux",
		Vintage:          ptr(2016),
		VolumeML:         ptr(750),
		ABV:              ptr(13.5),
		PackType:         models.PackTypeSingle,
		VintageSensitive: true,
	}

	tests := []struct {
		name    string
		line    models.ImportLine
		product func(p models.CatalogProduct) models.CatalogProduct
		want    []models.GuardrailCode
	}{
		{
			name: "clean",
			line: models.ImportLine{Name: "Margaux", Vintage: "2016", Volume: "75cl", ABV: "13.5%", PackType: "bottle"},
			want: []models.GuardrailCode{},
		},
		{
			name: "vintage mismatch",
			line: models.ImportLine{Name: "Margaux", Vintage: "2015"},
			want: []models.GuardrailCode{models.GuardrailVintageMismatch},
		},
		{
			name: "vintage ignored for non vintage sensitive family",
			line: models.ImportLine{Name: "Margaux", Vintage: "2015"},
			product: func(p models.CatalogProduct) models.CatalogProduct {
				p.VintageSensitive = false
				return p
			},
			want: []models.GuardrailCode{},
		},
		{
			name: "abv within tolerance",
			line: models.ImportLine{Name: "Margaux", ABV: "14"},
			want: []models.GuardrailCode{},
		},
		{
			name: "abv over tolerance",
			line: models.ImportLine{Name: "Margaux", ABV: "14.1"},
			want: []models.GuardrailCode{models.GuardrailABVMismatch},
		},
		{
			name: "prefixed abv label is checked",
			line: models.ImportLine{Name: "Margaux", ABV: "alc. 15%"},
			want: []models.GuardrailCode{models.GuardrailABVMismatch},
		},
		{
			name: "abv label with trailing vol",
			line: models.ImportLine{Name: "Margaux", ABV: "ABV 13.5% vol"},
			want: []models.GuardrailCode{},
		},
		{
			name: "unitless centilitres",
			line: models.ImportLine{Name: "Margaux", Volume: "75"},
			want: []models.GuardrailCode{},
		},
		{
			name: "unitless centilitres of another size",
			line: models.ImportLine{Name: "Margaux", Volume: "150"},
			want: []models.GuardrailCode{models.GuardrailVolumeMismatch},
		},
		{
			name: "pack type mismatch",
			line: models.ImportLine{Name: "Margaux", PackType: "case", Volume: "6x75cl"},
			want: []models.GuardrailCode{models.GuardrailPackTypeMismatch},
		},
		{
			name: "pack size mismatch",
			line: models.ImportLine{Name: "Margaux", PackType: "case", Volume: "6x75cl"},
			product: func(p models.CatalogProduct) models.CatalogProduct {
				p.PackType = models.PackTypeCase
				p.UnitsPerCase = ptr(12)
				return p
			},
			want: []models.GuardrailCode{models.GuardrailPackSizeMismatch},
		},
		{
			name: "volume mismatch",
			line: models.ImportLine{Name: "Margaux", Volume: "1.5l"},
			want: []models.GuardrailCode{models.GuardrailVolumeMismatch},
		},
		{
			name: "missing values never fail",
			line: models.ImportLine{Name: "Margaux"},
			want: []models.GuardrailCode{},
		},
		{
			name: "several failures",
			line: models.ImportLine{Name: "Margaux", Vintage: "2015", Volume: "37.5cl", ABV: "12"},
			want: []models.GuardrailCode{models.GuardrailVintageMismatch, models.GuardrailABVMismatch, models.GuardrailVolumeMismatch},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := product
			if tt.product != nil {
				p = tt.product(p)
			}
			got := g.Check(normalizers.NormalizeLine(tt.line), p)
			assert.Equal(t, tt.want, codes(got))
			for _, f := range got {
				assert.NotEmpty(t, f.Detail)
			}
		})
	}
}

func TestGuardrailChecker_VolumeTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolumeToleranceML = 20
	g := NewGuardrailChecker(cfg)

	p := models.CatalogProduct{ID: "p-1", Name: "Sancerre", VolumeML: ptr(750)}
	require.Empty(t, g.Check(normalizers.NormalizeLine(models.ImportLine{Name: "Sancerre", Volume: "740ml"}), p))
	require.Len(t, g.Check(normalizers.NormalizeLine(models.ImportLine{Name: "Sancerre", Volume: "700ml"}), p), 1)
}
