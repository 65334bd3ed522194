package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func margaux(id string, vintage int) models.CatalogProduct {
	return models.CatalogProduct{
		ID:               id,
		FamilyID:         "fam-margaux",
		Producer:         "Château Margaux",
		Name:             "Château Margaux",
		Vintage:          ptr(vintage),
		VolumeML:         ptr(750),
		Country:          "France",
		Region:           "Bordeaux",
		VintageSensitive: true,
	}
}

func testCatalog() *MemoryCatalog {
	m2015 := margaux("p-margaux-2015", 2015)
	m2015.GTINs = []string{"4006381333931"}
	return NewMemoryCatalog([]models.CatalogProduct{
		m2015,
		margaux("p-margaux-2016", 2016),
		margaux("p-margaux-2017", 2017),
		{
			ID:               "p-cloudy-bay",
			FamilyID:         "fam-cloudy-bay",
			Producer:         "Cloudy Bay",
			Name:             "Sauvignon Blanc",
			Vintage:          ptr(2022),
			VolumeML:         ptr(750),
			Country:          "New Zealand",
			Grapes:           []string{"Sauvignon Blanc"},
			VintageSensitive: true,
		},
	})
}

func newService(catalog Catalog, mappings MappingLookup, mutate ...func(*Config)) *Service {
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return NewService(testLogger(), catalog, mappings, cfg)
}

func TestService_Match_BarcodeHit(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  1,
		BarcodeEach: "4006381333931",
		SupplierSKU: "CM-15",
		Name:        "Margaux 2015",
		Volume:      "750ml",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, result.Decision)
	assert.Equal(t, models.MatchMethodIdentifierExact, result.Method)
	assert.Equal(t, 100.0, result.Score)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "p-margaux-2015", result.Selected.ProductID)
	assert.Contains(t, result.Reasons, "barcode_each 04006381333931 matched exactly")
}

func TestService_Match_BarcodeHitStillChecksGuardrails(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  1,
		BarcodeEach: "4006381333931",
		SupplierSKU: "CM-15",
		Name:        "Margaux",
		Vintage:     "2014",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReviewQueue, result.Decision)
	assert.Equal(t, models.MatchMethodIdentifierExact, result.Method)
	assert.Equal(t, []models.GuardrailCode{models.GuardrailVintageMismatch}, codes(result.GuardrailFailures))
}

func TestService_Match_ExistingSKUMapping(t *testing.T) {
	mappings := NewMemoryMappings()
	mappings.Put(models.SupplierProductMapping{SupplierID: "sup-1", SupplierSKU: "CB22", MasterProductID: "p-cloudy-bay"})
	svc := newService(testCatalog(), mappings)

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  3,
		SupplierSKU: "cb 22",
		Name:        "something the supplier renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, result.Decision)
	assert.Equal(t, models.MatchMethodIdentifierExact, result.Method)
	assert.Equal(t, "p-cloudy-bay", result.Selected.ProductID)

	// other suppliers do not see the mapping
	result, err = svc.Match(context.Background(), "sup-2", "imp-2", models.ImportLine{
		LineNumber:  3,
		SupplierSKU: "cb 22",
		Name:        "something the supplier renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNoMatch, result.Decision)
}

func TestService_Match_MisspelledNameFuzzyMatches(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  2,
		SupplierSKU: "CM-2015",
		Producer:    "Château Margaux",
		Name:        "Chateau Margau 2015",
		Volume:      "75cl",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, result.Decision)
	assert.Equal(t, models.MatchMethodFuzzyText, result.Method)
	assert.Equal(t, "p-margaux-2015", result.Selected.ProductID)
	assert.Greater(t, result.Score, 92.0)
	assert.LessOrEqual(t, result.Score, 100.0)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "p-margaux-2015", result.Candidates[0].ProductID)
	assert.Greater(t, result.Candidates[0].Score, result.Candidates[1].Score)
	assert.NotEmpty(t, result.Selected.Reasons)
}

func TestService_Match_SamplingBand(t *testing.T) {
	line := models.ImportLine{
		LineNumber:  2,
		SupplierSKU: "CM-2015",
		Producer:    "Château Margaux",
		Name:        "Chateau Margau 2015",
		Volume:      "75cl",
	}
	band := func(rate float64) func(*Config) {
		return func(c *Config) {
			c.Thresholds.Auto = 100
			c.Thresholds.Sampling = 90
			c.SamplingRate = rate
		}
	}

	result, err := newService(testCatalog(), nil, band(1)).Match(context.Background(), "sup-1", "imp-1", line)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatchWithSampling, result.Decision)
	assert.True(t, result.AuditSampled)

	result, err = newService(testCatalog(), nil, band(0)).Match(context.Background(), "sup-1", "imp-1", line)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatchWithSampling, result.Decision)
	assert.False(t, result.AuditSampled)
}

func TestService_Match_VintageGuardrail(t *testing.T) {
	catalog := NewMemoryCatalog([]models.CatalogProduct{
		margaux("p-margaux-2016", 2016),
		margaux("p-margaux-2017", 2017),
	})
	svc := newService(catalog, NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  4,
		SupplierSKU: "CM-2015",
		Producer:    "Château Margaux",
		Name:        "Chateau Margaux",
		Vintage:     "2015",
		Volume:      "750 ml",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReviewQueue, result.Decision)
	assert.Equal(t, []models.GuardrailCode{models.GuardrailVintageMismatch}, codes(result.GuardrailFailures))
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "p-margaux-2016", result.Candidates[0].ProductID)
	assert.Equal(t, "p-margaux-2017", result.Candidates[1].ProductID)
	assert.Equal(t, result.Candidates[0].Score, result.Candidates[1].Score)
}

func TestService_Match_GuardrailPolicy(t *testing.T) {
	strong := margaux("p-1", 2015)
	strong.ABV = ptr(13.0)
	nv := margaux("p-2", 0)
	nv.Vintage = nil
	catalog := NewMemoryCatalog([]models.CatalogProduct{strong, nv})

	line := models.ImportLine{
		LineNumber:  5,
		SupplierSKU: "CM",
		Producer:    "Château Margaux",
		Name:        "Chateau Margaux",
		Vintage:     "2015",
		Volume:      "750ml",
		ABV:         "14.5",
	}

	result, err := newService(catalog, nil).Match(context.Background(), "sup-1", "imp-1", line)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReviewQueue, result.Decision)
	assert.Equal(t, "p-1", result.Selected.ProductID)
	assert.Equal(t, []models.GuardrailCode{models.GuardrailABVMismatch}, codes(result.GuardrailFailures))

	nextPassing := func(c *Config) { c.GuardrailPolicy = GuardrailPolicyNextPassing }
	result, err = newService(catalog, nil, nextPassing).Match(context.Background(), "sup-1", "imp-1", line)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, result.Decision)
	assert.Equal(t, "p-2", result.Selected.ProductID)
	assert.Empty(t, result.GuardrailFailures)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "p-1", result.Candidates[0].ProductID)
}

func TestService_Match_AmbiguousDuplicates(t *testing.T) {
	catalog := NewMemoryCatalog([]models.CatalogProduct{
		margaux("p-a", 2015),
		margaux("p-b", 2015),
	})

	result, err := newService(catalog, nil).Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  6,
		SupplierSKU: "CM",
		Producer:    "Château Margaux",
		Name:        "Chateau Margaux 2015",
		Volume:      "750ml",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReviewQueue, result.Decision)
	assert.Equal(t, "p-a", result.Selected.ProductID)
}

func TestService_Match_NoCandidates(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber:  7,
		SupplierSKU: "UNK",
		Name:        "Unknown Wine XYZ123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNoMatch, result.Decision)
	assert.Equal(t, models.MatchMethodNone, result.Method)
	assert.Empty(t, result.Candidates)
	assert.Nil(t, result.Selected)
}

func TestService_Match_WithoutSKUGoesToReview(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	result, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber: 8,
		Producer:   "Château Margaux",
		Name:       "Chateau Margau 2015",
		Volume:     "75cl",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReviewQueue, result.Decision)

	svc = newService(testCatalog(), nil, func(c *Config) { c.RequireSKUForAuto = false })
	result, err = svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{
		LineNumber: 8,
		Producer:   "Château Margaux",
		Name:       "Chateau Margau 2015",
		Volume:     "75cl",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatch, result.Decision)
}

func TestService_Match_MalformedLine(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())

	_, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{LineNumber: 9})
	assert.ErrorIs(t, err, models.ErrMalformedLine)

	_, err = svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{Name: "Margaux"})
	assert.ErrorIs(t, err, models.ErrMalformedLine)
}

type failingCatalog struct {
	*MemoryCatalog
}

func (f failingCatalog) FindCandidates(context.Context, BlockingKeys, int) ([]models.CatalogProduct, error) {
	return nil, errors.New("connection reset")
}

func TestService_Match_LookupFailure(t *testing.T) {
	svc := newService(failingCatalog{testCatalog()}, nil)

	_, err := svc.Match(context.Background(), "sup-1", "imp-1", models.ImportLine{LineNumber: 10, Name: "Chateau Margaux"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestService_Ping(t *testing.T) {
	catalog := testCatalog()
	svc := newService(catalog, nil)
	require.NoError(t, svc.Ping(context.Background()))

	catalog.PingErr = errors.New("down")
	assert.ErrorIs(t, svc.Ping(context.Background()), models.ErrCatalogUnavailable)
}

func TestService_Match_IsDeterministic(t *testing.T) {
	svc := newService(testCatalog(), NewMemoryMappings())
	line := models.ImportLine{
		LineNumber:  11,
		SupplierSKU: "X",
		Producer:    "Chateau Margaux",
		Name:        "Margaux",
	}

	first, err := svc.Match(context.Background(), "sup-1", "imp-1", line)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := svc.Match(context.Background(), "sup-1", "imp-1", line)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
