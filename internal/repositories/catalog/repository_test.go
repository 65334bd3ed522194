package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/internal/repositories/catalog"
	"github.com/Ramsey-B/vine/internal/testhelpers"
	"github.com/Ramsey-B/vine/pkg/matching"
	"github.com/Ramsey-B/vine/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func products() []models.CatalogProduct {
	margaux := func(id string, vintage int) models.CatalogProduct {
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
	m2015 := margaux("p-margaux-2015", 2015)
	m2015.GTINs = []string{"4006381333931"}
	return []models.CatalogProduct{
		m2015,
		margaux("p-margaux-2016", 2016),
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
	}
}

func TestRepository_RebuildAndLookup(t *testing.T) {
	pg := testhelpers.GetPostgres(t)
	pg.SeedProducts(t, products()...)
	logger := testhelpers.Logger()
	repo := catalog.NewRepository(pg.DB, logger)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	n, err := matching.NewIndexer(logger, repo, repo, 2).Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := repo.FindByGTIN(ctx, "04006381333931")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p-margaux-2015", hits[0].ID)
	assert.True(t, hits[0].VintageSensitive)

	keys := matching.IndexProduct(products()[2], matching.NewScorer())
	candidates, err := repo.FindCandidates(ctx, matching.BlockingKeys{Keys: keys.Keys, Country: keys.Country}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "p-cloudy-bay", candidates[0].ID)
	assert.Equal(t, []string{"Sauvignon Blanc"}, candidates[0].Grapes)

	missing, err := repo.GetProduct(ctx, "p-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_RebuildReplacesIndex(t *testing.T) {
	pg := testhelpers.GetPostgres(t)
	pg.SeedProducts(t, products()...)
	logger := testhelpers.Logger()
	repo := catalog.NewRepository(pg.DB, logger)
	ctx := context.Background()

	indexer := matching.NewIndexer(logger, repo, repo, 0)
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	_, err = pg.SQL.ExecContext(ctx, "DELETE FROM product_identifiers")
	require.NoError(t, err)
	_, err = indexer.Rebuild(ctx)
	require.NoError(t, err)

	hits, err := repo.FindByGTIN(ctx, "04006381333931")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCachedCatalog_ReadThroughAndInvalidate(t *testing.T) {
	pg := testhelpers.GetPostgres(t)
	pg.SeedProducts(t, products()...)
	client := testhelpers.GetRedis(t)
	logger := testhelpers.Logger()
	repo := catalog.NewRepository(pg.DB, logger)
	ctx := context.Background()

	indexer := matching.NewIndexer(logger, repo, repo, 0)
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	cached := catalog.NewCachedCatalog(repo, client, time.Minute, logger)
	first, err := cached.FindByGTIN(ctx, "04006381333931")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the cached read survives a catalog change until invalidated
	_, err = pg.SQL.ExecContext(ctx, "DELETE FROM product_identifiers")
	require.NoError(t, err)
	_, err = indexer.Rebuild(ctx)
	require.NoError(t, err)

	stale, err := cached.FindByGTIN(ctx, "04006381333931")
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	require.NoError(t, cached.Invalidate(ctx))
	fresh, err := cached.FindByGTIN(ctx, "04006381333931")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}
