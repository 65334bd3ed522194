package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
)

func productIDs(products []models.CatalogProduct) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestKeysFor(t *testing.T) {
	w := normalizers.NormalizeLine(models.ImportLine{Producer: "Château Margaux", Name: "Chateau Margau 2015", Country: "FR"})
	keys := KeysFor(w, NewScorer())

	assert.Equal(t, []string{"p:margaux", "s:M620", "s:M622", "x:marg"}, keys.Keys)
	assert.Equal(t, "FR", keys.Country)
	assert.True(t, KeysFor(normalizers.Wine{}, NewScorer()).Empty())
}

func TestMemoryCatalog_FindCandidates(t *testing.T) {
	catalog := testCatalog()
	scorer := NewScorer()
	ctx := context.Background()

	t.Run("shared keys", func(t *testing.T) {
		keys := KeysFor(normalizers.NormalizeLine(models.ImportLine{Name: "Margau"}), scorer)
		got, err := catalog.FindCandidates(ctx, keys, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"p-margaux-2015", "p-margaux-2016", "p-margaux-2017"}, productIDs(got))
	})

	t.Run("limit", func(t *testing.T) {
		keys := KeysFor(normalizers.NormalizeLine(models.ImportLine{Name: "Margaux"}), scorer)
		got, err := catalog.FindCandidates(ctx, keys, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("incompatible country", func(t *testing.T) {
		keys := KeysFor(normalizers.NormalizeLine(models.ImportLine{Name: "Margaux", Country: "Italy"}), scorer)
		got, err := catalog.FindCandidates(ctx, keys, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ordered by overlap", func(t *testing.T) {
		keys := KeysFor(normalizers.NormalizeLine(models.ImportLine{Producer: "Cloudy Bay", Name: "Margaux"}), scorer)
		got, err := catalog.FindCandidates(ctx, keys, 10)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "p-cloudy-bay", got[0].ID)
	})
}

func TestMemoryCatalog_FindByGTIN(t *testing.T) {
	catalog := testCatalog()

	got, err := catalog.FindByGTIN(context.Background(), "04006381333931")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-margaux-2015"}, productIDs(got))

	// re-adding replaces the old index entries
	p := margaux("p-margaux-2015", 2015)
	catalog.Add(p)
	got, err = catalog.FindByGTIN(context.Background(), "04006381333931")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, catalog.Products(), 4)
}

func TestIdentifierResolver_SharedBarcodeIsNotAHit(t *testing.T) {
	a := margaux("p-a", 2015)
	a.GTINs = []string{"5901234123457"}
	b := margaux("p-b", 2016)
	b.GTINs = []string{"5901234123457"}
	r := NewIdentifierResolver(NewMemoryCatalog([]models.CatalogProduct{a, b}), nil)

	hit, notes, err := r.Resolve(context.Background(), "sup-1", normalizers.NormalizeLine(models.ImportLine{BarcodeCase: "5901234123457"}))
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.Equal(t, []string{"barcode_case 05901234123457 is shared by 2 products"}, notes)
}

func TestIdentifierResolver_CaseBarcodeFirst(t *testing.T) {
	a := margaux("p-a", 2015)
	a.GTINs = []string{"5901234123457"}
	b := margaux("p-b", 2015)
	b.GTINs = []string{"96385074"}
	r := NewIdentifierResolver(NewMemoryCatalog([]models.CatalogProduct{a, b}), nil)

	hit, _, err := r.Resolve(context.Background(), "sup-1", normalizers.NormalizeLine(models.ImportLine{
		BarcodeEach: "96385074",
		BarcodeCase: "5901234123457",
	}))
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "p-a", hit.Product.ID)
	assert.Equal(t, "barcode_case", hit.Via)
}

type memorySource struct {
	products []models.CatalogProduct
}

func (s memorySource) ListProducts(_ context.Context, afterID string, limit int) ([]models.CatalogProduct, error) {
	var out []models.CatalogProduct
	for _, p := range s.products {
		if p.ID > afterID && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingWriter struct {
	entries []ProductKeys
	calls   int
}

func (w *recordingWriter) ReplaceIndex(_ context.Context, entries []ProductKeys) error {
	w.calls++
	w.entries = entries
	return nil
}

func TestIndexer_Rebuild(t *testing.T) {
	source := memorySource{products: testCatalog().Products()}
	writer := &recordingWriter{}

	n, err := NewIndexer(testLogger(), source, writer, 3).Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, writer.calls)
	require.Len(t, writer.entries, 4)

	first := writer.entries[0]
	assert.Equal(t, "p-cloudy-bay", first.ProductID)
	assert.Equal(t, "NZ", first.Country)
	assert.Contains(t, first.Keys, "p:cloudy bay")

	margaux := writer.entries[1]
	assert.Equal(t, "p-margaux-2015", margaux.ProductID)
	assert.Equal(t, []string{"04006381333931"}, margaux.GTINs)
}
