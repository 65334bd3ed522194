package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/pkg/models"
)

func TestFoldText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Château d'Yquem", "chateau d yquem"},
		{"  Côtes-du-Rhône  ", "cotes du rhone"},
		{"St.Émilion Grand Cru", "st emilion grand cru"},
		{"Barolo DOCG 2019, 0,75 l", "barolo docg 2019 0.75 l"},
		{"Bründlmayer Grüner Veltliner", "brundlmayer gruner veltliner"},
		{"Søgaard & Sønner", "sogaard sonner"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldText(tt.in))
		})
	}
}

func TestNameTokens_DropsYearAndVolume(t *testing.T) {
	assert.Equal(t, []string{"chateau", "margau"}, NameTokens("Chateau Margau 2015"))
	assert.Equal(t, []string{"barolo", "docg"}, NameTokens("Barolo DOCG 2019 75 cl"))
	assert.Equal(t, []string{"rioja", "reserva"}, NameTokens("Rioja Reserva 750ml"))
	assert.Equal(t, []string{"champagne", "brut"}, NameTokens("Champagne Brut NV"))
}

func TestExtractVintage(t *testing.T) {
	v := ExtractVintage("Chateau Margau 2015")
	require.NotNil(t, v)
	assert.Equal(t, 2015, *v)

	assert.Nil(t, ExtractVintage("Champagne Brut NV"))
	assert.Nil(t, ExtractVintage("Cuvee 1850"))
}

func TestNormalizeGTIN(t *testing.T) {
	gtin, err := NormalizeGTIN("4006381333931")
	require.NoError(t, err)
	assert.Equal(t, "04006381333931", gtin)

	gtin, err = NormalizeGTIN("590-1234 123457")
	require.NoError(t, err)
	assert.Equal(t, "05901234123457", gtin)

	gtin, err = NormalizeGTIN("96385074")
	require.NoError(t, err)
	assert.Equal(t, "00000096385074", gtin)

	_, err = NormalizeGTIN("4006381333932")
	assert.ErrorIs(t, err, ErrInvalidGTIN)

	_, err = NormalizeGTIN("12345")
	assert.ErrorIs(t, err, ErrInvalidGTIN)

	_, err = NormalizeGTIN("40063813339AB")
	assert.ErrorIs(t, err, ErrInvalidGTIN)

	_, err = NormalizeGTIN("  ")
	assert.ErrorIs(t, err, ErrEmptyIdentifier)
}

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "AB-123X", NormalizeSKU(" ab-123 x "))
	assert.Equal(t, "", NormalizeSKU(""))
}

func TestParseVintage(t *testing.T) {
	v, err := ParseVintage("2015")
	require.NoError(t, err)
	assert.Equal(t, 2015, *v)

	for _, nv := range []string{"", "NV", "N.V.", "non-vintage", "ej årg"} {
		v, err := ParseVintage(nv)
		assert.NoError(t, err, nv)
		assert.Nil(t, v, nv)
	}

	_, err = ParseVintage("1850")
	assert.ErrorIs(t, err, ErrUnparseable)
	_, err = ParseVintage("twenty fifteen")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseVintage_ShortYear(t *testing.T) {
	for in, want := range map[string]int{"'15": 2015, "’09": 2009, "'98": 1998} {
		v, err := ParseVintage(in)
		require.NoError(t, err, in)
		require.NotNil(t, v, in)
		assert.Equal(t, want, *v, in)
	}

	// without the apostrophe two digits are not a year
	_, err := ParseVintage("15")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseVintage_MultipleVintages(t *testing.T) {
	for _, in := range []string{"2015/2016", "2015-2016", "2015 & 2016"} {
		v, err := ParseVintage(in)
		assert.Nil(t, v, in)
		require.ErrorIs(t, err, ErrUnparseable, in)
		assert.Contains(t, err.Error(), "multiple vintages", in)
	}

	_, err := ParseVintage("2015-16")
	require.ErrorIs(t, err, ErrUnparseable)
	assert.NotContains(t, err.Error(), "20152016")
}

func TestParseVolumeML(t *testing.T) {
	tests := map[string]int{
		"750ml":  750,
		"75 cl":  750,
		"0,75 l": 750,
		"1.5L":   1500,
		"6x75cl": 750,
		"750":    750,
		"1.5":    1500,
		"37,5cl": 375,
		// unitless values between 5 and 150 are centilitres
		"75":   750,
		"10":   100,
		"37.5": 375,
		"150":  1500,
		"6x75": 750,
		// above 150 they are millilitres
		"187": 187,
		"375": 375,
		"5":   5000,
	}
	for in, want := range tests {
		got, err := ParseVolumeML(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}

	got, err := ParseVolumeML("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseVolumeML("magnum")
	assert.ErrorIs(t, err, ErrUnparseable)
	_, err = ParseVolumeML("0")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseABV(t *testing.T) {
	tests := map[string]float64{
		"13.5%":          13.5,
		"13,5 % vol":     13.5,
		"14":             14,
		"alc. 13%":       13,
		"alc 13%":        13,
		"ABV 13.5%":      13.5,
		"vol 12.5":       12.5,
		"13.5% vol.":     13.5,
		"alc./vol. 14%":  14,
		"12% alc/vol":    12,
		"Alcohol 11.5 %": 11.5,
	}
	for in, want := range tests {
		got, err := ParseABV(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.InDelta(t, want, *got, 0.0001, in)
	}

	for _, in := range []string{"strong", "alc", "13 14", "150%"} {
		_, err := ParseABV(in)
		assert.ErrorIs(t, err, ErrUnparseable, in)
	}
}

func TestParsePack(t *testing.T) {
	pt, units, err := ParsePack("Bottle", "75cl")
	require.NoError(t, err)
	assert.Equal(t, models.PackTypeSingle, pt)
	assert.Nil(t, units)

	pt, units, err = ParsePack("case", "6x75cl")
	require.NoError(t, err)
	assert.Equal(t, models.PackTypeCase, pt)
	require.NotNil(t, units)
	assert.Equal(t, 6, *units)

	pt, units, err = ParsePack("Case of 12", "")
	require.NoError(t, err)
	assert.Equal(t, models.PackTypeCase, pt)
	assert.Equal(t, 12, *units)

	pt, units, err = ParsePack("", "6 x 75 cl")
	require.NoError(t, err)
	assert.Equal(t, models.PackTypeCase, pt)
	assert.Equal(t, 6, *units)

	pt, _, err = ParsePack("", "75cl")
	require.NoError(t, err)
	assert.Equal(t, models.PackType(""), pt)

	_, _, err = ParsePack("jeroboam", "")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestNormalizeCountry(t *testing.T) {
	assert.Equal(t, "IT", NormalizeCountry("Italien"))
	assert.Equal(t, "FR", NormalizeCountry("Frankrike"))
	assert.Equal(t, "ES", NormalizeCountry("España"))
	assert.Equal(t, "AT", NormalizeCountry("Österrike"))
	assert.Equal(t, "FR", NormalizeCountry("fr"))
	assert.Equal(t, "GEORGIA", NormalizeCountry("Georgia"))
	assert.Equal(t, "", NormalizeCountry(" "))

	assert.True(t, CountriesCompatible("FR", ""))
	assert.False(t, CountriesCompatible("FR", "IT"))
}

func TestNormalizeGrapes(t *testing.T) {
	assert.Equal(t, []string{"cabernet sauvignon", "syrah"}, NormalizeGrapes("Shiraz/Cabernet 60%"))
	assert.Equal(t, []string{"grenache", "tempranillo"}, NormalizeGrapes("Tempranillo y Garnacha"))
	assert.Nil(t, NormalizeGrapes(""))

	assert.InDelta(t, 0.5, Jaccard([]string{"syrah", "grenache"}, []string{"syrah", "mourvedre", "grenache", "cinsault"}), 0.0001)
	assert.Equal(t, 1.0, Jaccard(nil, nil))
}

func TestNormalizeLine(t *testing.T) {
	line := models.ImportLine{
		Producer:    "Château Margaux",
		Name:        "Chateau Margau 2015",
		Volume:      "75cl",
		ABV:         "abc",
		Country:     "Frankrike",
		SupplierSKU: "cm 15",
		BarcodeEach: "123",
	}

	w := NormalizeLine(line)
	assert.Equal(t, "chateau margaux", w.Producer)
	assert.Equal(t, []string{"chateau", "margau"}, w.NameTokens)
	require.NotNil(t, w.Vintage)
	assert.Equal(t, 2015, *w.Vintage)
	assert.Equal(t, 750, *w.VolumeML)
	assert.Nil(t, w.ABV)
	assert.Equal(t, "FR", w.Country)
	assert.Equal(t, "CM15", w.SKU)
	assert.Empty(t, w.BarcodeEach)
	assert.Len(t, w.Notes, 2)
	assert.Equal(t, "margaux", w.ProducerKey())
	assert.Equal(t, []string{"margaux", "margau"}, w.BlockingTokens())
}

func TestRemoveWhitespace(t *testing.T) {
	assert.Equal(t, "CM15A", RemoveWhitespace(" CM 15\tA\n"))
}
