package normalizers

import (
	"errors"
	"strings"

	"github.com/Ramsey-B/vine/pkg/models"
)

// Wine is the comparable form of an import line or catalog product.
type Wine struct {
	Producer       string
	ProducerTokens []string
	Name           string
	NameTokens     []string
	Vintage        *int
	VolumeML       *int
	ABV            *float64
	PackType       models.PackType
	UnitsPerCase   *int
	Country        string
	Region         string
	Grapes         []string

	// identifiers, line side only
	BarcodeCase string
	BarcodeEach string
	SKU         string

	// Notes lists fields that could not be parsed and were treated as absent.
	Notes []string
}

// NormalizeLine normalizes every raw field of an import line. Unparseable
// numeric fields and invalid barcodes are treated as absent and noted.
func NormalizeLine(line models.ImportLine) Wine {
	w := Wine{
		Producer: FoldText(line.Producer),
		Name:     FoldText(line.Name),
		Country:  NormalizeCountry(line.Country),
		Region:   FoldText(line.Region),
		Grapes:   NormalizeGrapes(line.Grape),
		SKU:      NormalizeSKU(line.SupplierSKU),
	}
	w.ProducerTokens = strings.Fields(w.Producer)
	w.NameTokens = NameTokens(line.Name)

	var err error
	if w.Vintage, err = ParseVintage(line.Vintage); err != nil {
		w.note(err)
	}
	if w.Vintage == nil && strings.TrimSpace(line.Vintage) == "" {
		w.Vintage = ExtractVintage(line.Name)
	}
	if w.VolumeML, err = ParseVolumeML(line.Volume); err != nil {
		w.note(err)
	}
	if w.ABV, err = ParseABV(line.ABV); err != nil {
		w.note(err)
	}
	if w.PackType, w.UnitsPerCase, err = ParsePack(line.PackType, line.Volume); err != nil {
		w.note(err)
	}

	if line.BarcodeCase != "" {
		if w.BarcodeCase, err = NormalizeGTIN(line.BarcodeCase); err != nil {
			w.note(errors.New("barcode_case: " + err.Error()))
		}
	}
	if line.BarcodeEach != "" {
		if w.BarcodeEach, err = NormalizeGTIN(line.BarcodeEach); err != nil {
			w.note(errors.New("barcode_each: " + err.Error()))
		}
	}

	return w
}

// NormalizeProduct normalizes a catalog product.
func NormalizeProduct(p models.CatalogProduct) Wine {
	w := Wine{
		Producer:     FoldText(p.Producer),
		Name:         FoldText(p.Name),
		Vintage:      p.Vintage,
		VolumeML:     p.VolumeML,
		ABV:          p.ABV,
		PackType:     p.PackType,
		UnitsPerCase: p.UnitsPerCase,
		Country:      NormalizeCountry(p.Country),
		Region:       FoldText(p.Region),
		Grapes:       NormalizeGrapes(strings.Join(p.Grapes, ",")),
	}
	w.ProducerTokens = strings.Fields(w.Producer)
	w.NameTokens = NameTokens(p.Name)
	if w.Vintage == nil {
		w.Vintage = ExtractVintage(p.Name)
	}
	return w
}

func (w *Wine) note(err error) {
	w.Notes = append(w.Notes, err.Error())
}

// HasText reports whether there is anything to fuzzy match on.
func (w Wine) HasText() bool {
	return len(w.NameTokens) > 0 || len(w.ProducerTokens) > 0
}

// BlockingTokens are the significant producer and name tokens.
func (w Wine) BlockingTokens() []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range append(append([]string{}, w.ProducerTokens...), w.NameTokens...) {
		if Significant(tok) && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// ProducerKey is the producer with stop words removed, used for exact blocking.
func (w Wine) ProducerKey() string {
	var parts []string
	for _, tok := range w.ProducerTokens {
		if Significant(tok) {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, " ")
}
