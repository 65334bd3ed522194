package matching

import (
	"sort"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
)

const prefixLen = 4

// BlockingKeys bound the fuzzy candidate search. Keys are prefixed by kind:
// "p:" producer key, "s:" soundex of a significant token, "x:" token prefix.
type BlockingKeys struct {
	Keys    []string
	Country string
}

func (k BlockingKeys) Empty() bool {
	return len(k.Keys) == 0
}

// KeysFor derives the blocking keys of a normalized wine. The same function
// indexes catalog products and queries for lines, so both sides agree.
func KeysFor(w normalizers.Wine, scorer *Scorer) BlockingKeys {
	set := map[string]struct{}{}
	if pk := w.ProducerKey(); pk != "" {
		set["p:"+pk] = struct{}{}
	}
	for _, tok := range w.BlockingTokens() {
		if sx := scorer.Soundex(tok); sx != "" {
			set["s:"+sx] = struct{}{}
		}
		r := []rune(tok)
		if len(r) >= prefixLen {
			set["x:"+string(r[:prefixLen])] = struct{}{}
		}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return BlockingKeys{Keys: keys, Country: w.Country}
}

// ProductKeys is the index row set for one catalog product.
type ProductKeys struct {
	ProductID string
	Country   string
	Keys      []string
	GTINs     []string
}

// IndexProduct computes the derived index entries for a catalog product.
// Invalid GTINs are skipped.
func IndexProduct(p models.CatalogProduct, scorer *Scorer) ProductKeys {
	w := normalizers.NormalizeProduct(p)
	keys := KeysFor(w, scorer)

	seen := map[string]bool{}
	var gtins []string
	for _, raw := range p.GTINs {
		gtin, err := normalizers.NormalizeGTIN(raw)
		if err != nil || seen[gtin] {
			continue
		}
		seen[gtin] = true
		gtins = append(gtins, gtin)
	}
	sort.Strings(gtins)

	return ProductKeys{
		ProductID: p.ID,
		Country:   w.Country,
		Keys:      keys.Keys,
		GTINs:     gtins,
	}
}
