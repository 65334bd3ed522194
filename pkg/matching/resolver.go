package matching

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// IdentifierHit is an exact identifier resolution.
type IdentifierHit struct {
	Product models.CatalogProduct
	// Via names the identifier that matched: barcode_case, barcode_each or supplier_sku.
	Via    string
	Reason string
}

// IdentifierResolver resolves lines by barcode or previously mapped SKU.
type IdentifierResolver struct {
	catalog  Catalog
	mappings MappingLookup
}

func NewIdentifierResolver(catalog Catalog, mappings MappingLookup) *IdentifierResolver {
	return &IdentifierResolver{catalog: catalog, mappings: mappings}
}

// Resolve tries barcode_case, barcode_each, then supplier_sku. It returns nil
// without error when nothing resolves; notes explain identifiers that were
// present but not usable.
func (r *IdentifierResolver) Resolve(ctx context.Context, supplierID string, w normalizers.Wine) (*IdentifierHit, []string, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.IdentifierResolver.Resolve")
	defer span.End()

	var notes []string
	for _, barcode := range []struct {
		via  string
		gtin string
	}{
		{"barcode_case", w.BarcodeCase},
		{"barcode_each", w.BarcodeEach},
	} {
		if barcode.gtin == "" {
			continue
		}
		products, err := r.catalog.FindByGTIN(ctx, barcode.gtin)
		if err != nil {
			return nil, notes, errors.Wrapf(err, "failed to look up %s", barcode.via)
		}
		switch distinct := distinctProducts(products); len(distinct) {
		case 0:
			notes = append(notes, fmt.Sprintf("%s %s not in catalog", barcode.via, barcode.gtin))
		case 1:
			return &IdentifierHit{
				Product: distinct[0],
				Via:     barcode.via,
				Reason:  fmt.Sprintf("%s %s matched exactly", barcode.via, barcode.gtin),
			}, notes, nil
		default:
			notes = append(notes, fmt.Sprintf("%s %s is shared by %d products", barcode.via, barcode.gtin, len(distinct)))
		}
	}

	if w.SKU == "" || r.mappings == nil {
		return nil, notes, nil
	}

	mapping, err := r.mappings.Get(ctx, supplierID, w.SKU)
	if err != nil {
		return nil, notes, errors.Wrap(err, "failed to look up supplier sku mapping")
	}
	if mapping == nil {
		return nil, notes, nil
	}

	product, err := r.catalog.GetProduct(ctx, mapping.MasterProductID)
	if err != nil {
		return nil, notes, errors.Wrap(err, "failed to load mapped product")
	}
	if product == nil {
		notes = append(notes, fmt.Sprintf("supplier_sku %s maps to unknown product %s", w.SKU, mapping.MasterProductID))
		return nil, notes, nil
	}

	return &IdentifierHit{
		Product: *product,
		Via:     "supplier_sku",
		Reason:  fmt.Sprintf("supplier_sku %s already mapped", w.SKU),
	}, notes, nil
}

func distinctProducts(products []models.CatalogProduct) []models.CatalogProduct {
	seen := map[string]bool{}
	out := products[:0:0]
	for _, p := range products {
		if !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}
