package matching

import (
	"context"

	"github.com/Ramsey-B/vine/pkg/models"
)

// Catalog is the read-only view of master products the matcher needs.
type Catalog interface {
	// FindByGTIN returns every product carrying the normalized GTIN-14.
	FindByGTIN(ctx context.Context, gtin string) ([]models.CatalogProduct, error)
	// FindCandidates returns products sharing at least one blocking key with a
	// compatible country, ordered by shared key count desc then id, at most limit.
	FindCandidates(ctx context.Context, keys BlockingKeys, limit int) ([]models.CatalogProduct, error)
	GetProduct(ctx context.Context, id string) (*models.CatalogProduct, error)
	Ping(ctx context.Context) error
}

// MappingLookup resolves existing supplier SKU mappings.
type MappingLookup interface {
	// Get returns nil when the supplier has no mapping for sku.
	Get(ctx context.Context, supplierID, sku string) (*models.SupplierProductMapping, error)
}
