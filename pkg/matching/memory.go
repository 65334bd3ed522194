package matching

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/vine/pkg/models"
)

// MemoryCatalog is an in-memory Catalog built from a product snapshot. It is
// safe for concurrent readers once built.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]models.CatalogProduct
	byKey    map[string][]string
	byGTIN   map[string][]string
	country  map[string]string
	scorer   *Scorer
	// PingErr, when set, is returned by Ping.
	PingErr error
}

func NewMemoryCatalog(products []models.CatalogProduct) *MemoryCatalog {
	c := &MemoryCatalog{
		products: map[string]models.CatalogProduct{},
		byKey:    map[string][]string{},
		byGTIN:   map[string][]string{},
		country:  map[string]string{},
		scorer:   NewScorer(),
	}
	for _, p := range products {
		c.Add(p)
	}
	return c
}

// Add indexes a product, replacing any product with the same id.
func (c *MemoryCatalog) Add(p models.CatalogProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.products[p.ID]; exists {
		c.removeLocked(p.ID)
	}

	keys := IndexProduct(p, c.scorer)
	c.products[p.ID] = p
	c.country[p.ID] = keys.Country
	for _, k := range keys.Keys {
		c.byKey[k] = append(c.byKey[k], p.ID)
	}
	for _, g := range keys.GTINs {
		c.byGTIN[g] = append(c.byGTIN[g], p.ID)
	}
}

func (c *MemoryCatalog) removeLocked(id string) {
	remove := func(index map[string][]string) {
		for k, ids := range index {
			out := ids[:0]
			for _, other := range ids {
				if other != id {
					out = append(out, other)
				}
			}
			if len(out) == 0 {
				delete(index, k)
			} else {
				index[k] = out
			}
		}
	}
	remove(c.byKey)
	remove(c.byGTIN)
	delete(c.products, id)
	delete(c.country, id)
}

func (c *MemoryCatalog) Products() []models.CatalogProduct {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CatalogProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *MemoryCatalog) FindByGTIN(_ context.Context, gtin string) ([]models.CatalogProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := append([]string(nil), c.byGTIN[gtin]...)
	sort.Strings(ids)
	out := make([]models.CatalogProduct, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.products[id])
	}
	return out, nil
}

func (c *MemoryCatalog) FindCandidates(_ context.Context, keys BlockingKeys, limit int) ([]models.CatalogProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overlap := map[string]int{}
	for _, k := range keys.Keys {
		for _, id := range c.byKey[k] {
			if keys.Country != "" && c.country[id] != "" && c.country[id] != keys.Country {
				continue
			}
			overlap[id]++
		}
	}

	ids := make([]string, 0, len(overlap))
	for id := range overlap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if overlap[ids[i]] != overlap[ids[j]] {
			return overlap[ids[i]] > overlap[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.CatalogProduct, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.products[id])
	}
	return out, nil
}

func (c *MemoryCatalog) GetProduct(_ context.Context, id string) (*models.CatalogProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MemoryCatalog) Ping(context.Context) error {
	return c.PingErr
}

// MemoryMappings is an in-memory MappingLookup keyed by supplier and SKU.
type MemoryMappings struct {
	mu   sync.RWMutex
	rows map[string]models.SupplierProductMapping
}

func NewMemoryMappings() *MemoryMappings {
	return &MemoryMappings{rows: map[string]models.SupplierProductMapping{}}
}

func (m *MemoryMappings) Put(mapping models.SupplierProductMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[mapping.SupplierID+"\x00"+mapping.SupplierSKU] = mapping
}

func (m *MemoryMappings) Get(_ context.Context, supplierID, sku string) (*models.SupplierProductMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[supplierID+"\x00"+sku]
	if !ok {
		return nil, nil
	}
	return &row, nil
}
