package catalog

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/matching"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const insertChunk = 1000

var productColumns = []string{
	"p.id", "p.family_id", "p.producer", "p.name", "p.vintage", "p.volume_ml", "p.abv",
	"p.pack_type", "p.units_per_case", "p.country", "p.region", "p.grapes", "f.vintage_sensitive",
}

type productRow struct {
	models.CatalogProduct
	GrapeList pq.StringArray `db:"grapes"`
	GTINList  pq.StringArray `db:"gtins"`
	Overlap   int            `db:"overlap"`
}

func (r productRow) toModel() models.CatalogProduct {
	p := r.CatalogProduct
	p.Grapes = []string(r.GrapeList)
	p.GTINs = []string(r.GTINList)
	return p
}

func toModels(rows []productRow) []models.CatalogProduct {
	out := make([]models.CatalogProduct, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

// Repository reads the master catalog and owns the derived match index.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.Ping")
	defer span.End()

	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT 1 FROM master_products LIMIT 1"); err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.logger.WithContext(ctx).WithError(err).Error("Catalog is not readable")
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "catalog unavailable")
	}
	return nil
}

// FindByGTIN returns products carrying the normalized GTIN-14.
func (r *Repository) FindByGTIN(ctx context.Context, gtin string) ([]models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.FindByGTIN")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("catalog_identifier_index i")
	sb.Join("master_products p", "p.id = i.product_id")
	sb.Join("product_families f", "f.id = p.family_id")
	sb.Where(sb.Equal("i.gtin", gtin))
	sb.OrderBy("p.id")

	query, args := sb.Build()
	var rows []productRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("gtin", gtin).Error("Failed to look up GTIN")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up gtin")
	}
	return toModels(rows), nil
}

// FindCandidates returns products sharing blocking keys, most shared keys first.
func (r *Repository) FindCandidates(ctx context.Context, keys matching.BlockingKeys, limit int) ([]models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.FindCandidates")
	defer span.End()

	if keys.Empty() {
		return []models.CatalogProduct{}, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(append(productColumns, "COUNT(*) AS overlap")...)
	sb.From("catalog_match_keys k")
	sb.Join("master_products p", "p.id = k.product_id")
	sb.Join("product_families f", "f.id = p.family_id")
	sb.Where("k.match_key = ANY(" + sb.Var(pq.Array(keys.Keys)) + ")")
	if keys.Country != "" {
		sb.Where(sb.Or(sb.Equal("k.country", ""), sb.Equal("k.country", keys.Country)))
	}
	sb.GroupBy("p.id", "f.vintage_sensitive")
	sb.OrderBy("overlap DESC", "p.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []productRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("keys", len(keys.Keys)).Error("Failed to find candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidates")
	}
	return toModels(rows), nil
}

// GetProduct returns nil when the product does not exist.
func (r *Repository) GetProduct(ctx context.Context, id string) (*models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.GetProduct")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("master_products p")
	sb.Join("product_families f", "f.id = p.family_id")
	sb.Where(sb.Equal("p.id", id))

	query, args := sb.Build()
	var row productRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", id).Error("Failed to get product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get product")
	}
	p := row.toModel()
	return &p, nil
}

// ListProducts pages the catalog by id, with GTINs attached.
func (r *Repository) ListProducts(ctx context.Context, afterID string, limit int) ([]models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListProducts")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(append(productColumns,
		"COALESCE(ARRAY(SELECT value FROM product_identifiers pi WHERE pi.product_id = p.id AND pi.kind = 'gtin' ORDER BY value), '{}') AS gtins")...)
	sb.From("master_products p")
	sb.Join("product_families f", "f.id = p.family_id")
	if afterID != "" {
		sb.Where(sb.GreaterThan("p.id", afterID))
	}
	sb.OrderBy("p.id")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []productRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list products")
	}
	return toModels(rows), nil
}

// ReplaceIndex swaps the whole derived index in one transaction.
func (r *Repository) ReplaceIndex(ctx context.Context, entries []matching.ProductKeys) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ReplaceIndex")
	defer span.End()

	log := r.logger.WithContext(ctx).WithField("products", len(entries))

	err := database.RunInTx(ctx, r.db, nil, func(ctx context.Context) error {
		conn := database.Conn(ctx, r.db)
		for _, table := range []string{"catalog_match_keys", "catalog_identifier_index"} {
			query, args := database.NewDeleteBuilder().DeleteFrom(table).Build()
			if _, err := conn.ExecContext(ctx, query, args...); err != nil {
				return errors.Wrapf(err, "failed to clear %s", table)
			}
		}

		keys := database.NewInsertBuilder()
		keys.InsertInto("catalog_match_keys").Cols("match_key", "product_id", "country")
		gtins := database.NewInsertBuilder()
		gtins.InsertInto("catalog_identifier_index").Cols("gtin", "product_id")
		keyRows, gtinRows := 0, 0

		flush := func(b **database.InsertBuilder, rows *int, table string, cols ...string) error {
			if *rows == 0 {
				return nil
			}
			(*b).OnConflictDoNothing()
			query, args := (*b).Build()
			if _, err := conn.ExecContext(ctx, query, args...); err != nil {
				return errors.Wrapf(err, "failed to insert into %s", table)
			}
			*b = database.NewInsertBuilder()
			(*b).InsertInto(table).Cols(cols...)
			*rows = 0
			return nil
		}

		for _, e := range entries {
			for _, k := range e.Keys {
				keys.Values(k, e.ProductID, e.Country)
				if keyRows++; keyRows == insertChunk {
					if err := flush(&keys, &keyRows, "catalog_match_keys", "match_key", "product_id", "country"); err != nil {
						return err
					}
				}
			}
			for _, g := range e.GTINs {
				gtins.Values(g, e.ProductID)
				if gtinRows++; gtinRows == insertChunk {
					if err := flush(&gtins, &gtinRows, "catalog_identifier_index", "gtin", "product_id"); err != nil {
						return err
					}
				}
			}
		}
		if err := flush(&keys, &keyRows, "catalog_match_keys", "match_key", "product_id", "country"); err != nil {
			return err
		}
		return flush(&gtins, &gtinRows, "catalog_identifier_index", "gtin", "product_id")
	})
	if err != nil {
		log.WithError(err).Error("Failed to replace catalog index")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace catalog index")
	}

	log.Info("Replaced catalog match index")
	return nil
}
