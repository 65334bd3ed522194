package productmapping

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const (
	table           = "supplier_product_mappings"
	uniqueViolation = "23505"
	skuConstraint   = "uq_supplier_product_mappings_sku"
)

var columns = []string{
	"id", "supplier_id", "supplier_sku", "master_product_id", "match_confidence", "match_method",
	"match_reasons", "source_import_id", "source_line_id", "created_at", "updated_at",
}

type mappingRow struct {
	models.SupplierProductMapping
	Reasons database.JSONB[[]string] `db:"match_reasons"`
}

func (r mappingRow) toModel() *models.SupplierProductMapping {
	m := r.SupplierProductMapping
	m.MatchReasons = r.Reasons.GetValue()
	return &m
}

// upsertSQL inserts or overwrites the mapping for (supplier_id, supplier_sku)
// and reports the row it replaced. prev reads the pre-statement snapshot.
const upsertSQL = `
WITH prev AS (
	SELECT master_product_id, match_confidence
	FROM supplier_product_mappings
	WHERE supplier_id = $2 AND supplier_sku = $3
)
INSERT INTO supplier_product_mappings (
	id, supplier_id, supplier_sku, master_product_id, match_confidence, match_method,
	match_reasons, source_import_id, source_line_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (supplier_id, supplier_sku) DO UPDATE SET
	master_product_id = EXCLUDED.master_product_id,
	match_confidence = EXCLUDED.match_confidence,
	match_method = EXCLUDED.match_method,
	match_reasons = EXCLUDED.match_reasons,
	source_import_id = EXCLUDED.source_import_id,
	source_line_id = EXCLUDED.source_line_id,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at, (xmax = 0) AS inserted,
	(SELECT master_product_id FROM prev) AS previous_product_id,
	(SELECT match_confidence FROM prev) AS previous_score`

// Repository handles supplier product mapping persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new supplier product mapping repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns nil when the supplier has no mapping for sku.
func (r *Repository) Get(ctx context.Context, supplierID, sku string) (*models.SupplierProductMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "productmapping.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("supplier_id", supplierID), sb.Equal("supplier_sku", sku))

	query, args := sb.Build()
	var row mappingRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"supplier_id":  supplierID,
			"supplier_sku": sku,
		}).Error("Failed to get mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapping")
	}
	return row.toModel(), nil
}

// Upsert inserts the mapping or overwrites the existing one for the same
// supplier and SKU. The last writer wins.
func (r *Repository) Upsert(ctx context.Context, mapping models.SupplierProductMapping) (*models.UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "productmapping.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"supplier_id":       mapping.SupplierID,
		"supplier_sku":      mapping.SupplierSKU,
		"master_product_id": mapping.MasterProductID,
	})

	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	reasons := mapping.MatchReasons
	if reasons == nil {
		reasons = []string{}
	}
	now := time.Now().UTC()

	var out struct {
		ID                string    `db:"id"`
		CreatedAt         time.Time `db:"created_at"`
		UpdatedAt         time.Time `db:"updated_at"`
		Inserted          bool      `db:"inserted"`
		PreviousProductID *string   `db:"previous_product_id"`
		PreviousScore     *float64  `db:"previous_score"`
	}
	// a violation inside the caller's transaction must not abort it before
	// resolveConflict re-reads the row
	err := database.WithSavepoint(ctx, r.db, "mapping_upsert", func(q database.Querier) error {
		return q.GetContext(ctx, &out, upsertSQL,
			mapping.ID, mapping.SupplierID, mapping.SupplierSKU, mapping.MasterProductID, mapping.MatchConfidence,
			mapping.MatchMethod, database.NewJSONB(reasons), mapping.SourceImportID, mapping.SourceLineID, now)
	})
	if err != nil {
		if isSKUConflict(err) {
			return r.resolveConflict(ctx, mapping)
		}
		log.WithError(err).Error("Failed to upsert mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert mapping")
	}

	mapping.ID = out.ID
	mapping.MatchReasons = reasons
	mapping.CreatedAt = out.CreatedAt
	mapping.UpdatedAt = out.UpdatedAt

	log.WithField("inserted", out.Inserted).Debug("Upserted mapping")
	return &models.UpsertResult{
		Mapping:           &mapping,
		Inserted:          out.Inserted,
		PreviousProductID: out.PreviousProductID,
		PreviousScore:     out.PreviousScore,
	}, nil
}

// resolveConflict handles a unique violation that slipped past ON CONFLICT:
// the row is re-read and a mapping to the same product counts as success.
func (r *Repository) resolveConflict(ctx context.Context, mapping models.SupplierProductMapping) (*models.UpsertResult, error) {
	existing, err := r.Get(ctx, mapping.SupplierID, mapping.SupplierSKU)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.MasterProductID != mapping.MasterProductID {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "%s: %s/%s", models.ErrMappingConflict.Error(), mapping.SupplierID, mapping.SupplierSKU)
	}
	return &models.UpsertResult{
		Mapping:           existing,
		PreviousProductID: &existing.MasterProductID,
		PreviousScore:     &existing.MatchConfidence,
	}, nil
}

func isSKUConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (pqErr.Constraint == "" || pqErr.Constraint == skuConstraint)
}
