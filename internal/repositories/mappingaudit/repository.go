package mappingaudit

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const table = "mapping_audit_log"

var columns = []string{
	"id", "mapping_id", "supplier_id", "supplier_sku", "action", "previous_product_id",
	"master_product_id", "confidence", "method", "import_id", "import_line_id", "created_at",
}

// Repository appends to the mapping audit log. Rows are never updated.
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

func (r *Repository) Append(ctx context.Context, entry models.MappingAuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "mappingaudit.Repository.Append")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(entry.ID, entry.MappingID, entry.SupplierID, entry.SupplierSKU, entry.Action, entry.PreviousProductID,
		entry.MasterProductID, entry.Confidence, entry.Method, entry.ImportID, entry.ImportLineID, entry.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mapping_id", entry.MappingID).Error("Failed to append mapping audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append mapping audit entry")
	}
	return nil
}

// ListByMapping returns a mapping's history, oldest first.
func (r *Repository) ListByMapping(ctx context.Context, mappingID string) ([]models.MappingAuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingaudit.Repository.ListByMapping")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("mapping_id", mappingID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var entries []models.MappingAuditEntry
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mapping_id", mappingID).Error("Failed to list mapping audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mapping audit entries")
	}
	return entries, nil
}
