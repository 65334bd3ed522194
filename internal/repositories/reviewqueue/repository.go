package reviewqueue

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const table = "review_queue_items"

var columns = []string{
	"id", "import_line_id", "import_id", "supplier_id", "supplier_sku", "kind", "decision",
	"line_snapshot", "candidates", "status", "reason", "created_at",
}

type itemRow struct {
	models.ReviewQueueItem
	Snapshot   database.JSONB[models.ImportLine]  `db:"line_snapshot"`
	Candidates database.JSONB[[]models.Candidate] `db:"candidates"`
}

func (r itemRow) toModel() models.ReviewQueueItem {
	item := r.ReviewQueueItem
	item.LineSnapshot = r.Snapshot.GetValue()
	item.Candidates = r.Candidates.GetValue()
	if item.Candidates == nil {
		item.Candidates = []models.Candidate{}
	}
	return item
}

// Repository handles review queue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts the item unless the line already has one. It reports
// whether a row was created; an existing item with a different decision is
// a conflict.
func (r *Repository) Enqueue(ctx context.Context, item models.ReviewQueueItem) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Enqueue")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"import_line_id": item.ImportLineID,
		"kind":           item.Kind,
		"decision":       item.Decision,
	})

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.ReviewStatusPending
	}
	candidates := item.Candidates
	if candidates == nil {
		candidates = []models.Candidate{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	ib.Values(item.ID, item.ImportLineID, item.ImportID, item.SupplierID, item.SupplierSKU, item.Kind, item.Decision,
		database.NewJSONB(item.LineSnapshot), database.NewJSONB(candidates), item.Status, item.Reason, time.Now().UTC())
	ib.OnConflictDoNothing("import_line_id")
	ib.SQL("RETURNING id")

	query, args := ib.Build()
	var id string
	err := database.Conn(ctx, r.db).GetContext(ctx, &id, query, args...)
	switch {
	case err == nil:
		log.Debug("Enqueued review item")
		return true, nil
	case !errors.Is(err, sql.ErrNoRows):
		log.WithError(err).Error("Failed to enqueue review item")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue review item")
	}

	existing, err := r.GetByLine(ctx, item.ImportLineID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Decision != item.Decision || existing.Kind != item.Kind {
		log.Warn("Review item already exists with a different decision")
		return false, httperror.NewHTTPErrorf(http.StatusConflict, "%s: line %s", models.ErrReviewConflict.Error(), item.ImportLineID)
	}
	return false, nil
}

// GetByLine returns nil when the line has no review item.
func (r *Repository) GetByLine(ctx context.Context, importLineID string) (*models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.GetByLine")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("import_line_id", importLineID))

	query, args := sb.Build()
	var row itemRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("import_line_id", importLineID).Error("Failed to get review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review item")
	}
	item := row.toModel()
	return &item, nil
}

// ListByImport returns the review items of an import, oldest first.
func (r *Repository) ListByImport(ctx context.Context, importID string) ([]models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.ListByImport")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("import_id", importID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []itemRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to list review items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review items")
	}

	out := make([]models.ReviewQueueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
