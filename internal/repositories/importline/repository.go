package importline

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

const table = "import_lines"

var columns = []string{
	"id", "import_id", "line_number",
	"barcode_each", "barcode_case", "supplier_sku",
	"producer", "name", "vintage", "volume", "abv", "pack_type", "country", "region", "grape",
	"match_status", "match_decision", "match_method", "confidence_score", "matched_product_id",
	"matched_family_id", "guardrail_failures", "match_reasons", "audit_sampled", "error_reason", "matched_at",
}

type lineRow struct {
	models.ImportLine
	Failures database.JSONB[[]models.GuardrailFailure] `db:"guardrail_failures"`
	Reasons  database.JSONB[[]string]                  `db:"match_reasons"`
}

func (r lineRow) toModel() models.ImportLine {
	line := r.ImportLine
	line.GuardrailFailures = r.Failures.GetValue()
	line.MatchReasons = r.Reasons.GetValue()
	return line
}

func toModels(rows []lineRow) []models.ImportLine {
	out := make([]models.ImportLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

// Repository handles import line persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import line repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert stores raw PENDING lines for an import. Missing ids are generated.
func (r *Repository) Insert(ctx context.Context, importID string, lines []models.ImportLine) error {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.Insert")
	defer span.End()

	if len(lines) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "import_id", "line_number", "barcode_each", "barcode_case", "supplier_sku",
		"producer", "name", "vintage", "volume", "abv", "pack_type", "country", "region", "grape", "match_status")
	for i := range lines {
		l := &lines[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.ImportID = importID
		l.MatchStatus = models.LineStatusPending
		ib.Values(l.ID, importID, l.LineNumber, l.BarcodeEach, l.BarcodeCase, l.SupplierSKU,
			l.Producer, l.Name, l.Vintage, l.Volume, l.ABV, l.PackType, l.Country, l.Region, l.Grape, l.MatchStatus)
	}

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to insert import lines")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert import lines")
	}
	return nil
}

// ListPending pages PENDING lines by line number.
func (r *Repository) ListPending(ctx context.Context, importID string, afterLine, limit int) ([]models.ImportLine, error) {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.ListPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("import_id", importID),
		sb.Equal("match_status", models.LineStatusPending),
		sb.GreaterThan("line_number", afterLine),
	)
	sb.OrderBy("line_number")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []lineRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to list pending lines")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending lines")
	}
	return toModels(rows), nil
}

// List returns every line of an import in line order.
func (r *Repository) List(ctx context.Context, importID string) ([]models.ImportLine, error) {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("import_id", importID))
	sb.OrderBy("line_number")

	query, args := sb.Build()
	var rows []lineRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to list lines")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list lines")
	}
	return toModels(rows), nil
}

// LockPending locks the line for the surrounding transaction. It returns nil
// when the line is no longer PENDING.
func (r *Repository) LockPending(ctx context.Context, lineID string) (*models.ImportLine, error) {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.LockPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", lineID), sb.Equal("match_status", models.LineStatusPending))
	sb.ForUpdate()

	query, args := sb.Build()
	var row lineRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("line_id", lineID).Error("Failed to lock line")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock line")
	}
	line := row.toModel()
	return &line, nil
}

// SaveOutcome writes the terminal state of a PENDING line.
func (r *Repository) SaveOutcome(ctx context.Context, lineID string, outcome models.LineOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.SaveOutcome")
	defer span.End()

	failures := outcome.GuardrailFailures
	if failures == nil {
		failures = []models.GuardrailFailure{}
	}
	reasons := outcome.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("match_status", outcome.Status),
		ub.Assign("match_decision", outcome.Decision),
		ub.Assign("match_method", outcome.Method),
		ub.Assign("confidence_score", outcome.Score),
		ub.Assign("matched_product_id", outcome.ProductID),
		ub.Assign("matched_family_id", outcome.FamilyID),
		ub.Assign("guardrail_failures", database.NewJSONB(failures)),
		ub.Assign("match_reasons", database.NewJSONB(reasons)),
		ub.Assign("audit_sampled", outcome.AuditSampled),
		ub.Assign("error_reason", outcome.ErrorReason),
		ub.Assign("matched_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", lineID), ub.Equal("match_status", models.LineStatusPending))

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("line_id", lineID).Error("Failed to save line outcome")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save line outcome")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrLineNotPending
	}
	return nil
}

// CountByStatus tallies the lines of an import.
func (r *Repository) CountByStatus(ctx context.Context, importID string) (models.StatusCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.CountByStatus")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("match_status", "COUNT(*) AS n")
	sb.From(table)
	sb.Where(sb.Equal("import_id", importID))
	sb.GroupBy("match_status")

	query, args := sb.Build()
	var rows []struct {
		Status models.LineStatus `db:"match_status"`
		N      int               `db:"n"`
	}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to count lines")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count lines")
	}

	counts := models.StatusCounts{}
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// ListErrors returns the first limit ERROR lines by line number.
func (r *Repository) ListErrors(ctx context.Context, importID string, limit int) ([]models.LineError, error) {
	ctx, span := tracing.StartSpan(ctx, "importline.Repository.ListErrors")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id AS line_id", "line_number", "COALESCE(error_reason, '') AS reason")
	sb.From(table)
	sb.Where(sb.Equal("import_id", importID), sb.Equal("match_status", models.LineStatusError))
	sb.OrderBy("line_number")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []struct {
		LineID     string `db:"line_id"`
		LineNumber int    `db:"line_number"`
		Reason     string `db:"reason"`
	}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", importID).Error("Failed to list line errors")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list line errors")
	}

	out := make([]models.LineError, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.LineError{LineID: row.LineID, LineNumber: row.LineNumber, Reason: row.Reason})
	}
	return out, nil
}
