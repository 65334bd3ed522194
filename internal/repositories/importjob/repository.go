package importjob

import (
	"context"
	"database/sql"
	"fmt"
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

const table = "import_jobs"

var columns = []string{
	"id", "supplier_id", "status", "total_lines", "auto_matched_count", "sampling_review_count",
	"needs_review_count", "no_match_count", "error_count", "error_samples", "started_at",
	"matched_at", "created_at", "updated_at",
}

type jobRow struct {
	models.ImportJob
	Samples database.JSONB[[]models.LineError] `db:"error_samples"`
}

func (r jobRow) toModel() *models.ImportJob {
	job := r.ImportJob
	job.ErrorSamples = r.Samples.GetValue()
	if job.ErrorSamples == nil {
		job.ErrorSamples = []models.LineError{}
	}
	return &job
}

// Repository handles import job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a PENDING job. An empty id is generated.
func (r *Repository) Create(ctx context.Context, job *models.ImportJob) (*models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.Create")
	defer span.End()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "supplier_id", "status", "total_lines", "created_at", "updated_at")
	ib.Values(job.ID, job.SupplierID, models.ImportJobStatusPending, job.TotalLines, now, now)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("supplier_id", job.SupplierID).Error("Failed to create import job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import job")
	}

	return r.Get(ctx, job.ID)
}

// Get returns a 404 error when the job does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import job %s not found", id)
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row jobRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import job %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", id).Error("Failed to get import job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import job")
	}

	return row.toModel(), nil
}

// MarkMatching moves a PENDING, MATCHING or FAILED job to MATCHING. A MATCHED
// job is left alone and reported as a conflict.
func (r *Repository) MarkMatching(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.MarkMatching")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.ImportJobStatusMatching),
		fmt.Sprintf("started_at = COALESCE(started_at, %s)", ub.Var(now)),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.In("status", models.ImportJobStatusPending, models.ImportJobStatusMatching, models.ImportJobStatusFailed),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", id).Error("Failed to mark import job matching")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "import job %s cannot start matching", id)
	}
	return nil
}

// Finalize writes the counters and marks the job MATCHED. It only applies to
// a job still MATCHING, so a concurrent finalizer cannot write twice; the
// returned bool reports whether this call did the transition.
func (r *Repository) Finalize(ctx context.Context, id string, counts models.StatusCounts, samples []models.LineError) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "importjob.Repository.Finalize")
	defer span.End()

	if samples == nil {
		samples = []models.LineError{}
	}
	now := time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", models.ImportJobStatusMatched),
		ub.Assign("total_lines", counts.Total()),
		ub.Assign("auto_matched_count", counts[models.LineStatusAutoMatched]),
		ub.Assign("sampling_review_count", counts[models.LineStatusSamplingReview]),
		ub.Assign("needs_review_count", counts[models.LineStatusNeedsReview]),
		ub.Assign("no_match_count", counts[models.LineStatusNoMatch]),
		ub.Assign("error_count", counts[models.LineStatusError]),
		ub.Assign("error_samples", database.NewJSONB(samples)),
		ub.Assign("matched_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", models.ImportJobStatusMatching))

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("import_id", id).Error("Failed to finalize import job")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to finalize import job")
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}
