// Package processor runs matching over every pending line of an import job.
//
// A run pages PENDING lines into a bounded worker pool. Each line is matched
// read-only and then persisted in its own transaction: the line is locked if
// still PENDING, the supplier SKU mapping and its audit entry are written, a
// review item is queued and the line outcome is saved. A line that fails is
// recorded as ERROR and the run moves on. The job is marked MATCHED once, after
// the pool drains.
package processor

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	appctx "github.com/Ramsey-B/vine/pkg/context"
	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

var (
	// ErrRunInProgress is returned when another runner holds the import.
	ErrRunInProgress = errors.New("matching run already in progress")

	// ErrLinesNotPersisted is returned when a line could not be written even as
	// an ERROR. The job stays MATCHING and the next run resumes it.
	ErrLinesNotPersisted = errors.New("lines could not be persisted")
)

const (
	DefaultWorkerCount      = 4
	DefaultPageSize         = 200
	DefaultErrorSampleLimit = 20
	DefaultLockTTL          = 30 * time.Second
)

type JobStore interface {
	Get(ctx context.Context, id string) (*models.ImportJob, error)
	MarkMatching(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, counts models.StatusCounts, samples []models.LineError) (bool, error)
}

type LineStore interface {
	ListPending(ctx context.Context, importID string, afterLine, limit int) ([]models.ImportLine, error)
	LockPending(ctx context.Context, lineID string) (*models.ImportLine, error)
	SaveOutcome(ctx context.Context, lineID string, outcome models.LineOutcome) error
	CountByStatus(ctx context.Context, importID string) (models.StatusCounts, error)
	ListErrors(ctx context.Context, importID string, limit int) ([]models.LineError, error)
}

type MappingStore interface {
	Upsert(ctx context.Context, mapping models.SupplierProductMapping) (*models.UpsertResult, error)
}

type ReviewStore interface {
	Enqueue(ctx context.Context, item models.ReviewQueueItem) (bool, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry models.MappingAuditEntry) error
}

// Transactor runs fn in one transaction carried by the context it passes on.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Matcher decides a single line without writing anything.
type Matcher interface {
	Match(ctx context.Context, supplierID, importID string, line models.ImportLine) (*models.MatchResult, error)
	Ping(ctx context.Context) error
}

// Emitter publishes committed changes. Failures are logged, never fatal.
type Emitter interface {
	EmitMapping(ctx context.Context, result *models.UpsertResult, lineID string, auditSampled bool) error
	EmitReviewEnqueued(ctx context.Context, item models.ReviewQueueItem) error
	EmitImportMatched(ctx context.Context, supplierID string, summary models.MatchSummary) error
}

// RunLocker keeps a single run per import across processes.
type RunLocker interface {
	Hold(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type Stores struct {
	Jobs     JobStore
	Lines    LineStore
	Mappings MappingStore
	Reviews  ReviewStore
	Audit    AuditStore
}

type Config struct {
	WorkerCount int
	PageSize    int
	// LinesPerSecond caps line throughput across workers; zero disables it.
	LinesPerSecond   float64
	ErrorSampleLimit int
	LockTTL          time.Duration
}

func DefaultConfig() Config {
	return Config{
		WorkerCount:      DefaultWorkerCount,
		PageSize:         DefaultPageSize,
		ErrorSampleLimit: DefaultErrorSampleLimit,
		LockTTL:          DefaultLockTTL,
	}
}

type Option func(*Processor)

func WithEmitter(e Emitter) Option {
	return func(p *Processor) {
		p.emitter = e
	}
}

func WithRunLocker(l RunLocker) Option {
	return func(p *Processor) {
		p.locker = l
	}
}

type Processor struct {
	log     ectologger.Logger
	stores  Stores
	tx      Transactor
	matcher Matcher
	emitter Emitter
	locker  RunLocker
	limiter *rate.Limiter
	cfg     Config
}

func NewProcessor(log ectologger.Logger, stores Stores, tx Transactor, matcher Matcher, cfg Config, opts ...Option) *Processor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ErrorSampleLimit <= 0 {
		cfg.ErrorSampleLimit = DefaultErrorSampleLimit
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	p := &Processor{
		log:     log,
		stores:  stores,
		tx:      tx,
		matcher: matcher,
		cfg:     cfg,
	}
	if cfg.LinesPerSecond > 0 {
		burst := int(cfg.LinesPerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.LinesPerSecond), burst)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunMatching matches every PENDING line of the job and returns the stored
// summary. Re-running a MATCHED job returns its summary without side effects.
// When lines could not be persisted the job stays MATCHING and the returned
// summary reflects what was written so far, alongside the error.
func (p *Processor) RunMatching(ctx context.Context, importJobID string) (*models.MatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RunMatching")
	defer span.End()

	ctx = appctx.SetImportID(ctx, importJobID)
	log := p.log.WithContext(ctx).WithField("import_id", importJobID)
	start := time.Now()

	job, err := p.loadJob(ctx, importJobID)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	ctx = appctx.SetSupplierID(ctx, job.SupplierID)

	if job.Status == models.ImportJobStatusMatched {
		log.Info("Import job already matched")
		metrics.RunsTotal.WithLabelValues("noop").Inc()
		return job.Summary(), nil
	}

	if p.locker != nil {
		release, err := p.locker.Hold(ctx, "import:"+importJobID, p.cfg.LockTTL)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("rejected").Inc()
			log.WithError(err).Warn("Could not acquire import run lock")
			return nil, errors.Wrapf(ErrRunInProgress, "import %s", importJobID)
		}
		defer release()
	}

	if err := p.matcher.Ping(ctx); err != nil {
		metrics.RunsTotal.WithLabelValues("rejected").Inc()
		log.WithError(err).Error("Catalog preflight failed")
		return nil, errors.Wrapf(err, "import %s", importJobID)
	}

	if err := p.stores.Jobs.MarkMatching(ctx, importJobID); err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
			// another runner finished first
			if current, gerr := p.loadJob(ctx, importJobID); gerr == nil && current.Status == models.ImportJobStatusMatched {
				metrics.RunsTotal.WithLabelValues("noop").Inc()
				return current.Summary(), nil
			}
		}
		metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return nil, errors.Wrapf(err, "failed to start matching import %s", importJobID)
	}

	job.Status = models.ImportJobStatusMatching
	log.WithFields(map[string]any{
		"supplier_id": job.SupplierID,
		"workers":     p.cfg.WorkerCount,
	}).Info("Matching import job")

	t, err := p.runPool(ctx, job)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Matching run aborted")
		return p.partialSummary(ctx, job), errors.Wrapf(err, "import %s", importJobID)
	}
	if t.unpersisted > 0 {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.WithField("unpersisted", t.unpersisted).Error("Lines could not be persisted, job left matching")
		return p.partialSummary(ctx, job), errors.Wrapf(ErrLinesNotPersisted, "import %s: %d lines", importJobID, t.unpersisted)
	}

	summary, err := p.finalize(ctx, job)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("matched").Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"processed":    t.processed,
		"skipped":      t.skipped,
		"total":        summary.Total,
		"auto_matched": summary.AutoMatched,
		"needs_review": summary.NeedsReview,
		"errors":       summary.Errors,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("Import job matched")

	return summary, nil
}

// Summary returns the stored summary of a job without running anything.
func (p *Processor) Summary(ctx context.Context, importJobID string) (*models.MatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Summary")
	defer span.End()

	job, err := p.loadJob(ctx, importJobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.ImportJobStatusMatched {
		return job.Summary(), nil
	}
	return p.partialSummary(ctx, job), nil
}

func (p *Processor) loadJob(ctx context.Context, id string) (*models.ImportJob, error) {
	job, err := p.stores.Jobs.Get(ctx, id)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return nil, errors.Wrapf(models.ErrImportJobNotFound, "import %s", id)
		}
		return nil, errors.Wrapf(err, "failed to load import %s", id)
	}
	if job == nil {
		return nil, errors.Wrapf(models.ErrImportJobNotFound, "import %s", id)
	}
	return job, nil
}

// finalize recounts line statuses and marks the job MATCHED. The stored row is
// re-read so a concurrent finalizer's counters win consistently.
func (p *Processor) finalize(ctx context.Context, job *models.ImportJob) (*models.MatchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.finalize")
	defer span.End()

	counts, err := p.stores.Lines.CountByStatus(ctx, job.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count lines of import %s", job.ID)
	}
	if pending := counts[models.LineStatusPending]; pending > 0 {
		return nil, errors.Wrapf(ErrLinesNotPersisted, "import %s: %d lines still pending", job.ID, pending)
	}

	samples, err := p.stores.Lines.ListErrors(ctx, job.ID, p.cfg.ErrorSampleLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list errors of import %s", job.ID)
	}

	transitioned, err := p.stores.Jobs.Finalize(ctx, job.ID, counts, samples)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to finalize import %s", job.ID)
	}

	stored, err := p.loadJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	summary := stored.Summary()

	if transitioned && p.emitter != nil {
		if err := p.emitter.EmitImportMatched(ctx, job.SupplierID, *summary); err != nil {
			p.log.WithContext(ctx).WithError(err).Warn("Failed to emit import matched event")
		}
	}
	return summary, nil
}

// partialSummary renders the current line counts of an unfinished job.
func (p *Processor) partialSummary(ctx context.Context, job *models.ImportJob) *models.MatchSummary {
	summary := &models.MatchSummary{
		ImportID:     job.ID,
		Status:       job.Status,
		ErrorSamples: []models.LineError{},
	}

	counts, err := p.stores.Lines.CountByStatus(ctx, job.ID)
	if err != nil {
		p.log.WithContext(ctx).WithError(err).Warn("Failed to count lines for partial summary")
		return summary
	}
	summary.Total = counts.Total()
	summary.AutoMatched = counts[models.LineStatusAutoMatched]
	summary.SamplingReview = counts[models.LineStatusSamplingReview]
	summary.NeedsReview = counts[models.LineStatusNeedsReview]
	summary.NoMatch = counts[models.LineStatusNoMatch]
	summary.Errors = counts[models.LineStatusError]

	if samples, err := p.stores.Lines.ListErrors(ctx, job.ID, p.cfg.ErrorSampleLimit); err == nil && samples != nil {
		summary.ErrorSamples = samples
	}
	return summary
}
