package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// tally is owned by one worker and merged after the pool drains.
type tally struct {
	processed   int
	skipped     int
	unpersisted int
	decisions   map[models.Decision]int
}

func newTally() *tally {
	return &tally{decisions: map[models.Decision]int{}}
}

func (t *tally) merge(o *tally) {
	t.processed += o.processed
	t.skipped += o.skipped
	t.unpersisted += o.unpersisted
	for d, n := range o.decisions {
		t.decisions[d] += n
	}
}

// committed is what one line transaction wrote, for events after commit.
type committed struct {
	skipped bool
	mapping *models.UpsertResult
	review  *models.ReviewQueueItem
}

// runPool feeds PENDING lines, keyset-paged by line number, to the workers.
func (p *Processor) runPool(ctx context.Context, job *models.ImportJob) (*tally, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.runPool")
	defer span.End()

	lines := make(chan models.ImportLine, p.cfg.PageSize)
	tallies := make([]*tally, p.cfg.WorkerCount)

	var wg sync.WaitGroup
	for i := range tallies {
		tallies[i] = newTally()
		wg.Add(1)
		go func(t *tally) {
			defer wg.Done()
			for line := range lines {
				p.processLine(ctx, job, line, t)
			}
		}(tallies[i])
	}

	pageErr := p.feed(ctx, job.ID, lines)
	close(lines)
	wg.Wait()

	total := newTally()
	for _, t := range tallies {
		total.merge(t)
	}
	if pageErr != nil {
		return total, pageErr
	}
	return total, nil
}

func (p *Processor) feed(ctx context.Context, importID string, out chan<- models.ImportLine) error {
	after := 0
	for {
		page, err := p.stores.Lines.ListPending(ctx, importID, after, p.cfg.PageSize)
		if err != nil {
			return errors.Wrap(err, "failed to page pending lines")
		}
		for _, line := range page {
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
			after = line.LineNumber
		}
		if len(page) < p.cfg.PageSize {
			return nil
		}
	}
}

// processLine matches and persists one line. It never returns an error: a
// failure becomes an ERROR outcome, and a line that cannot be written at all
// is counted as unpersisted.
func (p *Processor) processLine(ctx context.Context, job *models.ImportJob, line models.ImportLine, t *tally) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.processLine")
	defer span.End()

	metrics.LinesInFlight.Inc()
	defer metrics.LinesInFlight.Dec()

	log := p.log.WithContext(ctx).WithFields(map[string]any{
		"line_id":     line.ID,
		"line_number": line.LineNumber,
	})

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			t.unpersisted++
			return
		}
	}

	start := time.Now()
	result, err := p.safeMatch(ctx, job, line)
	if err != nil {
		log.WithError(err).Warn("Line could not be matched")
		p.recordError(ctx, line, err.Error(), t, start)
		return
	}

	c, err := p.persist(ctx, job, line, result)
	if err != nil {
		log.WithError(err).Warn("Line could not be persisted")
		p.recordError(ctx, line, err.Error(), t, start)
		return
	}
	if c.skipped {
		t.skipped++
		return
	}

	t.processed++
	t.decisions[result.Decision]++
	metrics.LinesProcessed.WithLabelValues(string(result.Decision), string(result.Method)).Inc()
	metrics.LineDuration.WithLabelValues(string(result.Decision)).Observe(time.Since(start).Seconds())
	metrics.ConfidenceScore.Observe(result.Score)
	for _, f := range result.GuardrailFailures {
		metrics.GuardrailFailures.WithLabelValues(string(f.Code)).Inc()
	}

	p.emit(ctx, line, result, c)
}

// safeMatch turns a panic in the matcher into a line error.
func (p *Processor) safeMatch(ctx context.Context, job *models.ImportJob, line models.ImportLine) (result *models.MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Panic while matching line %d: %v", line.LineNumber, r)
			err = fmt.Errorf("panic while matching: %v", r)
		}
	}()
	return p.matcher.Match(ctx, job.SupplierID, job.ID, line)
}

// persist writes every effect of one decided line in a single transaction.
func (p *Processor) persist(ctx context.Context, job *models.ImportJob, line models.ImportLine, result *models.MatchResult) (*committed, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.persist")
	defer span.End()

	outcome, err := outcomeFor(result)
	if err != nil {
		return nil, err
	}

	c := &committed{}
	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := p.stores.Lines.LockPending(ctx, line.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			c.skipped = true
			return nil
		}

		if result.Decision.CreatesMapping() {
			res, err := p.writeMapping(ctx, job, line, result)
			if err != nil {
				return err
			}
			c.mapping = res
		}

		if item := reviewItemFor(job, line, result); item != nil {
			created, err := p.stores.Reviews.Enqueue(ctx, *item)
			if err != nil {
				return err
			}
			metrics.ReviewItems.WithLabelValues(string(item.Kind), fmt.Sprint(created)).Inc()
			if created {
				c.review = item
			}
		}

		return p.stores.Lines.SaveOutcome(ctx, line.ID, outcome)
	})
	if errors.Is(err, models.ErrLineNotPending) {
		return &committed{skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Processor) writeMapping(ctx context.Context, job *models.ImportJob, line models.ImportLine, result *models.MatchResult) (*models.UpsertResult, error) {
	sku := normalizers.NormalizeSKU(line.SupplierSKU)
	if sku == "" || result.Selected == nil {
		return nil, errors.New("auto match without supplier sku or selected product")
	}

	res, err := p.stores.Mappings.Upsert(ctx, models.SupplierProductMapping{
		SupplierID:      job.SupplierID,
		SupplierSKU:     sku,
		MasterProductID: result.Selected.ProductID,
		MatchConfidence: result.Score,
		MatchMethod:     result.Method,
		MatchReasons:    result.Reasons,
		SourceImportID:  job.ID,
		SourceLineID:    line.ID,
	})
	if err != nil {
		return nil, err
	}

	action := res.Action()
	err = p.stores.Audit.Append(ctx, models.MappingAuditEntry{
		MappingID:         res.Mapping.ID,
		SupplierID:        job.SupplierID,
		SupplierSKU:       sku,
		Action:            action,
		PreviousProductID: res.PreviousProductID,
		MasterProductID:   res.Mapping.MasterProductID,
		Confidence:        result.Score,
		Method:            result.Method,
		ImportID:          job.ID,
		ImportLineID:      line.ID,
	})
	if err != nil {
		return nil, err
	}

	metrics.MappingWrites.WithLabelValues(string(action)).Inc()
	return res, nil
}

// recordError writes an ERROR outcome in a fresh transaction.
func (p *Processor) recordError(ctx context.Context, line models.ImportLine, reason string, t *tally, start time.Time) {
	skipped := false
	err := p.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := p.stores.Lines.LockPending(ctx, line.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			skipped = true
			return nil
		}
		return p.stores.Lines.SaveOutcome(ctx, line.ID, models.ErrorOutcome(reason))
	})
	switch {
	case errors.Is(err, models.ErrLineNotPending) || (err == nil && skipped):
		t.skipped++
	case err != nil:
		p.log.WithContext(ctx).WithError(err).WithField("line_id", line.ID).Error("Failed to record line error")
		t.unpersisted++
	default:
		t.processed++
		t.decisions[models.DecisionError]++
		metrics.LinesProcessed.WithLabelValues(string(models.DecisionError), string(models.MatchMethodNone)).Inc()
		metrics.LineDuration.WithLabelValues(string(models.DecisionError)).Observe(time.Since(start).Seconds())
	}
}

func (p *Processor) emit(ctx context.Context, line models.ImportLine, result *models.MatchResult, c *committed) {
	if p.emitter == nil {
		return
	}
	if c.mapping != nil {
		if err := p.emitter.EmitMapping(ctx, c.mapping, line.ID, result.AuditSampled); err != nil {
			p.log.WithContext(ctx).WithError(err).Warn("Failed to emit mapping event")
		}
	}
	if c.review != nil {
		if err := p.emitter.EmitReviewEnqueued(ctx, *c.review); err != nil {
			p.log.WithContext(ctx).WithError(err).Warn("Failed to emit review event")
		}
	}
}

func outcomeFor(result *models.MatchResult) (models.LineOutcome, error) {
	status, err := result.Decision.LineStatus()
	if err != nil {
		return models.LineOutcome{}, err
	}

	outcome := models.LineOutcome{
		Status:            status,
		Decision:          result.Decision,
		Method:            result.Method,
		GuardrailFailures: result.GuardrailFailures,
		Reasons:           result.Reasons,
		AuditSampled:      result.AuditSampled,
	}
	if len(result.Candidates) > 0 || result.Selected != nil {
		score := result.Score
		outcome.Score = &score
	}
	if result.Decision.CreatesMapping() && result.Selected != nil {
		productID := result.Selected.ProductID
		outcome.ProductID = &productID
		if result.Selected.FamilyID != "" {
			familyID := result.Selected.FamilyID
			outcome.FamilyID = &familyID
		}
	}
	return outcome, nil
}

// reviewItemFor returns the review item a decision needs, or nil.
// REVIEW_QUEUE and NO_MATCH are adjudicated; sampled auto matches are audited.
func reviewItemFor(job *models.ImportJob, line models.ImportLine, result *models.MatchResult) *models.ReviewQueueItem {
	var kind models.ReviewKind
	switch {
	case result.Decision.NeedsAdjudication():
		kind = models.ReviewKindAdjudication
	case result.Decision == models.DecisionAutoMatchWithSampling && result.AuditSampled:
		kind = models.ReviewKindAuditSample
	default:
		return nil
	}

	candidates := result.Candidates
	if result.Decision == models.DecisionNoMatch || candidates == nil {
		candidates = []models.Candidate{}
	}

	return &models.ReviewQueueItem{
		ImportLineID: line.ID,
		ImportID:     job.ID,
		SupplierID:   job.SupplierID,
		SupplierSKU:  normalizers.NormalizeSKU(line.SupplierSKU),
		Kind:         kind,
		Decision:     result.Decision,
		LineSnapshot: line,
		Candidates:   candidates,
		Status:       models.ReviewStatusPending,
		Reason:       strings.Join(result.Reasons, "; "),
	}
}
