package processor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/vine/pkg/models"
)

type memState struct {
	jobs     map[string]models.ImportJob
	lines    map[string]models.ImportLine
	mappings map[string]models.SupplierProductMapping
	reviews  map[string]models.ReviewQueueItem
	audit    []models.MappingAuditEntry
}

func (s memState) clone() memState {
	c := memState{
		jobs:     make(map[string]models.ImportJob, len(s.jobs)),
		lines:    make(map[string]models.ImportLine, len(s.lines)),
		mappings: make(map[string]models.SupplierProductMapping, len(s.mappings)),
		reviews:  make(map[string]models.ReviewQueueItem, len(s.reviews)),
		audit:    append([]models.MappingAuditEntry(nil), s.audit...),
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.mappings {
		c.mappings[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	return c
}

// memStore implements every store and the transactor. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	memState

	// saveFailures makes SaveOutcome fail for a line id.
	saveFailures map[string]error
	finalized    int
}

func newMemStore() *memStore {
	return &memStore{
		memState: memState{
			jobs:     map[string]models.ImportJob{},
			lines:    map[string]models.ImportLine{},
			mappings: map[string]models.SupplierProductMapping{},
			reviews:  map[string]models.ReviewQueueItem{},
		},
		saveFailures: map[string]error{},
	}
}

func (m *memStore) stores() Stores {
	return Stores{Jobs: m, Lines: m, Mappings: m, Reviews: m, Audit: m}
}

func (m *memStore) addJob(supplierID string, lines ...models.ImportLine) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobID := uuid.NewString()
	m.jobs[jobID] = models.ImportJob{ID: jobID, SupplierID: supplierID, Status: models.ImportJobStatusPending}
	for i, line := range lines {
		line.ID = uuid.NewString()
		line.ImportID = jobID
		if line.LineNumber == 0 {
			line.LineNumber = i + 1
		}
		line.MatchStatus = models.LineStatusPending
		m.lines[line.ID] = line
	}
	return jobID
}

func (m *memStore) lineByNumber(importID string, n int) models.ImportLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lines {
		if l.ImportID == importID && l.LineNumber == n {
			return l
		}
	}
	return models.ImportLine{}
}

func (m *memStore) linesOf(importID string) []models.ImportLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ImportLine
	for _, l := range m.lines {
		if l.ImportID == importID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memState.clone()
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	before := m.snapshot()
	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.memState = before
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "import job %s not found", id)
	}
	return &job, nil
}

func (m *memStore) MarkMatching(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	if job.Status == models.ImportJobStatusMatched {
		return httperror.NewHTTPErrorf(http.StatusConflict, "import job %s cannot start matching", id)
	}
	now := time.Now()
	job.Status = models.ImportJobStatusMatching
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	m.jobs[id] = job
	return nil
}

func (m *memStore) Finalize(_ context.Context, id string, counts models.StatusCounts, samples []models.LineError) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	if job.Status != models.ImportJobStatusMatching {
		return false, nil
	}
	now := time.Now()
	job.Status = models.ImportJobStatusMatched
	job.TotalLines = counts.Total()
	job.AutoMatchedCount = counts[models.LineStatusAutoMatched]
	job.SamplingReviewCount = counts[models.LineStatusSamplingReview]
	job.NeedsReviewCount = counts[models.LineStatusNeedsReview]
	job.NoMatchCount = counts[models.LineStatusNoMatch]
	job.ErrorCount = counts[models.LineStatusError]
	job.ErrorSamples = samples
	job.MatchedAt = &now
	m.jobs[id] = job
	m.finalized++
	return true, nil
}

func (m *memStore) ListPending(_ context.Context, importID string, afterLine, limit int) ([]models.ImportLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ImportLine
	for _, l := range m.lines {
		if l.ImportID == importID && l.MatchStatus == models.LineStatusPending && l.LineNumber > afterLine {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) LockPending(_ context.Context, lineID string) (*models.ImportLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lines[lineID]
	if !ok || l.MatchStatus != models.LineStatusPending {
		return nil, nil
	}
	return &l, nil
}

func (m *memStore) SaveOutcome(_ context.Context, lineID string, outcome models.LineOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveFailures[lineID]; err != nil {
		return err
	}
	l := m.lines[lineID]
	if l.MatchStatus != models.LineStatusPending {
		return models.ErrLineNotPending
	}
	decision := outcome.Decision
	method := outcome.Method
	now := time.Now()
	l.MatchStatus = outcome.Status
	l.MatchDecision = &decision
	l.MatchMethod = &method
	l.ConfidenceScore = outcome.Score
	l.MatchedProductID = outcome.ProductID
	l.MatchedFamilyID = outcome.FamilyID
	l.GuardrailFailures = outcome.GuardrailFailures
	l.MatchReasons = outcome.Reasons
	l.AuditSampled = outcome.AuditSampled
	l.ErrorReason = outcome.ErrorReason
	l.MatchedAt = &now
	m.lines[lineID] = l
	return nil
}

func (m *memStore) CountByStatus(_ context.Context, importID string) (models.StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := models.StatusCounts{}
	for _, l := range m.lines {
		if l.ImportID == importID {
			counts[l.MatchStatus]++
		}
	}
	return counts, nil
}

func (m *memStore) ListErrors(_ context.Context, importID string, limit int) ([]models.LineError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.LineError{}
	for _, l := range m.lines {
		if l.ImportID == importID && l.MatchStatus == models.LineStatusError {
			reason := ""
			if l.ErrorReason != nil {
				reason = *l.ErrorReason
			}
			out = append(out, models.LineError{LineID: l.ID, LineNumber: l.LineNumber, Reason: reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, mapping models.SupplierProductMapping) (*models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mapping.SupplierID + "|" + mapping.SupplierSKU
	now := time.Now()

	prev, ok := m.mappings[key]
	if !ok {
		mapping.ID = uuid.NewString()
		mapping.CreatedAt = now
		mapping.UpdatedAt = now
		m.mappings[key] = mapping
		return &models.UpsertResult{Mapping: &mapping, Inserted: true}, nil
	}

	prevProduct := prev.MasterProductID
	prevScore := prev.MatchConfidence
	mapping.ID = prev.ID
	mapping.CreatedAt = prev.CreatedAt
	mapping.UpdatedAt = now
	m.mappings[key] = mapping
	return &models.UpsertResult{Mapping: &mapping, PreviousProductID: &prevProduct, PreviousScore: &prevScore}, nil
}

func (m *memStore) Enqueue(_ context.Context, item models.ReviewQueueItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.reviews[item.ImportLineID]; ok {
		if existing.Decision != item.Decision || existing.Kind != item.Kind {
			return false, httperror.NewHTTPError(http.StatusConflict, models.ErrReviewConflict.Error())
		}
		return false, nil
	}
	item.ID = uuid.NewString()
	item.CreatedAt = time.Now()
	m.reviews[item.ImportLineID] = item
	return true, nil
}

func (m *memStore) Append(_ context.Context, entry models.MappingAuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	m.audit = append(m.audit, entry)
	return nil
}

// scriptedMatcher wraps a real matcher and fails or panics on chosen lines.
type scriptedMatcher struct {
	Matcher
	failOn  map[int]error
	panicOn map[int]bool
	pingErr error
}

func (s *scriptedMatcher) Match(ctx context.Context, supplierID, importID string, line models.ImportLine) (*models.MatchResult, error) {
	if s.panicOn[line.LineNumber] {
		panic(fmt.Sprintf("boom on line %d", line.LineNumber))
	}
	if err := s.failOn[line.LineNumber]; err != nil {
		return nil, err
	}
	return s.Matcher.Match(ctx, supplierID, importID, line)
}

func (s *scriptedMatcher) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Matcher.Ping(ctx)
}

type recordingEmitter struct {
	mu       sync.Mutex
	mappings []models.MappingAction
	reviews  []models.ReviewKind
	matched  []models.MatchSummary
}

func (r *recordingEmitter) EmitMapping(_ context.Context, result *models.UpsertResult, _ string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = append(r.mappings, result.Action())
	return nil
}

func (r *recordingEmitter) EmitReviewEnqueued(_ context.Context, item models.ReviewQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews = append(r.reviews, item.Kind)
	return nil
}

func (r *recordingEmitter) EmitImportMatched(_ context.Context, _ string, summary models.MatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched = append(r.matched, summary)
	return nil
}

type busyLocker struct{}

func (busyLocker) Hold(context.Context, string, time.Duration) (func(), error) {
	return nil, fmt.Errorf("lock not acquired")
}
