package importline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/internal/repositories/importjob"
	"github.com/Ramsey-B/vine/internal/repositories/importline"
	"github.com/Ramsey-B/vine/internal/testhelpers"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/models"
)

type fixture struct {
	pg      *testhelpers.Postgres
	jobs    *importjob.Repository
	lines   *importline.Repository
	tx      *database.Transactor
	jobID   string
	lineIDs []string
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	pg := testhelpers.GetPostgres(t)
	logger := testhelpers.Logger()
	f := &fixture{
		pg:    pg,
		jobs:  importjob.NewRepository(pg.DB, logger),
		lines: importline.NewRepository(pg.DB, logger),
		tx:    database.NewTransactor(pg.DB, nil),
	}

	ctx := context.Background()
	job, err := f.jobs.Create(ctx, &models.ImportJob{SupplierID: "sup-1", TotalLines: n})
	require.NoError(t, err)
	assert.Equal(t, models.ImportJobStatusPending, job.Status)
	f.jobID = job.ID

	lines := make([]models.ImportLine, n)
	for i := range lines {
		lines[i] = models.ImportLine{LineNumber: i + 1, SupplierSKU: "SKU", Name: "Margaux 2015"}
	}
	require.NoError(t, f.lines.Insert(ctx, job.ID, lines))
	for _, l := range lines {
		f.lineIDs = append(f.lineIDs, l.ID)
	}
	return f
}

func TestListPending_KeysetPages(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	page, err := f.lines.ListPending(ctx, f.jobID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []int{1, 2}, []int{page[0].LineNumber, page[1].LineNumber})

	page, err = f.lines.ListPending(ctx, f.jobID, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, 3, page[0].LineNumber)
	assert.Equal(t, "Margaux 2015", page[0].Name)
}

func TestSaveOutcome_OnlyOnce(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	score := 97.5
	product := "p-margaux-2015"

	err := f.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := f.lines.LockPending(ctx, f.lineIDs[0])
		require.NoError(t, err)
		require.NotNil(t, locked)
		return f.lines.SaveOutcome(ctx, f.lineIDs[0], models.LineOutcome{
			Status:    models.LineStatusAutoMatched,
			Decision:  models.DecisionAutoMatch,
			Method:    models.MatchMethodFuzzyText,
			Score:     &score,
			ProductID: &product,
			Reasons:   []string{"vintage match"},
		})
	})
	require.NoError(t, err)

	locked, err := f.lines.LockPending(ctx, f.lineIDs[0])
	require.NoError(t, err)
	assert.Nil(t, locked, "a decided line is no longer pending")

	err = f.lines.SaveOutcome(ctx, f.lineIDs[0], models.ErrorOutcome("late writer"))
	assert.ErrorIs(t, err, models.ErrLineNotPending)

	lines, err := f.lines.List(ctx, f.jobID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, models.LineStatusAutoMatched, lines[0].MatchStatus)
	require.NotNil(t, lines[0].ConfidenceScore)
	assert.InDelta(t, 97.5, *lines[0].ConfidenceScore, 0.001)
	assert.Equal(t, []string{"vintage match"}, lines[0].MatchReasons)
	assert.Equal(t, models.LineStatusPending, lines[1].MatchStatus)
}

func TestCountsAndErrors(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	require.NoError(t, f.lines.SaveOutcome(ctx, f.lineIDs[2], models.ErrorOutcome("bad barcode")))
	require.NoError(t, f.lines.SaveOutcome(ctx, f.lineIDs[0], models.ErrorOutcome("bad vintage")))

	counts, err := f.lines.CountByStatus(ctx, f.jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.LineStatusError])
	assert.Equal(t, 1, counts[models.LineStatusPending])
	assert.Equal(t, 3, counts.Total())

	errs, err := f.lines.ListErrors(ctx, f.jobID, 1)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].LineNumber)
	assert.Equal(t, "bad vintage", errs[0].Reason)
}

func TestJob_MarkMatchingAndFinalize(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	require.NoError(t, f.jobs.MarkMatching(ctx, f.jobID))
	require.NoError(t, f.jobs.MarkMatching(ctx, f.jobID), "a MATCHING job can resume")

	done, err := f.jobs.Finalize(ctx, f.jobID, models.StatusCounts{models.LineStatusNoMatch: 1}, nil)
	require.NoError(t, err)
	assert.True(t, done)

	again, err := f.jobs.Finalize(ctx, f.jobID, models.StatusCounts{models.LineStatusNoMatch: 1}, nil)
	require.NoError(t, err)
	assert.False(t, again)

	assert.Error(t, f.jobs.MarkMatching(ctx, f.jobID), "a MATCHED job cannot restart")

	job, err := f.jobs.Get(ctx, f.jobID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportJobStatusMatched, job.Status)
	assert.Equal(t, 1, job.NoMatchCount)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.MatchedAt)
	assert.Equal(t, []models.LineError{}, job.ErrorSamples)
}
