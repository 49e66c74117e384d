package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStateRecord(t *testing.T) {
	t.Parallel()

	var s RunState
	require.NoError(t, s.Record("https://x/a", OutcomeSuccess))
	require.NoError(t, s.Record("https://x/b", OutcomeSkipped))
	require.NoError(t, s.Record("https://x/c", OutcomeFailed))

	assert.Equal(t, 3, s.ProcessedCount)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 1, s.SkippedCount)
	assert.Equal(t, 1, s.FailedCount)
	assert.Equal(t, []string{"https://x/c"}, s.FailedLinks)
}

func TestRunStateRecordUnknownOutcome(t *testing.T) {
	t.Parallel()

	var s RunState
	err := s.Record("https://x/d", Outcome("bogus"))
	require.Error(t, err)

	assert.Equal(t, 1, s.ProcessedCount)
	assert.Equal(t, 1, s.FailedCount)
	assert.Equal(t, []string{"https://x/d"}, s.FailedLinks)
}

func TestRunReportSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	report := RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		State: RunState{
			ProcessedCount: 2,
			SuccessCount:   1,
			FailedCount:    1,
			FailedLinks:    []string{"https://x/c"},
		},
	}

	summary := report.Summary()
	assert.Contains(t, summary, "processed: 2")
	assert.Contains(t, summary, "failed: 1")
	assert.Contains(t, summary, "  - https://x/c")
	assert.Contains(t, summary, "1.5s")

	assert.Equal(t, "Recipe collection: no new messages.", RunReport{Empty: true}.Summary())
}

func TestDefaultClassification(t *testing.T) {
	t.Parallel()

	cls := DefaultClassification()
	assert.NotNil(t, cls.Ingredients)
	assert.Empty(t, cls.Ingredients)
	assert.Equal(t, CuisineOther, cls.CuisineType)
	assert.Equal(t, CategoryOther, cls.Category)
}
