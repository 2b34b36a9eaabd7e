package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serplens/ranktracker/internal/rank"
)

func TestJobStoreCreateGet(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	job := rank.Job{
		ID:             "job-1",
		ClientCode:     "ACME",
		SelectedDomain: "acme.com",
		Status:         rank.JobStatusQueued,
		Stage:          rank.StagePrepare,
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, store.Create(context.Background(), job))
	require.ErrorIs(t, store.Create(context.Background(), job), rank.ErrJobExists)

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "ACME", got.ClientCode)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, rank.ErrNotFound)
}

func TestJobStoreUpdateMergesPartialFields(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	require.NoError(t, store.Create(context.Background(), rank.Job{
		ID:        "job-1",
		Status:    rank.JobStatusRunning,
		Stage:     rank.StageMetricsIN,
		MetricsIN: rank.MetricsCounters{Total: 20},
	}))

	progress := 30
	merged, err := store.Update(context.Background(), "job-1", rank.JobUpdate{
		ProgressPercent: &progress,
		AppendErrors:    []string{"metrics IN failed"},
	})
	require.NoError(t, err)
	require.Equal(t, 30, merged.ProgressPercent)
	require.Equal(t, rank.StageMetricsIN, merged.Stage)
	require.Equal(t, rank.MetricsCounters{Total: 20}, merged.MetricsIN)
	require.Equal(t, []string{"metrics IN failed"}, merged.Errors)

	// Second update appends errors instead of replacing them.
	merged, err = store.Update(context.Background(), "job-1", rank.JobUpdate{
		AppendErrors: []string{"chunk 2 failed"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"metrics IN failed", "chunk 2 failed"}, merged.Errors)

	_, err = store.Update(context.Background(), "missing", rank.JobUpdate{})
	require.ErrorIs(t, err, rank.ErrNotFound)
}

func TestJobStoreReadersSeeCommittedCopies(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	require.NoError(t, store.Create(context.Background(), rank.Job{ID: "job-1"}))

	got, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	got.Errors = append(got.Errors, "local mutation")

	again, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Empty(t, again.Errors)
}

func TestJobStoreList(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	require.NoError(t, store.Create(context.Background(), rank.Job{ID: "a"}))
	require.NoError(t, store.Create(context.Background(), rank.Job{ID: "b"}))

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}
