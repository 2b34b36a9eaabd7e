package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/serplens/ranktracker/internal/rank"
	"github.com/serplens/ranktracker/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

func newTestManager() (*Manager, *memory.JobStore) {
	store := memory.NewJobStore()
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	return New(store, clock, &seqIDs{}, zap.NewNop()), store
}

func TestCreateJobAssignsQueuedRecord(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager()
	job, created, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, rank.JobStatusQueued, job.Status)
	require.Equal(t, rank.StagePrepare, job.Stage)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), job.CreatedAt)
}

func TestCreateJobSuppressesDuplicateLiveJob(t *testing.T) {
	t.Parallel()

	mgr, store := newTestManager()
	first, created, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.True(t, created)

	// A second submission for the same pair returns the live job.
	again, created, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)

	// Same client, different domain runs independently.
	other, created, err := mgr.CreateJob(context.Background(), "ACME", "acme.in")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)

	// Once the first job is terminal a new one is allowed.
	status := rank.JobStatusCompleted
	_, err = store.Update(context.Background(), first.ID, rank.JobUpdate{Status: &status})
	require.NoError(t, err)

	fresh, created, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, fresh.ID)
}

func TestCreateJobValidatesInput(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager()
	_, _, err := mgr.CreateJob(context.Background(), "", "acme.com")
	require.Error(t, err)
	_, _, err = mgr.CreateJob(context.Background(), "ACME", "")
	require.Error(t, err)
}

func TestCancelJobMarksCancelled(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager()
	job, _, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)

	cancelled, err := mgr.CancelJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, rank.JobStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.FinishedAt)

	// Cancelling a terminal job is a no-op.
	again, err := mgr.CancelJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, rank.JobStatusCancelled, again.Status)

	_, err = mgr.CancelJob(context.Background(), "missing")
	require.ErrorIs(t, err, rank.ErrNotFound)
}

func TestUpdateJobStampsUpdatedAt(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager()
	job, _, err := mgr.CreateJob(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)

	progress := 40
	updated, err := mgr.UpdateJob(context.Background(), job.ID, rank.JobUpdate{ProgressPercent: &progress})
	require.NoError(t, err)
	require.Equal(t, 40, updated.ProgressPercent)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), updated.UpdatedAt)
}
