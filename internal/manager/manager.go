// Package manager owns the job lifecycle: creation with duplicate
// suppression, status reads, partial updates, and cancellation requests.
package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/serplens/ranktracker/internal/rank"
)

// Manager coordinates job records in the store. It never runs jobs itself;
// the caller spawns a Worker for each job the Manager accepts.
type Manager struct {
	store rank.JobStore
	clock rank.Clock
	ids   rank.IDGenerator
	log   *zap.Logger
}

// New constructs a Manager.
func New(store rank.JobStore, clock rank.Clock, ids rank.IDGenerator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, clock: clock, ids: ids, log: log}
}

// CreateJob creates a QUEUED job for the client/domain pair. If a RUNNING
// job already exists for the same pair, that job is returned instead and
// created reports false.
func (m *Manager) CreateJob(ctx context.Context, clientCode, selectedDomain string) (rank.Job, bool, error) {
	if clientCode == "" {
		return rank.Job{}, false, fmt.Errorf("client code is required")
	}
	if selectedDomain == "" {
		return rank.Job{}, false, fmt.Errorf("selected domain is required")
	}

	// Duplicate suppression keys on the pair, not the job ID: one live run
	// per client/domain at a time.
	existing, err := m.store.List(ctx)
	if err != nil {
		return rank.Job{}, false, fmt.Errorf("list jobs: %w", err)
	}
	for _, job := range existing {
		if job.ClientCode == clientCode && job.SelectedDomain == selectedDomain &&
			(job.Status == rank.JobStatusRunning || job.Status == rank.JobStatusQueued) {
			m.log.Info("returning existing live job",
				zap.String("job_id", job.ID),
				zap.String("client_code", clientCode),
				zap.String("selected_domain", selectedDomain),
			)
			return job, false, nil
		}
	}

	id, err := m.ids.NewID()
	if err != nil {
		return rank.Job{}, false, fmt.Errorf("generate job id: %w", err)
	}
	now := m.clock.Now().UTC()
	job := rank.Job{
		ID:             id,
		ClientCode:     clientCode,
		SelectedDomain: selectedDomain,
		Status:         rank.JobStatusQueued,
		Stage:          rank.StagePrepare,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return rank.Job{}, false, fmt.Errorf("create job: %w", err)
	}
	m.log.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("client_code", clientCode),
		zap.String("selected_domain", selectedDomain),
	)
	return job, true, nil
}

// GetJob returns the current job record.
func (m *Manager) GetJob(ctx context.Context, jobID string) (rank.Job, error) {
	return m.store.Get(ctx, jobID)
}

// UpdateJob applies a partial update and stamps UpdatedAt.
func (m *Manager) UpdateJob(ctx context.Context, jobID string, upd rank.JobUpdate) (rank.Job, error) {
	now := m.clock.Now().UTC()
	upd.UpdatedAt = &now
	return m.store.Update(ctx, jobID, upd)
}

// CancelJob marks the job CANCELLED. The running worker notices the status
// at its next stage or chunk boundary and stops without further writes. A
// job that is already terminal is left untouched.
func (m *Manager) CancelJob(ctx context.Context, jobID string) (rank.Job, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return rank.Job{}, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	status := rank.JobStatusCancelled
	now := m.clock.Now().UTC()
	updated, err := m.store.Update(ctx, jobID, rank.JobUpdate{
		Status:     &status,
		UpdatedAt:  &now,
		FinishedAt: &now,
	})
	if err != nil {
		return rank.Job{}, err
	}
	m.log.Info("job cancelled", zap.String("job_id", jobID))
	return updated, nil
}
