// Package file implements a JobStore backed by one JSON document per job.
// Every write lands in a staging file that is renamed over the record, so a
// concurrent reader sees either the previous or the new version, never a
// partial one.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/serplens/ranktracker/internal/rank"
)

// Config captures the parameters for the file job store.
type Config struct {
	// BaseDir is the directory holding the job records.
	BaseDir string `mapstructure:"base_dir"`
}

// JobStore persists job records as <id>.json files under a base directory.
// A single mutex serializes read-modify-write cycles; contention is low
// because each job has a single writer.
type JobStore struct {
	mu      sync.Mutex
	baseDir string
}

// New creates a file-backed job store, creating the base directory if
// needed.
func New(cfg Config) (*JobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("base directory path is not a directory")
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	return &JobStore{baseDir: cfg.BaseDir}, nil
}

// Create persists a new job record.
func (s *JobStore) Create(_ context.Context, job rank.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.recordPath(job.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return rank.ErrJobExists
	}
	return s.writeRecord(path, job)
}

// Get reads a job record by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (rank.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(jobID)
}

// Update reads the stored record, applies the shallow merge, and atomically
// replaces the file.
func (s *JobStore) Update(_ context.Context, jobID string, upd rank.JobUpdate) (rank.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.readRecord(jobID)
	if err != nil {
		return rank.Job{}, err
	}
	merged := upd.Apply(job)
	path, err := s.recordPath(jobID)
	if err != nil {
		return rank.Job{}, err
	}
	if err := s.writeRecord(path, merged); err != nil {
		return rank.Job{}, err
	}
	return merged, nil
}

// List reads every job record under the base directory.
func (s *JobStore) List(_ context.Context) ([]rank.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read base directory: %w", err)
	}
	var jobs []rank.Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		job, err := s.readRecord(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobStore) recordPath(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("job id is required")
	}
	full := filepath.Join(s.baseDir, jobID+".json")
	// Reject IDs that would escape the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return full, nil
}

func (s *JobStore) readRecord(jobID string) (rank.Job, error) {
	path, err := s.recordPath(jobID)
	if err != nil {
		return rank.Job{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rank.Job{}, rank.ErrNotFound
		}
		return rank.Job{}, fmt.Errorf("read job record: %w", err)
	}
	var job rank.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return rank.Job{}, fmt.Errorf("decode job record: %w", err)
	}
	return job, nil
}

// writeRecord stages the document next to the record and renames it into
// place. Rename within one directory is atomic on POSIX filesystems.
func (s *JobStore) writeRecord(path string, job rank.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job record: %w", err)
	}
	staging := path + ".tmp"
	if err := os.WriteFile(staging, data, 0o640); err != nil {
		return fmt.Errorf("write staging record: %w", err)
	}
	if err := os.Rename(staging, path); err != nil {
		return fmt.Errorf("replace job record: %w", err)
	}
	return nil
}
