// Package audit accumulates per-item SERP matching evidence and exports it
// as a CSV artifact when a job finalizes.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"sync"

	"github.com/serplens/ranktracker/internal/rank"
)

// csvHeader is the fixed column order of the exported audit file.
var csvHeader = []string{
	"jobId",
	"clientCode",
	"locationType",
	"keyword",
	"depthRequested",
	"organicCountFound",
	"rank_group",
	"domain",
	"normalized_domain",
	"url",
	"title",
	"snippet",
	"isClientDomainMatch",
	"matchedClientDomain",
}

// Recorder collects audit rows per job. Rows are append-only and live in
// memory until Export writes them out.
type Recorder struct {
	mu        sync.Mutex
	rows      map[string][]rank.AuditRow
	artifacts rank.ArtifactStore
}

// NewRecorder constructs a Recorder writing through the artifact store.
func NewRecorder(artifacts rank.ArtifactStore) *Recorder {
	return &Recorder{
		rows:      make(map[string][]rank.AuditRow),
		artifacts: artifacts,
	}
}

// Record appends rows for the job.
func (r *Recorder) Record(jobID string, rows ...rank.AuditRow) {
	if len(rows) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[jobID] = append(r.rows[jobID], rows...)
}

// Count returns the number of rows recorded for the job.
func (r *Recorder) Count(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[jobID])
}

// Export writes the job's rows as a CSV artifact under audits/<jobID>.csv
// and returns the stored URI. Exporting a job with no rows returns an empty
// path without touching the artifact store. The rows are released after a
// successful export.
func (r *Recorder) Export(ctx context.Context, jobID string) (string, error) {
	r.mu.Lock()
	rows := r.rows[jobID]
	r.mu.Unlock()
	if len(rows) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write audit header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.JobID,
			row.ClientCode,
			string(row.Locale),
			row.Keyword,
			strconv.Itoa(row.DepthRequested),
			strconv.Itoa(row.OrganicCountFound),
			strconv.Itoa(row.Rank),
			row.Domain,
			row.NormalizedDomain,
			row.URL,
			row.Title,
			row.Snippet,
			strconv.FormatBool(row.IsClientMatch),
			row.MatchedDomain,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write audit row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush audit csv: %w", err)
	}

	path := fmt.Sprintf("audits/%s.csv", jobID)
	uri, err := r.artifacts.Put(ctx, path, "text/csv", buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("store audit csv: %w", err)
	}

	r.mu.Lock()
	delete(r.rows, jobID)
	r.mu.Unlock()
	return uri, nil
}

// Discard drops any rows held for the job without exporting them.
func (r *Recorder) Discard(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, jobID)
}
