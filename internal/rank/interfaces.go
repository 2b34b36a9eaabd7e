package rank

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a job record does not exist.
var ErrNotFound = errors.New("job not found")

// ErrJobExists is returned when creating a job whose ID is already stored.
var ErrJobExists = errors.New("job already exists")

// JobStore persists job records with atomic visibility: a reader never
// observes a partially written record. Update applies a shallow merge of the
// given partial fields (last writer wins per field).
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	Update(ctx context.Context, jobID string, upd JobUpdate) (Job, error)
	List(ctx context.Context) ([]Job, error)
}

// TaskClient abstracts the rate-limited external data provider. Work is
// submitted asynchronously and resolved later by polling.
type TaskClient interface {
	// SubmitMetricsTask submits one bulk search-volume task for the keywords.
	SubmitMetricsTask(ctx context.Context, keywords []string, locale Locale) (string, error)
	PollMetricsTask(ctx context.Context, taskID string) (MetricsTaskResult, error)
	// SubmitSerpTasks submits one SERP task per keyword and returns the task
	// IDs order-aligned with the input.
	SubmitSerpTasks(ctx context.Context, keywords []string, locale Locale, depth int) ([]string, error)
	PollSerpTask(ctx context.Context, taskID string) (SerpTaskResult, error)
}

// ClientRegistry exposes the client-owned seed data the engine reads at
// PREPARE: the curated keyword list and the owned domain set.
type ClientRegistry interface {
	ApprovedKeywords(ctx context.Context, clientCode string) ([]string, error)
	ClientDomains(ctx context.Context, clientCode string) ([]string, error)
}

// ResultStore persists keyword output records keyed by
// (clientCode, keyword, selectedDomain, locale) with upsert semantics.
type ResultStore interface {
	UpsertBatch(ctx context.Context, records []KeywordRecord) error
	// TrackedKeywords returns every keyword already recorded for the
	// client/domain pair, so re-runs keep historical keywords.
	TrackedKeywords(ctx context.Context, clientCode, selectedDomain string) ([]string, error)
}

// MetricsCache stores keyword metrics keyed by locale plus normalized
// keyword so fresh values can be skipped on resubmission.
type MetricsCache interface {
	// Fresh returns cached metrics younger than maxAge for the given keywords.
	Fresh(ctx context.Context, locale Locale, keywords []string, maxAge time.Duration) (map[string]KeywordMetrics, error)
	Put(ctx context.Context, locale Locale, rows []KeywordMetrics) error
}

// ArtifactStore writes export artifacts and returns a URI.
type ArtifactStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, evt CompletionEvent) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
