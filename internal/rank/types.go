// Package rank defines core types shared across subsystems.
package rank

import (
	"time"
)

// JobStatus represents the lifecycle state of a rank-tracking job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStage identifies the pipeline step a running job is in. Stages advance
// monotonically while the job is RUNNING and freeze once it is terminal.
type JobStage string

// Pipeline stages in execution order.
const (
	StagePrepare   JobStage = "PREPARE"
	StageMetricsIN JobStage = "METRICS_IN"
	StageMetricsGL JobStage = "METRICS_GL"
	StageSerpIN    JobStage = "SERP_IN"
	StageSerpGL    JobStage = "SERP_GL"
	StageFinalize  JobStage = "FINALIZE"
	StageDone      JobStage = "DONE"
)

// Locale is a fetch region variant. Every keyword set is processed for both.
type Locale string

// Supported fetch locales.
const (
	LocaleIN Locale = "IN" // domestic
	LocaleGL Locale = "GL" // global proxy
)

// Locales lists the fetch locales in processing order.
func Locales() []Locale {
	return []Locale{LocaleIN, LocaleGL}
}

// MetricsCounters tracks per-locale progress of the metrics stage.
type MetricsCounters struct {
	Done   int `json:"done"`
	Total  int `json:"total"`
	Errors int `json:"errors"`
}

// SerpCounters tracks per-locale progress of the SERP stage.
type SerpCounters struct {
	Done   int `json:"done"`
	Total  int `json:"total"`
	Errors int `json:"errors"`
	Empty  int `json:"empty"`
}

// Job is the persisted unit of work: one rank-tracking run for a
// client/domain pair.
type Job struct {
	ID             string    `json:"id"`
	ClientCode     string    `json:"client_code"`
	SelectedDomain string    `json:"selected_domain"`
	Status         JobStatus `json:"status"`
	Stage          JobStage  `json:"stage"`

	ProgressPercent int  `json:"progress_percent"`
	ETASeconds      *int `json:"eta_seconds,omitempty"`
	TotalKeywords   int  `json:"total_keywords"`

	MetricsIN MetricsCounters `json:"metrics_in"`
	MetricsGL MetricsCounters `json:"metrics_gl"`
	SerpIN    SerpCounters    `json:"serp_in"`
	SerpGL    SerpCounters    `json:"serp_gl"`

	// Heartbeat increases independently of stage progress so a status
	// poller can tell a slow job from a hung one.
	Heartbeat int64 `json:"heartbeat"`

	// Errors collects non-fatal failure messages; entries are only ever
	// appended.
	Errors []string `json:"errors,omitempty"`

	AuditCSVPath string `json:"audit_csv_path,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (j Job) Clone() Job {
	cp := j
	if j.ETASeconds != nil {
		v := *j.ETASeconds
		cp.ETASeconds = &v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.Errors != nil {
		cp.Errors = append([]string(nil), j.Errors...)
	}
	return cp
}

// JobUpdate is a partial job record. Non-nil fields replace the stored value
// wholesale (shallow last-writer-wins merge); AppendErrors is append-only.
// The single-writer model (one Worker per job, plus the cancel path) makes
// this merge policy acceptable.
type JobUpdate struct {
	Status          *JobStatus
	Stage           *JobStage
	ProgressPercent *int
	ETASeconds      *int
	TotalKeywords   *int
	MetricsIN       *MetricsCounters
	MetricsGL       *MetricsCounters
	SerpIN          *SerpCounters
	SerpGL          *SerpCounters
	Heartbeat       *int64
	AuditCSVPath    *string
	StartedAt       *time.Time
	UpdatedAt       *time.Time
	FinishedAt      *time.Time
	AppendErrors    []string
}

// Apply merges the update onto a job record. Store implementations call this
// under their own write exclusion.
func (u JobUpdate) Apply(job Job) Job {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Stage != nil {
		job.Stage = *u.Stage
	}
	if u.ProgressPercent != nil {
		job.ProgressPercent = *u.ProgressPercent
	}
	if u.ETASeconds != nil {
		v := *u.ETASeconds
		job.ETASeconds = &v
	}
	if u.TotalKeywords != nil {
		job.TotalKeywords = *u.TotalKeywords
	}
	if u.MetricsIN != nil {
		job.MetricsIN = *u.MetricsIN
	}
	if u.MetricsGL != nil {
		job.MetricsGL = *u.MetricsGL
	}
	if u.SerpIN != nil {
		job.SerpIN = *u.SerpIN
	}
	if u.SerpGL != nil {
		job.SerpGL = *u.SerpGL
	}
	if u.Heartbeat != nil {
		job.Heartbeat = *u.Heartbeat
	}
	if u.AuditCSVPath != nil {
		job.AuditCSVPath = *u.AuditCSVPath
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		job.StartedAt = &t
	}
	if u.UpdatedAt != nil {
		job.UpdatedAt = *u.UpdatedAt
	}
	if u.FinishedAt != nil {
		t := *u.FinishedAt
		job.FinishedAt = &t
	}
	if len(u.AppendErrors) > 0 {
		job.Errors = append(job.Errors, u.AppendErrors...)
	}
	return job
}

// TaskState tags a provider task poll result. The provider response shape is
// decoded into this form exactly once, at the protocol boundary.
type TaskState string

// Provider task states.
const (
	TaskQueued    TaskState = "queued"
	TaskCompleted TaskState = "completed"
	TaskNotFound  TaskState = "notFound"
	TaskError     TaskState = "error"
)

// KeywordMetrics is one row of a bulk metrics task result.
type KeywordMetrics struct {
	Keyword      string    `json:"keyword"`
	SearchVolume int       `json:"search_volume"`
	Competition  string    `json:"competition"`
	PulledAt     time.Time `json:"pulled_at"`
}

// CompetitionUnknown is the default competition value when metrics could not
// be resolved for a keyword.
const CompetitionUnknown = "UNKNOWN"

// MetricsTaskResult is the tagged outcome of polling a bulk metrics task.
type MetricsTaskResult struct {
	State TaskState
	Rows  []KeywordMetrics
	Err   string
}

// OrganicItem is one non-paid result on a SERP.
type OrganicItem struct {
	Rank    int    `json:"rank"`
	Domain  string `json:"domain"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Type    string `json:"type"`
}

// SerpPage is one page of a SERP task result. A single task may spread its
// organic items across several pages.
type SerpPage struct {
	Items []OrganicItem `json:"items"`
}

// SerpTaskResult is the tagged outcome of polling a SERP task.
type SerpTaskResult struct {
	State TaskState
	Pages []SerpPage
	Err   string
}

// CompetitorSnapshot captures one competing SERP entry on an output record.
type CompetitorSnapshot struct {
	Brand  string `json:"brand"`
	Domain string `json:"domain"`
	URL    string `json:"url"`
}

// KeywordRecord is the output record upserted per keyword/locale/domain.
type KeywordRecord struct {
	ClientCode     string               `json:"client_code"`
	Keyword        string               `json:"keyword"`
	SelectedDomain string               `json:"selected_domain"`
	Locale         Locale               `json:"locale"`
	Rank           *int                 `json:"rank"`
	RankLabel      string               `json:"rank_label"`
	RankDomain     *string              `json:"rank_domain"`
	SearchVolume   int                  `json:"search_volume"`
	Competition    string               `json:"competition"`
	Competitors    []CompetitorSnapshot `json:"competitors,omitempty"`
	LastPulledAt   time.Time            `json:"last_pulled_at"`
}

// AuditRow records one organic item inspected during matching. Rows are kept
// in memory for the job's lifetime and exported once at FINALIZE.
type AuditRow struct {
	JobID             string
	ClientCode        string
	Locale            Locale
	Keyword           string
	DepthRequested    int
	OrganicCountFound int
	Rank              int
	Domain            string
	NormalizedDomain  string
	URL               string
	Title             string
	Snippet           string
	IsClientMatch     bool
	MatchedDomain     string
}

// CompletionEvent is published once when a job reaches a terminal status.
type CompletionEvent struct {
	JobID          string    `json:"job_id"`
	ClientCode     string    `json:"client_code"`
	SelectedDomain string    `json:"selected_domain"`
	Status         JobStatus `json:"status"`
	TotalKeywords  int       `json:"total_keywords"`
	ErrorCount     int       `json:"error_count"`
	AuditCSVPath   string    `json:"audit_csv_path,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}
