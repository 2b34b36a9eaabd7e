// Package worker drives one rank-tracking job through its stage machine:
// PREPARE, metrics per locale, SERP per locale, FINALIZE. One Worker run
// owns one job from claim to terminal status.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/serplens/ranktracker/internal/audit"
	"github.com/serplens/ranktracker/internal/metrics"
	"github.com/serplens/ranktracker/internal/poller"
	"github.com/serplens/ranktracker/internal/rank"
)

// errCancelled unwinds the stage pipeline when the job's persisted status was
// externally set to CANCELLED. The worker stops without further writes.
var errCancelled = errors.New("job cancelled")

// Progress milestones. PREPARE contributes 5 points, each metrics locale 5,
// each SERP locale 40 (pro-rated per chunk), FINALIZE closes at 100.
const (
	progressPrepare   = 5
	progressMetrics   = 5
	progressSerpSpan  = 40
	progressSerpStart = progressPrepare + 2*progressMetrics
)

// JobUpdater is the slice of the job manager the worker needs.
type JobUpdater interface {
	GetJob(ctx context.Context, jobID string) (rank.Job, error)
	UpdateJob(ctx context.Context, jobID string, upd rank.JobUpdate) (rank.Job, error)
}

// Config controls a Worker.
type Config struct {
	// SerpDepth is the number of organic results requested per keyword.
	SerpDepth int `mapstructure:"serp_depth"`
	// ChunkSize is the number of keywords per SERP submit+poll cycle.
	ChunkSize int `mapstructure:"chunk_size"`
	// MetricsBatchSize is the number of keywords per bulk metrics task.
	MetricsBatchSize int `mapstructure:"metrics_batch_size"`
	// MetricsMaxAge is the freshness window for cached metrics.
	MetricsMaxAge time.Duration `mapstructure:"metrics_max_age"`
	// CompetitorLimit caps competitor snapshots per output record.
	CompetitorLimit int `mapstructure:"competitor_limit"`
	// HeartbeatInterval is the cadence of the liveness counter.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// CompletionTopic, when set, receives one event per terminal job.
	CompletionTopic string `mapstructure:"completion_topic"`
	// Poll configures the bounded-concurrency polling protocol.
	Poll poller.Config `mapstructure:"poll"`
}

func (c *Config) applyDefaults() {
	if c.SerpDepth <= 0 {
		c.SerpDepth = 50
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.MetricsBatchSize <= 0 {
		c.MetricsBatchSize = 700
	}
	if c.MetricsMaxAge <= 0 {
		c.MetricsMaxAge = 30 * 24 * time.Hour
	}
	if c.CompetitorLimit <= 0 {
		c.CompetitorLimit = 10
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
}

// Deps are the collaborators a Worker calls into.
type Deps struct {
	Jobs      JobUpdater
	Tasks     rank.TaskClient
	Registry  rank.ClientRegistry
	Results   rank.ResultStore
	Cache     rank.MetricsCache
	Audit     *audit.Recorder
	Publisher rank.Publisher
	Clock     rank.Clock
	Logger    *zap.Logger
}

// Worker orchestrates a single job per Run call.
type Worker struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New constructs a Worker.
func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Jobs == nil || deps.Tasks == nil || deps.Registry == nil ||
		deps.Results == nil || deps.Cache == nil || deps.Audit == nil || deps.Clock == nil {
		return nil, fmt.Errorf("missing worker dependency")
	}
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	metrics.Init()
	if cfg.Poll.OnRound == nil {
		cfg.Poll.OnRound = metrics.ObservePollRound
	}
	return &Worker{cfg: cfg, deps: deps, log: deps.Logger}, nil
}

// runState is the per-job mutable context threaded through the stages. No
// stage reads process-global state.
type runState struct {
	job      rank.Job
	keywords []string
	domains  rank.DomainSet
	// metrics holds resolved keyword metrics keyed locale then normalized
	// keyword.
	metrics map[rank.Locale]map[string]rank.KeywordMetrics
	// progress never decreases while the job is RUNNING.
	progress int

	serpStart     time.Time
	serpProcessed int
}

// Run drives the job to a terminal status. It is intended to be spawned on
// its own goroutine; all failures are handled internally.
func (w *Worker) Run(ctx context.Context, jobID string) {
	log := w.log.With(zap.String("job_id", jobID))

	job, err := w.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		log.Error("failed to load job", zap.Error(err))
		return
	}
	if job.Status.IsTerminal() {
		log.Warn("job already terminal, nothing to do", zap.String("status", string(job.Status)))
		return
	}

	running := rank.JobStatusRunning
	stage := rank.StagePrepare
	now := w.deps.Clock.Now().UTC()
	job, err = w.deps.Jobs.UpdateJob(ctx, jobID, rank.JobUpdate{
		Status:    &running,
		Stage:     &stage,
		StartedAt: &now,
	})
	if err != nil {
		log.Error("failed to claim job", zap.Error(err))
		return
	}
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	// The heartbeat runs for exactly as long as the stage pipeline. The
	// deferred stop covers completion, cancellation and panic alike.
	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go w.heartbeat(hbCtx, &hbWG, jobID, job.Heartbeat)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			w.fail(jobID, fmt.Sprintf("fatal: %v", r))
		}
	}()

	st := &runState{
		job:     job,
		metrics: make(map[rank.Locale]map[string]rank.KeywordMetrics),
	}
	if err := w.runStages(ctx, st); err != nil {
		if errors.Is(err, errCancelled) {
			log.Info("job cancelled, stopping without further writes")
			w.deps.Audit.Discard(jobID)
			metrics.ObserveJob(string(rank.JobStatusCancelled))
			return
		}
		log.Error("job failed", zap.Error(err))
		w.fail(jobID, err.Error())
		return
	}
	log.Info("job finished",
		zap.String("status", string(st.job.Status)),
		zap.Int("total_keywords", st.job.TotalKeywords),
		zap.Int("errors", len(st.job.Errors)),
	)
}

func (w *Worker) runStages(ctx context.Context, st *runState) error {
	done, err := w.prepare(ctx, st)
	if err != nil || done {
		return err
	}
	for _, locale := range rank.Locales() {
		if err := w.checkCancelled(ctx, st); err != nil {
			return err
		}
		w.metricsStage(ctx, st, locale)
	}
	for _, locale := range rank.Locales() {
		if err := w.serpStage(ctx, st, locale); err != nil {
			return err
		}
	}
	if err := w.checkCancelled(ctx, st); err != nil {
		return err
	}
	return w.finalize(ctx, st)
}

// prepare computes the keyword set (approved union historical) and the owned
// domain set. An empty keyword set completes the job immediately.
func (w *Worker) prepare(ctx context.Context, st *runState) (bool, error) {
	approved, err := w.deps.Registry.ApprovedKeywords(ctx, st.job.ClientCode)
	if err != nil {
		return false, fmt.Errorf("load approved keywords: %w", err)
	}
	tracked, err := w.deps.Results.TrackedKeywords(ctx, st.job.ClientCode, st.job.SelectedDomain)
	if err != nil {
		return false, fmt.Errorf("load tracked keywords: %w", err)
	}

	seen := make(map[string]struct{})
	for _, kw := range append(append([]string(nil), approved...), tracked...) {
		norm := rank.NormalizeKeyword(kw)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		st.keywords = append(st.keywords, kw)
	}

	aliases, err := w.deps.Registry.ClientDomains(ctx, st.job.ClientCode)
	if err != nil {
		return false, fmt.Errorf("load client domains: %w", err)
	}
	st.domains = rank.NewDomainSet(append(aliases, st.job.SelectedDomain)...)

	if len(st.keywords) == 0 {
		completed := rank.JobStatusCompleted
		stage := rank.StageDone
		progress := 100
		now := w.deps.Clock.Now().UTC()
		job, err := w.deps.Jobs.UpdateJob(ctx, st.job.ID, rank.JobUpdate{
			Status:          &completed,
			Stage:           &stage,
			ProgressPercent: &progress,
			FinishedAt:      &now,
		})
		if err != nil {
			return false, fmt.Errorf("complete empty job: %w", err)
		}
		st.job = job
		w.publishCompletion(ctx, st.job)
		return true, nil
	}

	total := len(st.keywords)
	if err := w.advance(ctx, st, rank.JobUpdate{TotalKeywords: &total}, progressPrepare); err != nil {
		return false, err
	}
	return false, nil
}

// metricsStage resolves search volume and competition for one locale.
// Failures here are absorbed: SERP proceeds with default values for any
// keyword left unresolved.
func (w *Worker) metricsStage(ctx context.Context, st *runState, locale rank.Locale) {
	stage := rank.StageMetricsIN
	doneProgress := progressPrepare + progressMetrics
	if locale == rank.LocaleGL {
		stage = rank.StageMetricsGL
		doneProgress += progressMetrics
	}
	log := w.log.With(zap.String("job_id", st.job.ID), zap.String("stage", string(stage)))

	total := len(st.keywords)
	counters := rank.MetricsCounters{Total: total}
	if err := w.advance(ctx, st, rank.JobUpdate{Stage: &stage}, st.progress); err != nil {
		log.Warn("failed to persist stage transition", zap.Error(err))
	}

	var failures []string
	resolved := make(map[string]rank.KeywordMetrics)
	fresh, err := w.deps.Cache.Fresh(ctx, locale, st.keywords, w.cfg.MetricsMaxAge)
	if err != nil {
		failures = append(failures, fmt.Sprintf("%s: metrics cache read failed: %v", stage, err))
	} else {
		for kw, m := range fresh {
			resolved[kw] = m
		}
	}

	var missing []string
	for _, kw := range st.keywords {
		if _, ok := resolved[rank.NormalizeKeyword(kw)]; !ok {
			missing = append(missing, kw)
		}
	}

	for start := 0; start < len(missing); start += w.cfg.MetricsBatchSize {
		end := start + w.cfg.MetricsBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		rows, err := w.resolveMetricsBatch(ctx, batch, locale)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", stage, err))
			continue
		}
		for _, row := range rows {
			resolved[rank.NormalizeKeyword(row.Keyword)] = row
		}
		if err := w.deps.Cache.Put(ctx, locale, rows); err != nil {
			log.Warn("failed to refresh metrics cache", zap.Error(err))
		}
	}

	for _, kw := range st.keywords {
		if _, ok := resolved[rank.NormalizeKeyword(kw)]; ok {
			counters.Done++
		}
	}
	counters.Errors = total - counters.Done
	st.metrics[locale] = resolved

	upd := rank.JobUpdate{AppendErrors: failures}
	if locale == rank.LocaleIN {
		upd.MetricsIN = &counters
	} else {
		upd.MetricsGL = &counters
	}
	if err := w.advance(ctx, st, upd, doneProgress); err != nil {
		log.Warn("failed to persist metrics counters", zap.Error(err))
	}
}

// resolveMetricsBatch submits one bulk metrics task and polls it to
// completion.
func (w *Worker) resolveMetricsBatch(ctx context.Context, batch []string, locale rank.Locale) ([]rank.KeywordMetrics, error) {
	taskID, err := w.deps.Tasks.SubmitMetricsTask(ctx, batch, locale)
	if err != nil {
		return nil, fmt.Errorf("metrics submit failed for %d keywords: %w", len(batch), err)
	}

	var mu sync.Mutex
	var last rank.MetricsTaskResult
	res := poller.Run(ctx, w.cfg.Poll, []string{taskID}, func(ctx context.Context, id string) poller.Status {
		r, err := w.deps.Tasks.PollMetricsTask(ctx, id)
		if err != nil {
			return poller.StatusPending
		}
		mu.Lock()
		last = r
		mu.Unlock()
		switch r.State {
		case rank.TaskCompleted:
			return poller.StatusDone
		case rank.TaskQueued:
			return poller.StatusPending
		default:
			return poller.StatusFailed
		}
	})

	switch {
	case len(res.Done) == 1:
		metrics.ObserveProviderTask("metrics", "completed")
		return last.Rows, nil
	case len(res.Failed) == 1:
		metrics.ObserveProviderTask("metrics", "failed")
		return nil, fmt.Errorf("metrics task %s failed: %s", taskID, last.Err)
	default:
		metrics.ObserveProviderTask("metrics", "timeout")
		return nil, fmt.Errorf("metrics task %s timed out", taskID)
	}
}

// serpStage fetches and matches SERPs for one locale in fixed-size chunks.
// A chunk's failure marks only its own keywords errored.
func (w *Worker) serpStage(ctx context.Context, st *runState, locale rank.Locale) error {
	stage := rank.StageSerpIN
	baseProgress := progressSerpStart
	if locale == rank.LocaleGL {
		stage = rank.StageSerpGL
		baseProgress += progressSerpSpan
	}
	log := w.log.With(zap.String("job_id", st.job.ID), zap.String("stage", string(stage)))

	total := len(st.keywords)
	counters := rank.SerpCounters{Total: total}
	if st.serpStart.IsZero() {
		st.serpStart = w.deps.Clock.Now()
	}
	if err := w.advance(ctx, st, w.serpUpdate(locale, counters, rank.JobUpdate{Stage: &stage}), st.progress); err != nil {
		log.Warn("failed to persist stage transition", zap.Error(err))
	}

	for start := 0; start < total; start += w.cfg.ChunkSize {
		if err := w.checkCancelled(ctx, st); err != nil {
			return err
		}
		end := start + w.cfg.ChunkSize
		if end > total {
			end = total
		}
		chunk := st.keywords[start:end]
		chunkNo := start/w.cfg.ChunkSize + 1

		records, failure := w.processChunk(ctx, st, locale, chunk, &counters)
		var appendErrs []string
		if failure != "" {
			appendErrs = append(appendErrs, fmt.Sprintf("%s chunk %d: %s", stage, chunkNo, failure))
		}
		if len(records) > 0 {
			if err := w.deps.Results.UpsertBatch(ctx, records); err != nil {
				appendErrs = append(appendErrs, fmt.Sprintf("%s chunk %d: persist failed: %v", stage, chunkNo, err))
				log.Error("chunk upsert failed", zap.Int("chunk", chunkNo), zap.Error(err))
			}
		}

		st.serpProcessed += len(chunk)
		progress := baseProgress + progressSerpSpan*(start+len(chunk))/total
		upd := w.serpUpdate(locale, counters, rank.JobUpdate{AppendErrors: appendErrs})
		upd.ETASeconds = w.estimateETA(st)
		if err := w.advance(ctx, st, upd, progress); err != nil {
			log.Warn("failed to persist chunk progress", zap.Error(err))
		}
	}
	return nil
}

func (w *Worker) serpUpdate(locale rank.Locale, counters rank.SerpCounters, upd rank.JobUpdate) rank.JobUpdate {
	c := counters
	if locale == rank.LocaleIN {
		upd.SerpIN = &c
	} else {
		upd.SerpGL = &c
	}
	return upd
}

// processChunk submits one task per keyword, polls them to resolution, and
// builds the chunk's output records and audit rows. A submit failure aborts
// only this chunk; the returned failure string is appended to the job's
// errors.
func (w *Worker) processChunk(
	ctx context.Context,
	st *runState,
	locale rank.Locale,
	chunk []string,
	counters *rank.SerpCounters,
) ([]rank.KeywordRecord, string) {
	taskIDs, err := w.deps.Tasks.SubmitSerpTasks(ctx, chunk, locale, w.cfg.SerpDepth)
	if err != nil {
		counters.Errors += len(chunk)
		for range chunk {
			metrics.ObserveSerpKeyword(string(locale), "error")
		}
		return nil, fmt.Sprintf("submit failed: %v", err)
	}

	var mu sync.Mutex
	results := make(map[string]rank.SerpTaskResult, len(taskIDs))
	pollRes := poller.Run(ctx, w.cfg.Poll, taskIDs, func(ctx context.Context, id string) poller.Status {
		r, err := w.deps.Tasks.PollSerpTask(ctx, id)
		if err != nil {
			return poller.StatusPending
		}
		mu.Lock()
		results[id] = r
		mu.Unlock()
		switch r.State {
		case rank.TaskCompleted:
			return poller.StatusDone
		case rank.TaskQueued:
			return poller.StatusPending
		default:
			return poller.StatusFailed
		}
	})

	resolvedState := make(map[string]poller.Status, len(taskIDs))
	for _, id := range pollRes.Done {
		resolvedState[id] = poller.StatusDone
	}
	for _, id := range pollRes.Failed {
		resolvedState[id] = poller.StatusFailed
	}

	now := w.deps.Clock.Now().UTC()
	records := make([]rank.KeywordRecord, 0, len(chunk))
	for i, kw := range chunk {
		taskID := taskIDs[i]
		status, resolved := resolvedState[taskID]
		switch {
		case resolved && status == poller.StatusDone:
			metrics.ObserveProviderTask("serp", "completed")
			metrics.ObserveSerpKeyword(string(locale), "done")
			records = append(records, w.buildRecord(st, locale, kw, results[taskID], counters, now))
		case resolved && status == poller.StatusFailed:
			metrics.ObserveProviderTask("serp", "failed")
			metrics.ObserveSerpKeyword(string(locale), "error")
			counters.Errors++
			records = append(records, w.errorRecord(st, locale, kw, rank.ErrorRankLabel(results[taskID].State), now))
		default:
			// Task never resolved within the round budget.
			metrics.ObserveProviderTask("serp", "timeout")
			metrics.ObserveSerpKeyword(string(locale), "timeout")
			counters.Errors++
			records = append(records, w.errorRecord(st, locale, kw, rank.ErrorRankLabel(rank.TaskQueued), now))
		}
	}
	return records, ""
}

// buildRecord matches one completed SERP against the owned domain set and
// assembles the keyword's output record plus its audit rows.
func (w *Worker) buildRecord(
	st *runState,
	locale rank.Locale,
	keyword string,
	result rank.SerpTaskResult,
	counters *rank.SerpCounters,
	now time.Time,
) rank.KeywordRecord {
	items := rank.MergeOrganic(result.Pages)
	match := rank.MatchRanked(items, st.domains, w.cfg.SerpDepth)

	counters.Done++
	if len(items) == 0 {
		counters.Empty++
	}

	rows := make([]rank.AuditRow, 0, len(items))
	for _, item := range items {
		owned, isMatch := st.domains.Match(item.Domain)
		rows = append(rows, rank.AuditRow{
			JobID:             st.job.ID,
			ClientCode:        st.job.ClientCode,
			Locale:            locale,
			Keyword:           keyword,
			DepthRequested:    w.cfg.SerpDepth,
			OrganicCountFound: len(items),
			Rank:              item.Rank,
			Domain:            item.Domain,
			NormalizedDomain:  rank.NormalizeDomain(item.Domain),
			URL:               item.URL,
			Title:             item.Title,
			Snippet:           item.Snippet,
			IsClientMatch:     isMatch,
			MatchedDomain:     owned,
		})
	}
	w.deps.Audit.Record(st.job.ID, rows...)

	rec := w.baseRecord(st, locale, keyword, now)
	rec.RankLabel = rank.RankLabel(match, w.cfg.SerpDepth)
	if match.Outcome == rank.OutcomeRanked {
		r := match.Rank
		d := match.MatchedDomain
		rec.Rank = &r
		rec.RankDomain = &d
	}
	for _, item := range items {
		if len(rec.Competitors) >= w.cfg.CompetitorLimit {
			break
		}
		if _, isMatch := st.domains.Match(item.Domain); isMatch {
			continue
		}
		rec.Competitors = append(rec.Competitors, rank.CompetitorSnapshot{
			Brand:  rank.NormalizeDomain(item.Domain),
			Domain: item.Domain,
			URL:    item.URL,
		})
	}
	return rec
}

func (w *Worker) errorRecord(st *runState, locale rank.Locale, keyword, label string, now time.Time) rank.KeywordRecord {
	rec := w.baseRecord(st, locale, keyword, now)
	rec.RankLabel = label
	return rec
}

// baseRecord carries the identity and metrics enrichment shared by every
// output record. Unresolved metrics fall back to volume 0 and an unknown
// competition value.
func (w *Worker) baseRecord(st *runState, locale rank.Locale, keyword string, now time.Time) rank.KeywordRecord {
	rec := rank.KeywordRecord{
		ClientCode:     st.job.ClientCode,
		Keyword:        keyword,
		SelectedDomain: st.job.SelectedDomain,
		Locale:         locale,
		Competition:    rank.CompetitionUnknown,
		LastPulledAt:   now,
	}
	if m, ok := st.metrics[locale][rank.NormalizeKeyword(keyword)]; ok {
		rec.SearchVolume = m.SearchVolume
		rec.Competition = m.Competition
	}
	return rec
}

// finalize exports the audit artifact and marks the job COMPLETED. A job
// that accumulated per-item errors still completes; "completed with errors"
// and "failed" stay distinct.
func (w *Worker) finalize(ctx context.Context, st *runState) error {
	stage := rank.StageFinalize
	if err := w.advance(ctx, st, rank.JobUpdate{Stage: &stage}, st.progress); err != nil {
		return err
	}

	upd := rank.JobUpdate{}
	path, err := w.deps.Audit.Export(ctx, st.job.ID)
	if err != nil {
		upd.AppendErrors = append(upd.AppendErrors, fmt.Sprintf("audit export failed: %v", err))
		w.log.Error("audit export failed", zap.String("job_id", st.job.ID), zap.Error(err))
	} else if path != "" {
		upd.AuditCSVPath = &path
	}

	completed := rank.JobStatusCompleted
	done := rank.StageDone
	progress := 100
	now := w.deps.Clock.Now().UTC()
	upd.Status = &completed
	upd.Stage = &done
	upd.ProgressPercent = &progress
	upd.FinishedAt = &now
	job, err := w.deps.Jobs.UpdateJob(ctx, st.job.ID, upd)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	st.job = job
	w.publishCompletion(ctx, st.job)
	return nil
}

// fail marks the job FAILED. It uses a fresh context so the terminal write
// still lands when the run context is gone.
func (w *Worker) fail(jobID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failed := rank.JobStatusFailed
	now := w.deps.Clock.Now().UTC()
	job, err := w.deps.Jobs.UpdateJob(ctx, jobID, rank.JobUpdate{
		Status:       &failed,
		FinishedAt:   &now,
		AppendErrors: []string{msg},
	})
	if err != nil {
		w.log.Error("failed to mark job FAILED", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	w.deps.Audit.Discard(jobID)
	w.publishCompletion(ctx, job)
}

// advance persists the update with the clamped progress value and refreshes
// the in-memory job snapshot.
func (w *Worker) advance(ctx context.Context, st *runState, upd rank.JobUpdate, progress int) error {
	if progress > 100 {
		progress = 100
	}
	if progress > st.progress {
		st.progress = progress
	}
	p := st.progress
	upd.ProgressPercent = &p
	job, err := w.deps.Jobs.UpdateJob(ctx, st.job.ID, upd)
	if err != nil {
		return err
	}
	st.job = job
	return nil
}

// checkCancelled reads the persisted status back. Cancellation is observed
// only here, at stage and chunk boundaries, so cancel latency is bounded by
// one chunk's submit+poll cycle.
func (w *Worker) checkCancelled(ctx context.Context, st *runState) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	job, err := w.deps.Jobs.GetJob(ctx, st.job.ID)
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}
	if job.Status == rank.JobStatusCancelled {
		return errCancelled
	}
	st.job = job
	return nil
}

// heartbeat persists a monotonically increasing liveness counter until its
// context is cancelled.
func (w *Worker) heartbeat(ctx context.Context, wg *sync.WaitGroup, jobID string, last int64) {
	defer wg.Done()
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	hb := last
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb++
			v := hb
			if _, err := w.deps.Jobs.UpdateJob(ctx, jobID, rank.JobUpdate{Heartbeat: &v}); err != nil {
				w.log.Warn("heartbeat write failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}
}

// publishCompletion sends the terminal notification when a topic is
// configured. Publish failures are logged, never fatal.
func (w *Worker) publishCompletion(ctx context.Context, job rank.Job) {
	metrics.ObserveJob(string(job.Status))
	if w.deps.Publisher == nil || w.cfg.CompletionTopic == "" {
		return
	}
	evt := rank.CompletionEvent{
		JobID:          job.ID,
		ClientCode:     job.ClientCode,
		SelectedDomain: job.SelectedDomain,
		Status:         job.Status,
		TotalKeywords:  job.TotalKeywords,
		ErrorCount:     len(job.Errors),
		AuditCSVPath:   job.AuditCSVPath,
	}
	if job.FinishedAt != nil {
		evt.FinishedAt = *job.FinishedAt
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.CompletionTopic, evt); err != nil {
		w.log.Warn("completion publish failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// estimateETA projects remaining SERP time from the observed per-keyword
// pace. Advisory only.
func (w *Worker) estimateETA(st *runState) *int {
	if st.serpProcessed == 0 {
		return nil
	}
	elapsed := w.deps.Clock.Now().Sub(st.serpStart)
	if elapsed <= 0 {
		return nil
	}
	totalUnits := 2 * len(st.keywords)
	remaining := totalUnits - st.serpProcessed
	if remaining < 0 {
		remaining = 0
	}
	eta := int(elapsed.Seconds() / float64(st.serpProcessed) * float64(remaining))
	return &eta
}
