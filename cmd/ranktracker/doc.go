// Package main hosts the rank tracking service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and job management endpoints. Submissions are validated,
//     deduplicated against live jobs for the same (client_code, selected_domain) pair, and persisted via the JobStore
//     before a background worker is launched.
//   - Worker pipeline: each job walks a fixed stage ladder (prepare, bulk metrics per locale, SERP retrieval per
//     locale, finalize). SERP keywords are processed in bounded chunks; provider tasks are resolved by a
//     bounded-concurrency poller with a fixed round budget. Context cancellation is observed at stage and chunk
//     boundaries.
//   - Persistence & fanout: ranked keyword records are upserted into Postgres (or kept in memory for development),
//     keyword metrics are cached with a staleness window, audit CSVs land in the configured artifact store
//     (local/GCS), and a compact Pub/Sub notification is published when a project is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler. The service holds job state in the
//     configured JobStore only, so the file backend survives restarts.
//
// Operational notes:
//   - Concurrency model: one goroutine per running job plus a shared poll budget per task batch (50 pollers, 300
//     rounds, 2s interval by default). Shutdown is coordinated via context cancellation propagated from main into
//     running workers; a cancelled worker stops between chunks without marking the job FAILED.
//   - Heartbeats: each running job persists a monotonically increasing heartbeat counter so stalled jobs are
//     observable from the status endpoint.
//   - Observability: zap logs carry job IDs and stages at key transitions; Prometheus counters track jobs, provider
//     tasks, and HTTP activity. Tracing is not yet wired in.
//
// Quick checklist:
//   - Configure env vars: RANKTRACKER_SERVER_PORT, RANKTRACKER_PROVIDER_LOGIN/PASSWORD, RANKTRACKER_DB_DSN when
//     Postgres persistence is required, RANKTRACKER_ARTIFACTS_BACKEND, and RANKTRACKER_PUBSUB_PROJECT_ID for
//     completion events.
//   - Run locally: go run ./cmd/ranktracker -config config.yaml (or rely solely on env overrides).
//   - The process reacts to SIGTERM for graceful drain; in-flight jobs observe cancellation at chunk boundaries.
package main
