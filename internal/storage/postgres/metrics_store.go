package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/serplens/ranktracker/internal/rank"
)

// MetricsStoreConfig controls the Postgres connection pool used for the
// keyword metrics cache.
type MetricsStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// MetricsStore caches keyword metrics rows in Postgres so repeat jobs can
// skip the provider's bulk metrics tasks for recently pulled keywords.
type MetricsStore struct {
	pool  dbPool
	table string
}

// NewMetricsStore creates a Postgres-backed MetricsStore using the provided config.
func NewMetricsStore(ctx context.Context, cfg MetricsStoreConfig) (*MetricsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "keyword_metrics"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := newPool(ctx, cfg.DSN, cfg.MaxConns, cfg.MinConns, cfg.MaxConnLifetime)
	if err != nil {
		return nil, err
	}
	return &MetricsStore{pool: pool, table: table}, nil
}

// NewMetricsStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMetricsStoreWithPool(pool dbPool, table string) (*MetricsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "keyword_metrics"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MetricsStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *MetricsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Fresh returns cached metrics younger than maxAge for the given keywords,
// keyed by normalized keyword.
func (s *MetricsStore) Fresh(
	ctx context.Context,
	locale rank.Locale,
	keywords []string,
	maxAge time.Duration,
) (map[string]rank.KeywordMetrics, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("metrics store is not configured")
	}
	if len(keywords) == 0 {
		return map[string]rank.KeywordMetrics{}, nil
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		normalized = append(normalized, rank.NormalizeKeyword(kw))
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	query := fmt.Sprintf(`
SELECT keyword, search_volume, competition, pulled_at FROM %s
WHERE locale = $1 AND keyword = ANY($2) AND pulled_at >= $3`, s.table)

	rows, err := s.pool.Query(ctx, query, string(locale), normalized, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query metrics cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]rank.KeywordMetrics)
	for rows.Next() {
		var m rank.KeywordMetrics
		if err := rows.Scan(&m.Keyword, &m.SearchVolume, &m.Competition, &m.PulledAt); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		out[m.Keyword] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics rows: %w", err)
	}
	return out, nil
}

// Put stores or refreshes metrics rows for the locale.
func (s *MetricsStore) Put(ctx context.Context, locale rank.Locale, metrics []rank.KeywordMetrics) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("metrics store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (locale, keyword, search_volume, competition, pulled_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (locale, keyword) DO UPDATE SET
	search_volume = EXCLUDED.search_volume,
	competition = EXCLUDED.competition,
	pulled_at = EXCLUDED.pulled_at`, s.table)

	for _, m := range metrics {
		args := []any{
			string(locale),
			rank.NormalizeKeyword(m.Keyword),
			m.SearchVolume,
			m.Competition,
			m.PulledAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert metrics row %q: %w", m.Keyword, err)
		}
	}
	return nil
}
