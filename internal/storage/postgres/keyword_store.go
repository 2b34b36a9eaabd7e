// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serplens/ranktracker/internal/rank"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// KeywordStoreConfig controls the Postgres connection pool used for keyword
// output rows.
type KeywordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// KeywordStore upserts keyword output rows into Postgres. One row exists per
// (client_code, keyword, selected_domain, locale); re-running a job
// overwrites the row in place.
type KeywordStore struct {
	pool  dbPool
	table string
}

// NewKeywordStore creates a Postgres-backed KeywordStore using the provided config.
func NewKeywordStore(ctx context.Context, cfg KeywordStoreConfig) (*KeywordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "keyword_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := newPool(ctx, cfg.DSN, cfg.MaxConns, cfg.MinConns, cfg.MaxConnLifetime)
	if err != nil {
		return nil, err
	}
	return &KeywordStore{pool: pool, table: table}, nil
}

// NewKeywordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewKeywordStoreWithPool(pool dbPool, table string) (*KeywordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "keyword_records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &KeywordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *KeywordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertBatch writes each record, inserting or overwriting on the composite
// key. Keywords are stored in normalized form.
func (s *KeywordStore) UpsertBatch(ctx context.Context, records []rank.KeywordRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("keyword store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	client_code,
	keyword,
	selected_domain,
	locale,
	rank,
	rank_label,
	rank_domain,
	search_volume,
	competition,
	competitors,
	last_pulled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (client_code, keyword, selected_domain, locale) DO UPDATE SET
	rank = EXCLUDED.rank,
	rank_label = EXCLUDED.rank_label,
	rank_domain = EXCLUDED.rank_domain,
	search_volume = EXCLUDED.search_volume,
	competition = EXCLUDED.competition,
	competitors = EXCLUDED.competitors,
	last_pulled_at = EXCLUDED.last_pulled_at`, s.table)

	for _, rec := range records {
		competitorsJSON, err := json.Marshal(normalizeCompetitors(rec.Competitors))
		if err != nil {
			return fmt.Errorf("marshal competitors: %w", err)
		}
		args := []any{
			rec.ClientCode,
			rank.NormalizeKeyword(rec.Keyword),
			rec.SelectedDomain,
			string(rec.Locale),
			rec.Rank,
			rec.RankLabel,
			rec.RankDomain,
			rec.SearchVolume,
			rec.Competition,
			competitorsJSON,
			rec.LastPulledAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert keyword record %q: %w", rec.Keyword, err)
		}
	}
	return nil
}

// TrackedKeywords returns the distinct keywords already recorded for the
// client/domain pair, across both locales.
func (s *KeywordStore) TrackedKeywords(ctx context.Context, clientCode, selectedDomain string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("keyword store is not configured")
	}
	query := fmt.Sprintf(`
SELECT DISTINCT keyword FROM %s
WHERE client_code = $1 AND selected_domain = $2`, s.table)

	rows, err := s.pool.Query(ctx, query, clientCode, selectedDomain)
	if err != nil {
		return nil, fmt.Errorf("query tracked keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("scan tracked keyword: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked keywords: %w", err)
	}
	return keywords, nil
}

func normalizeCompetitors(in []rank.CompetitorSnapshot) []rank.CompetitorSnapshot {
	if len(in) == 0 {
		return []rank.CompetitorSnapshot{}
	}
	return in
}

func newPool(ctx context.Context, dsn string, maxConns, minConns int32, lifetime time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		poolCfg.MinConns = minConns
	}
	if lifetime > 0 {
		poolCfg.MaxConnLifetime = lifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
