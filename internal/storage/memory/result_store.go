package memory

import (
	"context"
	"sync"
	"time"

	"github.com/serplens/ranktracker/internal/rank"
)

type recordKey struct {
	clientCode     string
	keyword        string
	selectedDomain string
	locale         rank.Locale
}

// ResultStore keeps keyword output records in memory with upsert semantics.
type ResultStore struct {
	mu      sync.RWMutex
	records map[recordKey]rank.KeywordRecord
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[recordKey]rank.KeywordRecord)}
}

// UpsertBatch creates or overwrites each record under its composite key.
func (s *ResultStore) UpsertBatch(_ context.Context, records []rank.KeywordRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		key := recordKey{
			clientCode:     rec.ClientCode,
			keyword:        rank.NormalizeKeyword(rec.Keyword),
			selectedDomain: rec.SelectedDomain,
			locale:         rec.Locale,
		}
		s.records[key] = rec
	}
	return nil
}

// TrackedKeywords returns the distinct keywords recorded for the
// client/domain pair across all locales.
func (s *ResultStore) TrackedKeywords(_ context.Context, clientCode, selectedDomain string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for key, rec := range s.records {
		if key.clientCode != clientCode || key.selectedDomain != selectedDomain {
			continue
		}
		if _, ok := seen[key.keyword]; ok {
			continue
		}
		seen[key.keyword] = struct{}{}
		out = append(out, rec.Keyword)
	}
	return out, nil
}

// Records returns a snapshot of all stored records (test helper).
func (s *ResultStore) Records() []rank.KeywordRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rank.KeywordRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

type cacheKey struct {
	locale  rank.Locale
	keyword string
}

// MetricsCache keeps keyword metrics in memory keyed by locale plus
// normalized keyword.
type MetricsCache struct {
	mu   sync.RWMutex
	rows map[cacheKey]rank.KeywordMetrics
}

// NewMetricsCache constructs a MetricsCache.
func NewMetricsCache() *MetricsCache {
	return &MetricsCache{rows: make(map[cacheKey]rank.KeywordMetrics)}
}

// Fresh returns cached metrics younger than maxAge for the given keywords.
func (c *MetricsCache) Fresh(
	_ context.Context,
	locale rank.Locale,
	keywords []string,
	maxAge time.Duration,
) (map[string]rank.KeywordMetrics, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	out := make(map[string]rank.KeywordMetrics)
	for _, kw := range keywords {
		norm := rank.NormalizeKeyword(kw)
		row, ok := c.rows[cacheKey{locale: locale, keyword: norm}]
		if !ok || row.PulledAt.Before(cutoff) {
			continue
		}
		out[norm] = row
	}
	return out, nil
}

// Put stores or refreshes metrics rows for the locale.
func (c *MetricsCache) Put(_ context.Context, locale rank.Locale, rows []rank.KeywordMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.rows[cacheKey{locale: locale, keyword: rank.NormalizeKeyword(row.Keyword)}] = row
	}
	return nil
}
