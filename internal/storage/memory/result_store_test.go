package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serplens/ranktracker/internal/rank"
)

func TestResultStoreUpsert(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	rank3 := 3
	require.NoError(t, store.UpsertBatch(context.Background(), []rank.KeywordRecord{
		{ClientCode: "ACME", Keyword: "acme widgets", SelectedDomain: "acme.com", Locale: rank.LocaleIN, Rank: &rank3, RankLabel: "3"},
	}))

	// Upserting the same key overwrites the record.
	require.NoError(t, store.UpsertBatch(context.Background(), []rank.KeywordRecord{
		{ClientCode: "ACME", Keyword: "Acme   Widgets", SelectedDomain: "acme.com", Locale: rank.LocaleIN, RankLabel: ">50"},
	}))

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, ">50", records[0].RankLabel)
}

func TestResultStoreTrackedKeywords(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	require.NoError(t, store.UpsertBatch(context.Background(), []rank.KeywordRecord{
		{ClientCode: "ACME", Keyword: "acme widgets", SelectedDomain: "acme.com", Locale: rank.LocaleIN},
		{ClientCode: "ACME", Keyword: "acme widgets", SelectedDomain: "acme.com", Locale: rank.LocaleGL},
		{ClientCode: "ACME", Keyword: "acme reviews", SelectedDomain: "acme.com", Locale: rank.LocaleIN},
		{ClientCode: "ACME", Keyword: "other", SelectedDomain: "other.com", Locale: rank.LocaleIN},
		{ClientCode: "ZETA", Keyword: "zeta", SelectedDomain: "acme.com", Locale: rank.LocaleIN},
	}))

	kws, err := store.TrackedKeywords(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acme widgets", "acme reviews"}, kws)
}

func TestMetricsCacheFreshness(t *testing.T) {
	t.Parallel()

	cache := NewMetricsCache()
	now := time.Now().UTC()
	require.NoError(t, cache.Put(context.Background(), rank.LocaleIN, []rank.KeywordMetrics{
		{Keyword: "acme widgets", SearchVolume: 900, Competition: "HIGH", PulledAt: now},
		{Keyword: "acme reviews", SearchVolume: 100, Competition: "LOW", PulledAt: now.Add(-40 * 24 * time.Hour)},
	}))

	fresh, err := cache.Fresh(
		context.Background(),
		rank.LocaleIN,
		[]string{"Acme Widgets", "acme reviews", "unseen"},
		30*24*time.Hour,
	)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.Equal(t, 900, fresh["acme widgets"].SearchVolume)

	// Other locales do not share cache entries.
	fresh, err = cache.Fresh(context.Background(), rank.LocaleGL, []string{"acme widgets"}, 30*24*time.Hour)
	require.NoError(t, err)
	require.Empty(t, fresh)
}
