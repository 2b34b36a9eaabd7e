package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/serplens/ranktracker/internal/rank"
)

func TestUpsertBatchWritesNormalizedRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock, "keyword_records")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rank3 := 3
	matched := "shop.acme.com"
	rec := rank.KeywordRecord{
		ClientCode:     "ACME",
		Keyword:        "Acme   Widgets",
		SelectedDomain: "acme.com",
		Locale:         rank.LocaleIN,
		Rank:           &rank3,
		RankLabel:      "3",
		RankDomain:     &matched,
		SearchVolume:   900,
		Competition:    "HIGH",
		Competitors: []rank.CompetitorSnapshot{
			{Brand: "widgetworld.com", Domain: "widgetworld.com", URL: "https://widgetworld.com/w"},
		},
		LastPulledAt: now,
	}

	mock.ExpectExec("INSERT INTO keyword_records").
		WithArgs(
			"ACME",
			"acme widgets",
			"acme.com",
			"IN",
			rec.Rank,
			"3",
			rec.RankDomain,
			900,
			"HIGH",
			[]byte(`[{"brand":"widgetworld.com","domain":"widgetworld.com","url":"https://widgetworld.com/w"}]`),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertBatch(context.Background(), []rank.KeywordRecord{rec}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackedKeywords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewKeywordStoreWithPool(mock, "keyword_records")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT DISTINCT keyword FROM keyword_records").
		WithArgs("ACME", "acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"keyword"}).
			AddRow("acme widgets").
			AddRow("acme reviews"))

	kws, err := store.TrackedKeywords(context.Background(), "ACME", "acme.com")
	require.NoError(t, err)
	require.Equal(t, []string{"acme widgets", "acme reviews"}, kws)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsStorePutAndFresh(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMetricsStoreWithPool(mock, "keyword_metrics")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO keyword_metrics").
		WithArgs("GL", "acme widgets", 1200, "MEDIUM", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Put(context.Background(), rank.LocaleGL, []rank.KeywordMetrics{
		{Keyword: "Acme Widgets", SearchVolume: 1200, Competition: "MEDIUM", PulledAt: now},
	}))

	mock.ExpectQuery("SELECT keyword, search_volume, competition, pulled_at FROM keyword_metrics").
		WithArgs("GL", []string{"acme widgets"}, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"keyword", "search_volume", "competition", "pulled_at"}).
			AddRow("acme widgets", 1200, "MEDIUM", now))

	fresh, err := store.Fresh(context.Background(), rank.LocaleGL, []string{"Acme Widgets"}, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.Equal(t, 1200, fresh["acme widgets"].SearchVolume)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeywordStoreRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewKeywordStoreWithPool(mock, "bad;table")
	require.Error(t, err)
}
