package dataforseo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serplens/ranktracker/internal/rank"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{
		BaseURL:  srv.URL,
		Login:    "login",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestSubmitMetricsTask(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/keywords_data/google_ads/search_volume/task_post", r.URL.Path)
		login, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "login", login)
		require.Equal(t, "secret", pass)

		var payload []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload, 1)
		require.Equal(t, float64(2356), payload[0]["location_code"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"m-1","status_code":40601}]}`))
	})

	id, err := client.SubmitMetricsTask(context.Background(), []string{"acme widgets"}, rank.LocaleIN)
	require.NoError(t, err)
	require.Equal(t, "m-1", id)
}

func TestPollMetricsTaskStates(t *testing.T) {
	t.Parallel()

	responses := map[string]string{
		"q-1": `{"status_code":20000,"tasks":[{"id":"q-1","status_code":40602}]}`,
		"d-1": `{"status_code":20000,"tasks":[{"id":"d-1","status_code":20000,"result":[{"keyword":"acme widgets","search_volume":900,"competition":"HIGH"},{"keyword":"acme reviews","search_volume":null,"competition":null}]}]}`,
		"n-1": `{"status_code":20000,"tasks":[{"id":"n-1","status_code":40400,"status_message":"Task Not Found"}]}`,
		"e-1": `{"status_code":20000,"tasks":[{"id":"e-1","status_code":50000,"status_message":"Internal Error"}]}`,
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v3/keywords_data/google_ads/search_volume/task_get/"):]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responses[id]))
	})

	res, err := client.PollMetricsTask(context.Background(), "q-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskQueued, res.State)

	res, err = client.PollMetricsTask(context.Background(), "d-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskCompleted, res.State)
	require.Len(t, res.Rows, 2)
	require.Equal(t, 900, res.Rows[0].SearchVolume)
	require.Equal(t, "HIGH", res.Rows[0].Competition)
	// Null provider fields fall back to defaults.
	require.Equal(t, 0, res.Rows[1].SearchVolume)
	require.Equal(t, rank.CompetitionUnknown, res.Rows[1].Competition)

	res, err = client.PollMetricsTask(context.Background(), "n-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskNotFound, res.State)

	res, err = client.PollMetricsTask(context.Background(), "e-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskError, res.State)
	require.Contains(t, res.Err, "50000")
}

func TestSubmitSerpTasksAlignsIDs(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/serp/google/organic/task_post", r.URL.Path)
		var payload []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload, 2)
		require.Equal(t, float64(2840), payload[0]["location_code"])
		require.Equal(t, float64(50), payload[0]["depth"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"s-1","status_code":40601},{"id":"s-2","status_code":40601}]}`))
	})

	ids, err := client.SubmitSerpTasks(context.Background(), []string{"a", "b"}, rank.LocaleGL, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"s-1", "s-2"}, ids)
}

func TestPollSerpTaskKeepsOnlyOrganicItems(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/serp/google/organic/task_get/advanced/s-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"s-1","status_code":20000,"result":[{"items":[
			{"type":"paid","rank_group":1,"domain":"ads.example.com"},
			{"type":"organic","rank_group":1,"domain":"widgetworld.com","url":"https://widgetworld.com/w","title":"Widgets","description":"All widgets"},
			{"type":"organic","rank_group":3,"domain":"acme.com","url":"https://acme.com/widgets","title":"Acme Widgets","description":"Buy"}
		]}]}]}`))
	})

	res, err := client.PollSerpTask(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskCompleted, res.State)
	require.Len(t, res.Pages, 1)
	require.Len(t, res.Pages[0].Items, 2)
	require.Equal(t, "widgetworld.com", res.Pages[0].Items[0].Domain)
	require.Equal(t, 3, res.Pages[0].Items[1].Rank)
	require.Equal(t, "All widgets", res.Pages[0].Items[0].Snippet)
}

func TestTransportErrorsSurfaceAsErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.PollSerpTask(context.Background(), "s-1")
	require.Error(t, err)

	_, err = client.PollMetricsTask(context.Background(), "m-1")
	require.Error(t, err)
}

func TestOKWithoutResultIsStillQueued(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status_code":20000,"tasks":[{"id":"s-1","status_code":20000,"result":null}]}`))
	})

	res, err := client.PollSerpTask(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, rank.TaskQueued, res.State)
}
