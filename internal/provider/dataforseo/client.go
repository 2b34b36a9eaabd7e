// Package dataforseo implements the external task client against a
// DataForSEO-style v3 task API. Work is submitted as asynchronous tasks and
// resolved later by polling; the provider's status codes are decoded here,
// exactly once, into the tagged result types.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serplens/ranktracker/internal/rank"
)

// Provider task status codes.
const (
	codeOK            = 20000
	codeTaskQueued    = 40601
	codeTaskHanded    = 40602
	codeTaskNotFound  = 40400
	codeTaskNotFound2 = 40401
)

// localeParams maps a fetch locale to the provider's location and language
// codes.
type localeParams struct {
	LocationCode int
	LanguageCode string
}

var localeTable = map[rank.Locale]localeParams{
	rank.LocaleIN: {LocationCode: 2356, LanguageCode: "en"},
	rank.LocaleGL: {LocationCode: 2840, LanguageCode: "en"},
}

// Config controls the DataForSEO client.
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	Login    string        `mapstructure:"login"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client talks to the provider over HTTP with basic auth.
type Client struct {
	baseURL  string
	login    string
	password string
	http     *http.Client
	log      *zap.Logger
}

// New constructs a Client.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("provider credentials are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		login:    cfg.Login,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}, nil
}

// taskEnvelope is the provider's standard response wrapper.
type taskEnvelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		ID            string          `json:"id"`
		StatusCode    int             `json:"status_code"`
		StatusMessage string          `json:"status_message"`
		Result        json.RawMessage `json:"result"`
	} `json:"tasks"`
}

// SubmitMetricsTask posts one bulk search-volume task covering all keywords
// and returns the provider task ID.
func (c *Client) SubmitMetricsTask(ctx context.Context, keywords []string, locale rank.Locale) (string, error) {
	params, ok := localeTable[locale]
	if !ok {
		return "", fmt.Errorf("unsupported locale %q", locale)
	}
	payload := []map[string]any{{
		"keywords":      keywords,
		"location_code": params.LocationCode,
		"language_code": params.LanguageCode,
	}}
	env, err := c.post(ctx, "/v3/keywords_data/google_ads/search_volume/task_post", payload)
	if err != nil {
		return "", err
	}
	if len(env.Tasks) == 0 {
		return "", fmt.Errorf("metrics task_post returned no tasks")
	}
	task := env.Tasks[0]
	if task.StatusCode != codeOK && task.StatusCode != codeTaskQueued && task.StatusCode != codeTaskHanded {
		return "", fmt.Errorf("metrics task_post rejected: %d %s", task.StatusCode, task.StatusMessage)
	}
	return task.ID, nil
}

// PollMetricsTask fetches one bulk metrics task and decodes its state.
func (c *Client) PollMetricsTask(ctx context.Context, taskID string) (rank.MetricsTaskResult, error) {
	env, err := c.get(ctx, "/v3/keywords_data/google_ads/search_volume/task_get/"+taskID)
	if err != nil {
		return rank.MetricsTaskResult{}, err
	}
	state, msg := decodeTaskState(env, taskID)
	if state != rank.TaskCompleted {
		return rank.MetricsTaskResult{State: state, Err: msg}, nil
	}

	var rows []struct {
		Keyword      string  `json:"keyword"`
		SearchVolume *int    `json:"search_volume"`
		Competition  *string `json:"competition"`
	}
	if err := json.Unmarshal(env.Tasks[0].Result, &rows); err != nil {
		return rank.MetricsTaskResult{}, fmt.Errorf("decode metrics result: %w", err)
	}
	now := time.Now().UTC()
	out := make([]rank.KeywordMetrics, 0, len(rows))
	for _, row := range rows {
		m := rank.KeywordMetrics{
			Keyword:     row.Keyword,
			Competition: rank.CompetitionUnknown,
			PulledAt:    now,
		}
		if row.SearchVolume != nil {
			m.SearchVolume = *row.SearchVolume
		}
		if row.Competition != nil && *row.Competition != "" {
			m.Competition = *row.Competition
		}
		out = append(out, m)
	}
	return rank.MetricsTaskResult{State: rank.TaskCompleted, Rows: out}, nil
}

// SubmitSerpTasks posts one organic SERP task per keyword and returns the
// task IDs order-aligned with the input keywords.
func (c *Client) SubmitSerpTasks(ctx context.Context, keywords []string, locale rank.Locale, depth int) ([]string, error) {
	params, ok := localeTable[locale]
	if !ok {
		return nil, fmt.Errorf("unsupported locale %q", locale)
	}
	payload := make([]map[string]any, 0, len(keywords))
	for _, kw := range keywords {
		payload = append(payload, map[string]any{
			"keyword":       kw,
			"location_code": params.LocationCode,
			"language_code": params.LanguageCode,
			"depth":         depth,
		})
	}
	env, err := c.post(ctx, "/v3/serp/google/organic/task_post", payload)
	if err != nil {
		return nil, err
	}
	if len(env.Tasks) != len(keywords) {
		return nil, fmt.Errorf("serp task_post returned %d tasks for %d keywords", len(env.Tasks), len(keywords))
	}
	ids := make([]string, len(env.Tasks))
	for i, task := range env.Tasks {
		if task.StatusCode != codeOK && task.StatusCode != codeTaskQueued && task.StatusCode != codeTaskHanded {
			return nil, fmt.Errorf("serp task_post rejected keyword %d: %d %s", i, task.StatusCode, task.StatusMessage)
		}
		ids[i] = task.ID
	}
	return ids, nil
}

// PollSerpTask fetches one SERP task and decodes its state and pages.
func (c *Client) PollSerpTask(ctx context.Context, taskID string) (rank.SerpTaskResult, error) {
	env, err := c.get(ctx, "/v3/serp/google/organic/task_get/advanced/"+taskID)
	if err != nil {
		return rank.SerpTaskResult{}, err
	}
	state, msg := decodeTaskState(env, taskID)
	if state != rank.TaskCompleted {
		return rank.SerpTaskResult{State: state, Err: msg}, nil
	}

	var pages []struct {
		Items []struct {
			Type        string `json:"type"`
			RankGroup   int    `json:"rank_group"`
			Domain      string `json:"domain"`
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"items"`
	}
	if err := json.Unmarshal(env.Tasks[0].Result, &pages); err != nil {
		return rank.SerpTaskResult{}, fmt.Errorf("decode serp result: %w", err)
	}
	out := make([]rank.SerpPage, 0, len(pages))
	for _, page := range pages {
		var items []rank.OrganicItem
		for _, item := range page.Items {
			// Paid, featured and other non-organic blocks never count
			// toward rank.
			if item.Type != "organic" {
				continue
			}
			items = append(items, rank.OrganicItem{
				Rank:    item.RankGroup,
				Domain:  item.Domain,
				URL:     item.URL,
				Title:   item.Title,
				Snippet: item.Description,
				Type:    item.Type,
			})
		}
		out = append(out, rank.SerpPage{Items: items})
	}
	return rank.SerpTaskResult{State: rank.TaskCompleted, Pages: out}, nil
}

// decodeTaskState maps the provider's status codes onto the task state enum.
func decodeTaskState(env *taskEnvelope, taskID string) (rank.TaskState, string) {
	if len(env.Tasks) == 0 {
		return rank.TaskNotFound, fmt.Sprintf("task %s missing from response", taskID)
	}
	task := env.Tasks[0]
	switch task.StatusCode {
	case codeOK:
		if len(task.Result) == 0 || string(task.Result) == "null" {
			// The provider occasionally reports OK before results land.
			return rank.TaskQueued, ""
		}
		return rank.TaskCompleted, ""
	case codeTaskQueued, codeTaskHanded:
		return rank.TaskQueued, ""
	case codeTaskNotFound, codeTaskNotFound2:
		return rank.TaskNotFound, task.StatusMessage
	default:
		return rank.TaskError, fmt.Sprintf("%d %s", task.StatusCode, task.StatusMessage)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (*taskEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (*taskEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*taskEnvelope, error) {
	req.SetBasicAuth(c.login, c.password)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.Warn("failed to close provider response body", zap.Error(closeErr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(snippet))
	}
	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if env.StatusCode != codeOK {
		return nil, fmt.Errorf("provider error: %d %s", env.StatusCode, env.StatusMessage)
	}
	return &env, nil
}
