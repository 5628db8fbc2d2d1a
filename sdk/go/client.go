package dayplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal dayplan HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Health is the service readiness report.
type Health struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
	Loading    bool   `json:"loading"`
}

// Score is a [category, similarity] pair.
type Score struct {
	Category   string
	Similarity float64
}

func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Category, s.Similarity})
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("score: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.Category); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &s.Similarity)
}

// ClassifyRequest asks for the category of Text. Nil fields use server defaults.
type ClassifyRequest struct {
	Text             string   `json:"text"`
	TopK             *int     `json:"top_k,omitempty"`
	UnknownThreshold *float64 `json:"unknown_threshold,omitempty"`
}

type ClassifyResult struct {
	Category   string  `json:"category"`
	Scores     []Score `json:"scores"`
	ModelReady bool    `json:"model_ready"`
}

type Category struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Categories describes the taxonomy the service classifies into.
type Categories struct {
	Categories     []Category `json:"categories"`
	EmbeddingModel string     `json:"embedding_model"`
	VectorDim      int        `json:"vector_dim"`
}

type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Priority          string   `json:"priority,omitempty"`
	DueDate           *string  `json:"due_date,omitempty"`
	CategoryName      string   `json:"category_name,omitempty"`
	EstimatedDuration *int     `json:"estimated_duration,omitempty"`
	Duration          *int     `json:"duration,omitempty"`
	PlanNames         []string `json:"plan_names,omitempty"`
}

// Window bounds the planned day. Start and End accept "HH:MM" or minutes.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Date  string `json:"date,omitempty"`
}

type Event struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	StartMinute     int      `json:"start_minute"`
	EndMinute       int      `json:"end_minute"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	TaskID          string   `json:"task_id"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
	PlanNames       []string `json:"plan_names"`
	Logged          bool     `json:"logged"`
	IsCalendarEvent bool     `json:"is_calendar_event"`
}

type Stats struct {
	ScheduledCount       int            `json:"scheduled_count"`
	TotalWorkMinutes     int            `json:"total_work_minutes"`
	TotalRestMinutes     int            `json:"total_rest_minutes"`
	UnscheduledCount     int            `json:"unscheduled_count"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	EndMinute            int            `json:"end_minute"`
	EndTime              string         `json:"end_time"`
}

type Schedule struct {
	Events []Event `json:"events"`
	Stats  Stats   `json:"stats"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// Classify categorizes a text.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error) {
	var resp ClassifyResult
	err := c.do(ctx, http.MethodPost, "classify", req, &resp)
	return resp, err
}

// Categories lists the taxonomy. The service answers 503 until its model is loaded.
func (c *Client) Categories(ctx context.Context) (Categories, error) {
	var resp Categories
	err := c.do(ctx, http.MethodGet, "categories", nil, &resp)
	return resp, err
}

// Schedule plans tasks over window.
func (c *Client) Schedule(ctx context.Context, tasks []Task, window Window) (Schedule, error) {
	body := map[string]any{
		"tasks":  tasks,
		"window": window,
	}
	var resp Schedule
	err := c.do(ctx, http.MethodPost, "schedule", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
