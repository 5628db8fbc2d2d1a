package domain

import (
	"encoding/json"
	"fmt"
)

// Priorities understood by the planner.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Uncategorized labels tasks without a category and texts the classifier rejects.
const Uncategorized = "Uncategorized"

// Task is a pending unit of work handed to the planner. It is never mutated.
type Task struct {
	ID                string   `json:"id" yaml:"id"`
	Title             string   `json:"title" yaml:"title"`
	Priority          string   `json:"priority,omitempty" yaml:"priority"`
	DueDate           *string  `json:"due_date,omitempty" yaml:"due_date"`
	CategoryName      string   `json:"category_name,omitempty" yaml:"category_name"`
	EstimatedDuration *int     `json:"estimated_duration,omitempty" yaml:"estimated_duration"`
	Duration          *int     `json:"duration,omitempty" yaml:"duration"`
	PlanNames         []string `json:"plan_names,omitempty" yaml:"plan_names"`
}

// Window is the bounded part of a day available for planning.
// Minutes are offsets from midnight.
type Window struct {
	StartMinute   int    `json:"start_minute" yaml:"start_minute"`
	EndMinute     int    `json:"end_minute" yaml:"end_minute"`
	ReferenceDate string `json:"reference_date" yaml:"reference_date"`
}

type Event struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	StartMinute     int      `json:"start_minute"`
	EndMinute       int      `json:"end_minute"`
	TaskID          string   `json:"task_id"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority" enum:"low,medium,high"`
	PlanNames       []string `json:"plan_names"`
	Logged          bool     `json:"logged"`
	IsCalendarEvent bool     `json:"is_calendar_event"`
}

// Minutes returns the event length.
func (e Event) Minutes() int { return e.EndMinute - e.StartMinute }

type Stats struct {
	ScheduledCount       int            `json:"scheduled_count"`
	TotalWorkMinutes     int            `json:"total_work_minutes"`
	TotalRestMinutes     int            `json:"total_rest_minutes"`
	UnscheduledCount     int            `json:"unscheduled_count"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	EndMinute            int            `json:"end_minute"`
}

// Category is a taxonomy entry with its display color.
type Category struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color"`
}

// Score is one ranked classification candidate.
type Score struct {
	Category   string
	Similarity float64
}

// ClassificationResult is the outcome of classifying a text.
type ClassificationResult struct {
	Category   string  `json:"category"`
	Scores     []Score `json:"scores"`
	ModelReady bool    `json:"model_ready"`
}

// Unclassified is the neutral result returned whenever classification cannot proceed.
func Unclassified(ready bool) ClassificationResult {
	return ClassificationResult{Category: Uncategorized, Scores: []Score{}, ModelReady: ready}
}

// MarshalJSON encodes a score as a [category, similarity] pair.
func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Category, s.Similarity})
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("score: expected [category, similarity], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.Category); err != nil {
		return fmt.Errorf("score category: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.Similarity); err != nil {
		return fmt.Errorf("score similarity: %w", err)
	}
	return nil
}

// Prototype is the stored centroid vector of one category.
type Prototype struct {
	Category  string    `json:"category"`
	Color     string    `json:"color,omitempty"`
	Position  int       `json:"position"`
	SeedsUsed int       `json:"seeds_used"`
	Vector    []float32 `json:"-"`
}

// ArchiveEvent is an entry in the prototype archive history.
type ArchiveEvent struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	BuildID string         `json:"build_id,omitempty"`
	Payload map[string]any `json:"payload"`
}
