package server

import (
	"encoding/json"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"dayplan/internal/domain"
	"dayplan/internal/planner"
	"dayplan/internal/prototype"
)

// Request payloads

type ClassifyRequest struct {
	Text             string   `json:"text" doc:"Free text to classify"`
	// TopK of zero returns the whole ranking rather than an empty list.
	TopK             *int     `json:"top_k,omitempty" minimum:"0" doc:"Ranking length; 0 returns every category, not an empty list"`
	UnknownThreshold *float64 `json:"unknown_threshold,omitempty" minimum:"-1" maximum:"1" doc:"Minimum best similarity; -1 disables rejection"`
}

type WindowRequest struct {
	Start string `json:"start" example:"09:00" doc:"HH:MM or minutes from midnight"`
	End   string `json:"end" example:"17:00" doc:"HH:MM or minutes from midnight"`
	Date  string `json:"date,omitempty" example:"2026-03-10" doc:"Reference date for due-date urgency; defaults to today (UTC)"`
}

type ScheduleRequest struct {
	Tasks  []domain.TaskInput `json:"tasks"`
	Window WindowRequest      `json:"window"`
}

// Response payloads

type HealthResponse struct {
	Status     string `json:"status" example:"ok"`
	ModelReady bool   `json:"model_ready"`
	Loading    bool   `json:"loading" doc:"A model load is in progress"`
}

// ScorePair renders a score as a [category, similarity] tuple.
type ScorePair domain.Score

func (s ScorePair) MarshalJSON() ([]byte, error) {
	return json.Marshal(domain.Score(s))
}

func (s *ScorePair) UnmarshalJSON(data []byte) error {
	return (*domain.Score)(s).UnmarshalJSON(data)
}

// Schema describes the tuple for OpenAPI.
func (ScorePair) Schema(r huma.Registry) *huma.Schema {
	two := 2
	return &huma.Schema{
		Type:        huma.TypeArray,
		Description: "[category, similarity]",
		Items:       &huma.Schema{},
		MinItems:    &two,
		MaxItems:    &two,
	}
}

type ClassifyResponse struct {
	Category   string      `json:"category" example:"Fitness"`
	Scores     []ScorePair `json:"scores"`
	ModelReady bool        `json:"model_ready"`
}

type CategoriesResponse struct {
	Categories     []domain.Category `json:"categories"`
	EmbeddingModel string            `json:"embedding_model"`
	VectorDim      int               `json:"vector_dim"`
	BuildID        string            `json:"build_id,omitempty"`
}

type EventResponse struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	StartMinute     int      `json:"start_minute"`
	EndMinute       int      `json:"end_minute"`
	Start           string   `json:"start" example:"09:00"`
	End             string   `json:"end" example:"10:00"`
	TaskID          string   `json:"task_id"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority" enum:"low,medium,high"`
	PlanNames       []string `json:"plan_names"`
	Logged          bool     `json:"logged"`
	IsCalendarEvent bool     `json:"is_calendar_event"`
}

type StatsResponse struct {
	ScheduledCount       int            `json:"scheduled_count"`
	TotalWorkMinutes     int            `json:"total_work_minutes"`
	TotalRestMinutes     int            `json:"total_rest_minutes"`
	UnscheduledCount     int            `json:"unscheduled_count"`
	CategoryDistribution map[string]int `json:"category_distribution"`
	EndMinute            int            `json:"end_minute"`
	EndTime              string         `json:"end_time" example:"16:10"`
}

type ScheduleResponse struct {
	Events []EventResponse `json:"events"`
	Stats  StatsResponse   `json:"stats"`
}

func toTasks(in []domain.TaskInput) []domain.Task {
	tasks := make([]domain.Task, len(in))
	for i, t := range in {
		tasks[i] = t.Task()
	}
	return tasks
}

func toWindow(in WindowRequest, today string) (domain.Window, error) {
	start, err := planner.ParseClock(in.Start)
	if err != nil {
		return domain.Window{}, fmt.Errorf("invalid window.start: %w", err)
	}
	end, err := planner.ParseClock(in.End)
	if err != nil {
		return domain.Window{}, fmt.Errorf("invalid window.end: %w", err)
	}
	date := in.Date
	if date == "" {
		date = today
	} else if _, ok := planner.ParseDate(date); !ok {
		return domain.Window{}, fmt.Errorf("invalid window.date %q: want YYYY-MM-DD", date)
	}
	return domain.Window{StartMinute: start, EndMinute: end, ReferenceDate: date}, nil
}

func mapClassification(res domain.ClassificationResult) ClassifyResponse {
	out := ClassifyResponse{Category: res.Category, Scores: make([]ScorePair, len(res.Scores)), ModelReady: res.ModelReady}
	for i, s := range res.Scores {
		out.Scores[i] = ScorePair(s)
	}
	return out
}

func mapCategories(meta prototype.Meta) CategoriesResponse {
	cats := meta.Categories
	if cats == nil {
		cats = []domain.Category{}
	}
	return CategoriesResponse{
		Categories:     cats,
		EmbeddingModel: meta.EmbeddingModel,
		VectorDim:      meta.VectorDim,
		BuildID:        meta.BuildID,
	}
}

func mapSchedule(events []domain.Event, stats domain.Stats) ScheduleResponse {
	out := ScheduleResponse{Events: make([]EventResponse, len(events))}
	for i, e := range events {
		plans := e.PlanNames
		if plans == nil {
			plans = []string{}
		}
		out.Events[i] = EventResponse{
			ID:              e.ID,
			Title:           e.Title,
			StartMinute:     e.StartMinute,
			EndMinute:       e.EndMinute,
			Start:           planner.FormatClock(e.StartMinute),
			End:             planner.FormatClock(e.EndMinute),
			TaskID:          e.TaskID,
			Category:        e.Category,
			Priority:        e.Priority,
			PlanNames:       plans,
			Logged:          e.Logged,
			IsCalendarEvent: e.IsCalendarEvent,
		}
	}
	out.Stats = StatsResponse{
		ScheduledCount:       stats.ScheduledCount,
		TotalWorkMinutes:     stats.TotalWorkMinutes,
		TotalRestMinutes:     stats.TotalRestMinutes,
		UnscheduledCount:     stats.UnscheduledCount,
		CategoryDistribution: stats.CategoryDistribution,
		EndMinute:            stats.EndMinute,
		EndTime:              planner.FormatClock(stats.EndMinute),
	}
	return out
}
