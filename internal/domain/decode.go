package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TaskInput is a task as it arrives from JSON or YAML documents. Scalar
// fields accept any type; values that cannot be used become absent.
type TaskInput struct {
	ID                any `json:"id" yaml:"id" doc:"Task id; numbers are accepted"`
	Title             any `json:"title" yaml:"title"`
	Priority          any `json:"priority,omitempty" yaml:"priority" doc:"low, medium or high; anything else counts as medium"`
	DueDate           any `json:"due_date,omitempty" yaml:"due_date" doc:"YYYY-MM-DD; malformed values are ignored"`
	CategoryName      any `json:"category_name,omitempty" yaml:"category_name"`
	EstimatedDuration any `json:"estimated_duration,omitempty" yaml:"estimated_duration" doc:"Minutes; non-numeric values are ignored"`
	Duration          any `json:"duration,omitempty" yaml:"duration" doc:"Minutes; non-numeric values are ignored"`
	PlanNames         any `json:"plan_names,omitempty" yaml:"plan_names"`
}

// Task converts the input leniently.
func (in TaskInput) Task() Task {
	t := Task{
		ID:                LenientString(in.ID),
		Title:             LenientString(in.Title),
		Priority:          LenientString(in.Priority),
		DueDate:           LenientDate(in.DueDate),
		CategoryName:      LenientString(in.CategoryName),
		EstimatedDuration: LenientMinutes(in.EstimatedDuration),
		Duration:          LenientMinutes(in.Duration),
	}
	switch names := in.PlanNames.(type) {
	case []any:
		for _, p := range names {
			if s := LenientString(p); s != "" {
				t.PlanNames = append(t.PlanNames, s)
			}
		}
	case string:
		if names != "" {
			t.PlanNames = []string{names}
		}
	}
	return t
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var in TaskInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = in.Task()
	return nil
}

func (t *Task) UnmarshalYAML(node *yaml.Node) error {
	var in TaskInput
	if err := node.Decode(&in); err != nil {
		return err
	}
	*t = in.Task()
	return nil
}

// LenientMinutes reads a minute count from a number or a numeric string.
// Anything else is nil.
func LenientMinutes(v any) *int {
	var f float64
	switch x := v.(type) {
	case int:
		return &x
	case int64:
		n := int(x)
		return &n
	case uint64:
		if x > math.MaxInt32 {
			return nil
		}
		n := int(x)
		return &n
	case float64:
		f = x
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

// LenientDate keeps strings and calendar timestamps. Other types are nil.
func LenientDate(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case time.Time:
		s := x.Format("2006-01-02")
		return &s
	default:
		return nil
	}
}

// LenientString renders strings and numbers; anything else is empty.
func LenientString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
