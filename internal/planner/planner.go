// Package planner lays pending tasks out over a bounded day window.
//
// Tasks are placed greedily: on every round the remaining tasks are re-scored
// (priority, due-date urgency, category balance), and the best task that still
// fits is appended after the previous one, separated by a short rest block.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/logx"
)

const (
	DefaultTaskMinutes = 45
	RestBlockMinutes   = 10
	MinTaskMinutes     = 15
	MaxTaskMinutes     = 120

	// CategoryPenalty is deducted per task already placed in the same category.
	CategoryPenalty = 15
)

var priorityWeights = map[string]float64{
	domain.PriorityHigh:   100,
	domain.PriorityMedium: 50,
	domain.PriorityLow:    25,
}

const dateLayout = "2006-01-02"

// Planner schedules tasks. The zero value is ready to use.
type Planner struct {
	Log logx.Logger
}

// Schedule is a convenience wrapper around a zero Planner.
func Schedule(tasks []domain.Task, window domain.Window) ([]domain.Event, domain.Stats) {
	return Planner{}.Schedule(tasks, window)
}

// slot is the per-task arena entry. Live entries are those not yet removed.
type slot struct {
	task     domain.Task
	priority string
	category string
	minutes  int
	base     float64
	removed  bool
}

// Schedule places as many tasks as fit into window and reports what happened.
// The window is trusted: when EndMinute <= StartMinute nothing is placed.
func (p Planner) Schedule(tasks []domain.Task, window domain.Window) ([]domain.Event, domain.Stats) {
	events := []domain.Event{}
	stats := domain.Stats{CategoryDistribution: map[string]int{}}
	if len(tasks) == 0 {
		return events, stats
	}

	ref, hasRef := ParseDate(window.ReferenceDate)
	pool := make([]slot, len(tasks))
	for i, t := range tasks {
		pool[i] = slot{
			task:     t,
			priority: NormalizePriority(t.Priority),
			category: categoryOf(t),
			minutes:  p.resolveMinutes(t),
		}
		pool[i].base = priorityWeights[pool[i].priority]
		if hasRef {
			pool[i].base += urgencyBonus(t, ref)
		}
	}

	usage := map[string]int{}
	now := window.StartMinute
	remaining := len(pool)
	pendingRest := false

	for remaining > 0 && now < window.EndMinute {
		candidates := make([]*slot, 0, remaining)
		scores := make(map[*slot]float64, remaining)
		for i := range pool {
			s := &pool[i]
			if s.removed {
				continue
			}
			candidates = append(candidates, s)
			scores[s] = s.base - float64(CategoryPenalty*usage[s.category])
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return scores[candidates[i]] > scores[candidates[j]]
		})

		var picked *slot
		for _, c := range candidates {
			if now+c.minutes <= window.EndMinute {
				picked = c
				break
			}
		}
		if picked == nil {
			break
		}

		if pendingRest {
			stats.TotalRestMinutes += RestBlockMinutes
			pendingRest = false
		}
		events = append(events, domain.Event{
			ID:          fmt.Sprintf("auto_%s_%d", picked.task.ID, stats.ScheduledCount),
			Title:       picked.task.Title,
			StartMinute: now,
			EndMinute:   now + picked.minutes,
			TaskID:      picked.task.ID,
			Category:    picked.category,
			Priority:    picked.priority,
			PlanNames:   append([]string{}, picked.task.PlanNames...),
		})
		usage[picked.category]++
		stats.CategoryDistribution[picked.category]++
		stats.ScheduledCount++
		stats.TotalWorkMinutes += picked.minutes
		now += picked.minutes
		picked.removed = true
		remaining--

		// The gap only counts once another task lands after it.
		if remaining > 0 && now+RestBlockMinutes <= window.EndMinute {
			now += RestBlockMinutes
			pendingRest = true
		}
	}
	if pendingRest {
		now -= RestBlockMinutes
	}

	stats.UnscheduledCount = remaining
	stats.EndMinute = now
	return events, stats
}

// Score is the composite urgency of t given how many tasks of each category
// were already placed. A zero ref disables the due-date bonus.
func Score(t domain.Task, ref time.Time, usage map[string]int) float64 {
	score := priorityWeights[NormalizePriority(t.Priority)]
	if !ref.IsZero() {
		score += urgencyBonus(t, ref)
	}
	return score - float64(CategoryPenalty*usage[categoryOf(t)])
}

// urgencyBonus rewards tasks the closer (or further past) their due date is.
// Missing or unparseable due dates earn nothing.
func urgencyBonus(t domain.Task, ref time.Time) float64 {
	if t.DueDate == nil {
		return 0
	}
	due, ok := ParseDate(*t.DueDate)
	if !ok {
		return 0
	}
	days := int(due.Sub(ref).Hours() / 24)
	switch {
	case days < 0:
		return 200
	case days == 0:
		return 150
	case days == 1:
		return 100
	case days <= 3:
		return 75
	case days <= 7:
		return 50
	default:
		return float64(max(0, 25-5*(days/7)))
	}
}

// ResolveMinutes picks the task length: the estimate, then the generic
// duration, then the default. Explicit values are clamped to the allowed range.
func ResolveMinutes(t domain.Task) int {
	minutes, _ := resolve(t)
	return minutes
}

func (p Planner) resolveMinutes(t domain.Task) int {
	minutes, requested := resolve(t)
	if requested != 0 && requested != minutes {
		p.Log.Debug("task duration clamped",
			logx.String("task_id", t.ID),
			logx.Int("requested", requested),
			logx.Int("minutes", minutes))
	}
	return minutes
}

func resolve(t domain.Task) (minutes, requested int) {
	switch {
	case t.EstimatedDuration != nil && *t.EstimatedDuration > 0:
		requested = *t.EstimatedDuration
	case t.Duration != nil && *t.Duration > 0:
		requested = *t.Duration
	default:
		return DefaultTaskMinutes, 0
	}
	return min(MaxTaskMinutes, max(MinTaskMinutes, requested)), requested
}

// NormalizePriority maps unknown or empty priorities to medium.
func NormalizePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if _, ok := priorityWeights[p]; ok {
		return p
	}
	return domain.PriorityMedium
}

func categoryOf(t domain.Task) string {
	if name := strings.TrimSpace(t.CategoryName); name != "" {
		return name
	}
	return domain.Uncategorized
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD) as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
