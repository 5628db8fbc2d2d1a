package planner_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/logx"
	"dayplan/internal/planner"
)

const refDate = "2026-03-10"

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func dayOffset(days int) *string {
	d, _ := time.Parse("2006-01-02", refDate)
	return strPtr(d.AddDate(0, 0, days).Format("2006-01-02"))
}

func window(start, end int) domain.Window {
	return domain.Window{StartMinute: start, EndMinute: end, ReferenceDate: refDate}
}

func task(id, priority, category string, due *string, minutes *int) domain.Task {
	return domain.Task{
		ID:                id,
		Title:             "Task " + id,
		Priority:          priority,
		DueDate:           due,
		CategoryName:      category,
		EstimatedDuration: minutes,
		PlanNames:         []string{},
	}
}

func assertInvariants(t *testing.T, tasks []domain.Task, events []domain.Event, stats domain.Stats) {
	t.Helper()
	if stats.ScheduledCount+stats.UnscheduledCount != len(tasks) {
		t.Fatalf("conservation: %d + %d != %d", stats.ScheduledCount, stats.UnscheduledCount, len(tasks))
	}
	if stats.ScheduledCount != len(events) {
		t.Fatalf("scheduled_count %d, events %d", stats.ScheduledCount, len(events))
	}
	work := 0
	for i, e := range events {
		work += e.Minutes()
		if i == 0 {
			continue
		}
		prev := events[i-1]
		if prev.EndMinute > e.StartMinute {
			t.Fatalf("events %d and %d overlap: %+v %+v", i-1, i, prev, e)
		}
		if prev.StartMinute > e.StartMinute {
			t.Fatalf("events out of order at %d", i)
		}
	}
	if work != stats.TotalWorkMinutes {
		t.Fatalf("total_work_minutes %d, sum of events %d", stats.TotalWorkMinutes, work)
	}
	gaps := 0
	for i := 1; i < len(events); i++ {
		gaps += events[i].StartMinute - events[i-1].EndMinute
	}
	if gaps != stats.TotalRestMinutes {
		t.Fatalf("total_rest_minutes %d, gaps between events %d", stats.TotalRestMinutes, gaps)
	}
	if stats.TotalRestMinutes%planner.RestBlockMinutes != 0 {
		t.Fatalf("rest minutes not a multiple of the rest block: %d", stats.TotalRestMinutes)
	}
}

func TestBasicScheduling(t *testing.T) {
	tasks := []domain.Task{
		task("1", "high", "Programming", dayOffset(0), intPtr(60)),
		task("2", "medium", "Documentation", dayOffset(1), intPtr(45)),
		task("3", "high", "Meetings", dayOffset(0), intPtr(30)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 17*60))
	assertInvariants(t, tasks, events, stats)
	if stats.ScheduledCount != 3 {
		t.Fatalf("expected 3 scheduled, got %d", stats.ScheduledCount)
	}
	if stats.TotalRestMinutes != 20 {
		t.Fatalf("expected two rest blocks, got %d minutes", stats.TotalRestMinutes)
	}
	if events[0].ID != "auto_1_0" || events[1].ID != "auto_3_1" || events[2].ID != "auto_2_2" {
		t.Fatalf("unexpected order: %s %s %s", events[0].ID, events[1].ID, events[2].ID)
	}
	if stats.EndMinute != events[2].EndMinute {
		t.Fatalf("end minute %d, last event ends %d", stats.EndMinute, events[2].EndMinute)
	}
}

func TestPriorityOrdering(t *testing.T) {
	tasks := []domain.Task{
		task("1", "low", "Work", dayOffset(7), intPtr(45)),
		task("2", "high", "Work", dayOffset(-1), intPtr(60)),
		task("3", "medium", "Work", dayOffset(0), intPtr(45)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 12*60))
	assertInvariants(t, tasks, events, stats)
	if len(events) == 0 || events[0].TaskID != "2" {
		t.Fatalf("overdue high-priority task should come first: %+v", events)
	}
	if len(events) < 2 || events[1].TaskID != "3" {
		t.Fatalf("due-today task should come second: %+v", events)
	}
}

func TestCategoryBalancing(t *testing.T) {
	var tasks []domain.Task
	for i := 1; i <= 5; i++ {
		tasks = append(tasks, task(fmt.Sprint(i), "medium", "Programming", dayOffset(0), intPtr(45)))
	}
	tasks = append(tasks,
		task("6", "medium", "Design", dayOffset(0), intPtr(45)),
		task("7", "medium", "Meetings", dayOffset(0), intPtr(45)),
	)
	events, stats := planner.Schedule(tasks, window(9*60, 17*60))
	assertInvariants(t, tasks, events, stats)
	seen := map[string]bool{}
	for _, e := range events[:3] {
		seen[e.Category] = true
	}
	if len(seen) < 2 {
		t.Fatalf("first three events should span categories: %+v", events[:3])
	}
	if stats.CategoryDistribution["Programming"] != 5 || stats.CategoryDistribution["Design"] != 1 {
		t.Fatalf("unexpected distribution: %v", stats.CategoryDistribution)
	}
}

func TestRestBlocks(t *testing.T) {
	tasks := []domain.Task{
		task("1", "medium", "Work", dayOffset(0), intPtr(45)),
		task("2", "medium", "Work", dayOffset(0), intPtr(45)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 11*60))
	assertInvariants(t, tasks, events, stats)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if gap := events[1].StartMinute - events[0].EndMinute; gap != 10 {
		t.Fatalf("expected 10 minute gap, got %d", gap)
	}
	if stats.TotalRestMinutes != 10 {
		t.Fatalf("expected 10 rest minutes, got %d", stats.TotalRestMinutes)
	}
}

func TestRestIsNeverTrailing(t *testing.T) {
	// The second task cannot fit after the first, so the rest block is dropped.
	tasks := []domain.Task{
		task("1", "high", "Work", nil, intPtr(60)),
		task("2", "low", "Work", nil, intPtr(60)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 10*60+30))
	assertInvariants(t, tasks, events, stats)
	if stats.ScheduledCount != 1 || stats.UnscheduledCount != 1 {
		t.Fatalf("expected 1 scheduled and 1 unscheduled, got %+v", stats)
	}
	if stats.TotalRestMinutes != 0 {
		t.Fatalf("trailing rest counted: %d", stats.TotalRestMinutes)
	}
	if stats.EndMinute != 10*60 {
		t.Fatalf("end minute should be the last work minute, got %d", stats.EndMinute)
	}
}

func TestDurationHandling(t *testing.T) {
	tasks := []domain.Task{
		task("1", "high", "Work", dayOffset(0), intPtr(15)),
		task("2", "high", "Work", dayOffset(0), intPtr(120)),
		task("3", "medium", "Work", dayOffset(0), nil),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 17*60))
	assertInvariants(t, tasks, events, stats)
	want := []int{15, 120, 45}
	for i, w := range want {
		if got := events[i].Minutes(); got != w {
			t.Fatalf("event %d: expected %d minutes, got %d", i, w, got)
		}
	}
}

func TestResolveMinutesClamps(t *testing.T) {
	cases := []struct {
		name string
		task domain.Task
		want int
	}{
		{"below minimum", domain.Task{EstimatedDuration: intPtr(5)}, 15},
		{"above maximum", domain.Task{EstimatedDuration: intPtr(500)}, 120},
		{"missing", domain.Task{}, 45},
		{"zero estimate falls back", domain.Task{EstimatedDuration: intPtr(0)}, 45},
		{"generic duration", domain.Task{Duration: intPtr(30)}, 30},
		{"estimate wins", domain.Task{EstimatedDuration: intPtr(60), Duration: intPtr(30)}, 60},
		{"generic duration clamped", domain.Task{Duration: intPtr(1000)}, 120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := planner.ResolveMinutes(tc.task); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestScoreComponents(t *testing.T) {
	ref, _ := planner.ParseDate(refDate)
	cases := []struct {
		name string
		task domain.Task
		want float64
	}{
		{"high no due", task("a", "high", "X", nil, nil), 100},
		{"unknown priority", task("a", "urgent", "X", nil, nil), 50},
		{"overdue", task("a", "low", "X", dayOffset(-3), nil), 225},
		{"today", task("a", "low", "X", dayOffset(0), nil), 175},
		{"tomorrow", task("a", "low", "X", dayOffset(1), nil), 125},
		{"three days", task("a", "low", "X", dayOffset(3), nil), 100},
		{"a week", task("a", "low", "X", dayOffset(7), nil), 75},
		{"eight days", task("a", "low", "X", dayOffset(8), nil), 45},
		{"five weeks", task("a", "low", "X", dayOffset(35), nil), 25},
		{"far future", task("a", "low", "X", dayOffset(400), nil), 25},
		{"malformed due date", task("a", "low", "X", strPtr("next tuesday"), nil), 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := planner.Score(tc.task, ref, nil); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
	usage := map[string]int{"X": 2}
	if got := planner.Score(task("a", "high", "X", nil, nil), ref, usage); got != 70 {
		t.Fatalf("expected category penalty to give 70, got %v", got)
	}
	if got := planner.Score(task("a", "high", "", nil, nil), ref, map[string]int{domain.Uncategorized: 1}); got != 85 {
		t.Fatalf("empty category should count as uncategorized, got %v", got)
	}
}

func TestMalformedDueDateDoesNotPanic(t *testing.T) {
	tasks := []domain.Task{
		task("1", "low", "A", strPtr("2026-13-45"), nil),
		task("2", "low", "B", strPtr(""), nil),
		task("3", "high", "C", dayOffset(2), nil),
	}
	events, stats := planner.Schedule(tasks, window(8*60, 18*60))
	assertInvariants(t, tasks, events, stats)
	if events[0].TaskID != "3" {
		t.Fatalf("expected the only task with a valid due date first, got %s", events[0].TaskID)
	}
}

func TestEmptyTaskList(t *testing.T) {
	events, stats := planner.Schedule(nil, window(9*60, 17*60))
	if len(events) != 0 {
		t.Fatalf("expected no events")
	}
	if stats.ScheduledCount != 0 || stats.UnscheduledCount != 0 || stats.TotalWorkMinutes != 0 ||
		stats.TotalRestMinutes != 0 || stats.EndMinute != 0 || len(stats.CategoryDistribution) != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestOversizedTasksTerminate(t *testing.T) {
	tasks := []domain.Task{
		task("1", "high", "A", nil, intPtr(120)),
		task("2", "high", "B", nil, intPtr(90)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 10*60))
	assertInvariants(t, tasks, events, stats)
	if len(events) != 0 || stats.UnscheduledCount != 2 {
		t.Fatalf("nothing should fit: %+v", stats)
	}
}

func TestSmallerTaskFillsRemainingTime(t *testing.T) {
	tasks := []domain.Task{
		task("big", "high", "A", nil, intPtr(120)),
		task("small", "low", "B", nil, intPtr(20)),
	}
	events, stats := planner.Schedule(tasks, window(9*60, 10*60))
	assertInvariants(t, tasks, events, stats)
	if len(events) != 1 || events[0].TaskID != "small" {
		t.Fatalf("the fitting lower-scored task should be placed: %+v", events)
	}
}

func TestInvertedWindowSchedulesNothing(t *testing.T) {
	tasks := []domain.Task{task("1", "high", "A", nil, nil)}
	events, stats := planner.Schedule(tasks, window(17*60, 9*60))
	if len(events) != 0 || stats.UnscheduledCount != 1 {
		t.Fatalf("inverted window is not guarded, but must place nothing: %+v", stats)
	}
}

func TestTiesKeepInputOrder(t *testing.T) {
	var tasks []domain.Task
	for _, id := range []string{"c", "a", "b"} {
		tasks = append(tasks, task(id, "medium", "Cat-"+id, nil, intPtr(15)))
	}
	events, _ := planner.Schedule(tasks, window(0, 24*60))
	for i, id := range []string{"c", "a", "b"} {
		if events[i].TaskID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, events[i].TaskID)
		}
	}
}

func TestInputIsNotMutated(t *testing.T) {
	tasks := []domain.Task{
		task("1", "HIGH", "", nil, intPtr(5)),
		task("2", "low", "A", nil, nil),
	}
	tasks[0].PlanNames = []string{"Q1"}
	events, _ := planner.Schedule(tasks, window(9*60, 17*60))
	if tasks[0].Priority != "HIGH" || tasks[0].CategoryName != "" || *tasks[0].EstimatedDuration != 5 {
		t.Fatalf("input task mutated: %+v", tasks[0])
	}
	events[0].PlanNames[0] = "changed"
	if tasks[0].PlanNames[0] != "Q1" {
		t.Fatalf("event plan names alias the input slice")
	}
	if events[0].Priority != "high" || events[0].Category != domain.Uncategorized {
		t.Fatalf("expected normalized event fields, got %+v", events[0])
	}
}

func TestClampIsLogged(t *testing.T) {
	var buf bytes.Buffer
	p := planner.Planner{Log: logx.NewWriter(&buf, "debug")}
	p.Schedule([]domain.Task{task("1", "high", "A", nil, intPtr(500))}, window(0, 24*60))
	if !strings.Contains(buf.String(), "task duration clamped") {
		t.Fatalf("expected clamp log, got %q", buf.String())
	}
}

func TestConservationAcrossWindows(t *testing.T) {
	var tasks []domain.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, task(fmt.Sprint(i), []string{"low", "medium", "high"}[i%3],
			fmt.Sprintf("C%d", i%4), dayOffset(i-4), intPtr(10+i*11)))
	}
	for start := 0; start < 20*60; start += 97 {
		for _, length := range []int{0, 14, 15, 60, 185, 480} {
			events, stats := planner.Schedule(tasks, window(start, start+length))
			assertInvariants(t, tasks, events, stats)
			for _, e := range events {
				if e.StartMinute < start || e.EndMinute > start+length {
					t.Fatalf("event outside window [%d,%d]: %+v", start, start+length, e)
				}
			}
		}
	}
}
