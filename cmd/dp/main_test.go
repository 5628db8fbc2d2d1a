package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"dayplan/internal/config"
	"dayplan/internal/domain"
	"dayplan/internal/planner"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadTasksFormats(t *testing.T) {
	cases := map[string]string{
		"list.json":    `[{"id":"1","title":"Write report","priority":"high","estimated_duration":60}]`,
		"wrapped.json": `{"tasks":[{"id":"1","title":"Write report","priority":"high","estimated_duration":60}]}`,
		"list.yml":     "- id: \"1\"\n  title: Write report\n  priority: high\n  estimated_duration: 60\n",
		"wrapped.yaml": "tasks:\n  - id: \"1\"\n    title: Write report\n    priority: high\n    estimated_duration: 60\n    due_date: 2024-05-01\n",
	}
	for name, body := range cases {
		tasks, err := readTasks(writeFile(t, name, body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(tasks) != 1 || tasks[0].ID != "1" || tasks[0].Priority != "high" {
			t.Fatalf("%s: unexpected tasks %+v", name, tasks)
		}
		if tasks[0].EstimatedDuration == nil || *tasks[0].EstimatedDuration != 60 {
			t.Fatalf("%s: estimated duration not parsed", name)
		}
	}
}

func TestReadTasksTreatsMalformedFieldsAsAbsent(t *testing.T) {
	cases := map[string]string{
		"tasks.json": `[{"id":1,"title":"A","estimated_duration":"abc","due_date":20260310},{"id":"2","title":"B","duration":"30"}]`,
		"tasks.yml":  "- id: 1\n  title: A\n  estimated_duration: soon\n  due_date: [2026]\n- id: \"2\"\n  title: B\n  duration: \"30\"\n",
	}
	for name, body := range cases {
		tasks, err := readTasks(writeFile(t, name, body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(tasks) != 2 || tasks[0].ID != "1" {
			t.Fatalf("%s: unexpected tasks %+v", name, tasks)
		}
		if tasks[0].EstimatedDuration != nil || tasks[0].DueDate != nil {
			t.Fatalf("%s: malformed fields should be absent: %+v", name, tasks[0])
		}
		if tasks[1].Duration == nil || *tasks[1].Duration != 30 {
			t.Fatalf("%s: numeric string duration not parsed: %+v", name, tasks[1])
		}
		events, _ := planner.Schedule(tasks, domainWindow(9*60, 17*60))
		if len(events) != 2 || events[0].Minutes() != planner.DefaultTaskMinutes || events[1].Minutes() != 30 {
			t.Fatalf("%s: unexpected events %+v", name, events)
		}
	}
}

func TestReadTasksRejectsGarbage(t *testing.T) {
	if _, err := readTasks(writeFile(t, "bad.json", `{"tasks": 5}`)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := readTasks(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPlanWindow(t *testing.T) {
	cfg := config.Default()
	w, err := planWindow(cfg, "09:30", "12:00", "2024-05-01")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if w.StartMinute != 570 || w.EndMinute != 720 || w.ReferenceDate != "2024-05-01" {
		t.Fatalf("unexpected window %+v", w)
	}

	w, err = planWindow(cfg, "", "", "")
	if err != nil {
		t.Fatalf("default window: %v", err)
	}
	if w.EndMinute <= w.StartMinute || w.ReferenceDate == "" {
		t.Fatalf("unexpected default window %+v", w)
	}

	for _, tc := range [][3]string{
		{"12:00", "09:00", ""},
		{"10:00", "10:00", ""},
		{"9am", "", ""},
		{"", "", "05/01/2024"},
	} {
		if _, err := planWindow(cfg, tc[0], tc[1], tc[2]); err == nil {
			t.Fatalf("expected error for %v", tc)
		}
	}
}

func TestParseThreshold(t *testing.T) {
	th, err := parseThreshold("none")
	if err != nil || !math.IsInf(th, -1) {
		t.Fatalf("none: got %v, %v", th, err)
	}
	th, err = parseThreshold(" 0.4 ")
	if err != nil || th != 0.4 {
		t.Fatalf("0.4: got %v, %v", th, err)
	}
	for _, raw := range []string{"abc", "1.5", "-2"} {
		if _, err := parseThreshold(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func domainWindow(start, end int) domain.Window {
	return domain.Window{StartMinute: start, EndMinute: end, ReferenceDate: "2026-03-10"}
}
