package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/report"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()

	m.Run()
}

// monday is 2025-05-12.
var monday = time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)

func session(taskID string, startAt time.Time, durationSecs int64) models.Session {
	end := startAt.Add(time.Duration(durationSecs) * time.Second)

	return models.Session{
		ID:              taskID + "-" + startAt.Format(time.RFC3339),
		TaskID:          taskID,
		StartAt:         startAt,
		EndAt:           &end,
		DurationSeconds: &durationSecs,
		Kind:            models.KindNormal,
		Source:          models.SourceTimer,
		CreatedAt:       startAt,
		UpdatedAt:       startAt,
	}
}

func TestDaily(t *testing.T) {
	deleted := session("task-a", monday.Add(14*time.Hour), 600)
	deletedAt := monday.Add(15 * time.Hour)
	deleted.DeletedAt = &deletedAt

	open := session("task-a", monday.Add(16*time.Hour), 600)
	open.EndAt = nil

	sessions := []models.Session{
		session("task-a", monday.Add(9*time.Hour), 3600),
		session("task-a", monday.Add(13*time.Hour), 1800),
		session("task-b", monday.Add(10*time.Hour), 900),
		session("task-a", monday.AddDate(0, 0, 1), 3600), // next day
		deleted,
		open,
	}

	got := report.Daily(sessions, monday.Add(12*time.Hour))

	want := report.DailyTotals{
		Date:         "2025-05-12",
		TotalSeconds: 6300,
		ByTask: map[string]int64{
			"task-a": 5400,
			"task-b": 900,
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("daily totals mismatch (-want +got):\n%s", diff)
	}
}

func TestWeekly(t *testing.T) {
	sessions := []models.Session{
		session("task-a", monday.Add(9*time.Hour), 3600),
		session("task-b", monday.AddDate(0, 0, 2).Add(10*time.Hour), 1800),
		session("task-a", monday.AddDate(0, 0, 6).Add(20*time.Hour), 600),
		session("task-a", monday.AddDate(0, 0, 7), 3600),  // next week
		session("task-a", monday.Add(-time.Second), 3600), // previous week
	}

	// Any instant inside the week resolves to the same Monday.
	got := report.Weekly(sessions, monday.AddDate(0, 0, 3))

	want := report.WeeklyTotals{
		WeekStart: "2025-05-12",
		ByDate: map[string]int64{
			"2025-05-12": 3600,
			"2025-05-14": 1800,
			"2025-05-18": 600,
		},
		ByTask: map[string]int64{
			"task-a": 4200,
			"task-b": 1800,
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("weekly totals mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWeekly(t *testing.T) {
	totals := report.WeeklyTotals{
		WeekStart: "2025-05-12",
		ByDate: map[string]int64{
			"2025-05-12": 3600,
			"2025-05-14": 5400,
		},
		ByTask: map[string]int64{
			"task-a": 5400,
			"task-b": 3600,
		},
	}

	tasks := map[string]models.Task{
		"task-a": {ID: "task-a", Title: "Deep work"},
		"task-b": {ID: "task-b", Title: "Admin"},
	}

	out, err := report.RenderWeekly(totals, tasks)
	require.NoError(t, err)

	assert.Contains(t, string(out), "Week of 2025-05-12")
	assert.Contains(t, string(out), "Monday")
	assert.Contains(t, string(out), "1h 00m")
	assert.Contains(t, string(out), "1h 30m")
	assert.Contains(t, string(out), "Total: 2h 30m")

	// Tasks are ordered by tracked time, largest first.
	deepWork := bytes.Index(out, []byte("Deep work"))
	admin := bytes.Index(out, []byte("Admin"))
	require.NotEqual(t, -1, deepWork)
	require.NotEqual(t, -1, admin)
	assert.Less(t, deepWork, admin)
}

func TestRenderWeeklyFallsBackToTaskID(t *testing.T) {
	totals := report.WeeklyTotals{
		WeekStart: "2025-05-12",
		ByDate:    map[string]int64{},
		ByTask:    map[string]int64{"task-x": 60},
	}

	out, err := report.RenderWeekly(totals, nil)
	require.NoError(t, err)

	assert.Contains(t, string(out), "task-x")
	assert.Contains(t, string(out), "0h 01m")
}
