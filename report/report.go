// Package report aggregates recorded sessions into daily and weekly totals.
// Only finished, non-deleted sessions count; a session with no end instant
// is excluded.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/internal/timeutil"
)

const dateLayout = "2006-01-02"

// DailyTotals is the aggregate for one local day.
type DailyTotals struct {
	Date         string // YYYY-MM-DD
	TotalSeconds int64
	ByTask       map[string]int64
}

// WeeklyTotals is the aggregate for one Monday-start week.
type WeeklyTotals struct {
	WeekStart string // YYYY-MM-DD (Monday)
	ByDate    map[string]int64
	ByTask    map[string]int64
}

func countable(s *models.Session) bool {
	return s.DeletedAt == nil && s.EndAt != nil
}

func duration(s *models.Session) int64 {
	if s.DurationSeconds == nil {
		return 0
	}

	return *s.DurationSeconds
}

// Daily computes totals for the day containing the given local instant.
func Daily(sessions []models.Session, day time.Time) DailyTotals {
	dayStart := timeutil.RoundToStart(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	totals := DailyTotals{
		Date:   dayStart.Format(dateLayout),
		ByTask: make(map[string]int64),
	}

	for i := range sessions {
		s := &sessions[i]
		if !countable(s) {
			continue
		}

		start := s.StartAt.In(day.Location())
		if start.Before(dayStart) || !start.Before(dayEnd) {
			continue
		}

		d := duration(s)
		totals.ByTask[s.TaskID] += d
		totals.TotalSeconds += d
	}

	return totals
}

// Weekly computes totals for the week containing the given local instant.
func Weekly(sessions []models.Session, today time.Time) WeeklyTotals {
	weekStart := timeutil.WeekStartMonday(today)
	weekEnd := weekStart.AddDate(0, 0, 7)

	totals := WeeklyTotals{
		WeekStart: weekStart.Format(dateLayout),
		ByDate:    make(map[string]int64),
		ByTask:    make(map[string]int64),
	}

	for i := range sessions {
		s := &sessions[i]
		if !countable(s) {
			continue
		}

		start := s.StartAt.In(today.Location())
		if start.Before(weekStart) || !start.Before(weekEnd) {
			continue
		}

		d := duration(s)
		totals.ByDate[start.Format(dateLayout)] += d
		totals.ByTask[s.TaskID] += d
	}

	return totals
}

func formatSeconds(secs int64) string {
	hrs := secs / 3600
	mins := (secs % 3600) / 60

	return fmt.Sprintf("%dh %02dm", hrs, mins)
}

// RenderWeekly renders a weekly report as a text table. Task titles come
// from the given lookup; unknown tasks fall back to their id.
func RenderWeekly(totals WeeklyTotals, tasks map[string]models.Task) ([]byte, error) {
	var out strings.Builder

	out.WriteString("Week of " + totals.WeekStart + "\n\n")

	dayRows := pterm.TableData{{"Day", "Tracked"}}

	weekStart, err := time.Parse(dateLayout, totals.WeekStart)
	if err != nil {
		return nil, err
	}

	var weekSeconds int64

	for i := 0; i < 7; i++ {
		day := weekStart.AddDate(0, 0, i)
		date := day.Format(dateLayout)
		secs := totals.ByDate[date]
		weekSeconds += secs

		dayRows = append(dayRows, []string{
			day.Weekday().String(), formatSeconds(secs),
		})
	}

	dayTable, err := pterm.DefaultTable.
		WithHasHeader().
		WithData(dayRows).
		Srender()
	if err != nil {
		return nil, err
	}

	out.WriteString(dayTable + "\n\n")

	taskIDs := make([]string, 0, len(totals.ByTask))
	for id := range totals.ByTask {
		taskIDs = append(taskIDs, id)
	}

	// Largest total first; ties break on title for stable output.
	sort.Slice(taskIDs, func(i, j int) bool {
		a, b := totals.ByTask[taskIDs[i]], totals.ByTask[taskIDs[j]]
		if a != b {
			return a > b
		}

		return taskTitle(tasks, taskIDs[i]) < taskTitle(tasks, taskIDs[j])
	})

	taskRows := pterm.TableData{{"Task", "Tracked"}}

	for _, id := range taskIDs {
		taskRows = append(taskRows, []string{
			taskTitle(tasks, id), formatSeconds(totals.ByTask[id]),
		})
	}

	taskTable, err := pterm.DefaultTable.
		WithHasHeader().
		WithData(taskRows).
		Srender()
	if err != nil {
		return nil, err
	}

	out.WriteString(taskTable + "\n\n")
	out.WriteString("Total: " + formatSeconds(weekSeconds) + "\n")

	return []byte(out.String()), nil
}

func taskTitle(tasks map[string]models.Task, id string) string {
	if t, ok := tasks[id]; ok {
		return t.Title
	}

	return id
}
