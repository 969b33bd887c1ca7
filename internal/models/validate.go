package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports a payload that fails its expected shape check.
// It is a typed failure so callers can distinguish bad data from transport
// problems.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

func invalid(entity, field, reason string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func (r *RecurrenceRule) Validate() error {
	if r.Freq != "WEEKLY" && r.Freq != "DAILY" {
		return invalid("recurrenceRule", "freq", "must be WEEKLY or DAILY")
	}

	if r.Interval < 0 {
		return invalid("recurrenceRule", "interval", "must not be negative")
	}

	for _, d := range r.ByWeekdays {
		if d < 1 || d > 7 {
			return invalid("recurrenceRule", "byWeekdays", "must be ISO weekdays 1-7")
		}
	}

	return nil
}

func (t *Task) Validate() error {
	if !validUUID(t.ID) {
		return invalid("task", "id", "must be a UUID")
	}

	if t.Title == "" {
		return invalid("task", "title", "must not be empty")
	}

	if t.RecurrenceRule != nil {
		if err := t.RecurrenceRule.Validate(); err != nil {
			return err
		}
	}

	if t.TargetDailyMinutes != nil && *t.TargetDailyMinutes < 0 {
		return invalid("task", "targetDailyMinutes", "must not be negative")
	}

	if t.TargetWeeklyMinutes != nil && *t.TargetWeeklyMinutes < 0 {
		return invalid("task", "targetWeeklyMinutes", "must not be negative")
	}

	if t.UpdatedAt.IsZero() {
		return invalid("task", "updatedAt", "must be set")
	}

	return nil
}

func (s *Session) Validate() error {
	if !validUUID(s.ID) {
		return invalid("session", "id", "must be a UUID")
	}

	if !validUUID(s.TaskID) {
		return invalid("session", "taskId", "must be a UUID")
	}

	if s.StartAt.IsZero() {
		return invalid("session", "startAt", "must be set")
	}

	if s.Kind != KindNormal && s.Kind != KindPomodoro {
		return invalid("session", "kind", "must be normal or pomodoro")
	}

	if s.Source != SourceTimer && s.Source != SourceManual {
		return invalid("session", "source", "must be timer or manual")
	}

	if s.DurationSeconds != nil && *s.DurationSeconds < 0 {
		return invalid("session", "durationSeconds", "must not be negative")
	}

	if s.UpdatedAt.IsZero() {
		return invalid("session", "updatedAt", "must be set")
	}

	return nil
}

func (s *Settings) Validate() error {
	if s.WeekStartsOn < 1 || s.WeekStartsOn > 7 {
		return invalid("settings", "weekStartsOn", "must be an ISO weekday 1-7")
	}

	if s.IdlePauseSeconds < 0 {
		return invalid("settings", "idlePauseSeconds", "must not be negative")
	}

	if s.PomodoroWorkMinutes <= 0 {
		return invalid("settings", "pomodoroWorkMinutes", "must be positive")
	}

	if s.PomodoroShortBreakMinutes <= 0 {
		return invalid("settings", "pomodoroShortBreakMinutes", "must be positive")
	}

	if s.PomodoroLongBreakMinutes <= 0 {
		return invalid("settings", "pomodoroLongBreakMinutes", "must be positive")
	}

	if s.PomodoroLongBreakEvery <= 0 {
		return invalid("settings", "pomodoroLongBreakEvery", "must be positive")
	}

	if s.UpdatedAt.IsZero() {
		return invalid("settings", "updatedAt", "must be set")
	}

	return nil
}

func (m *Mutation) Validate() error {
	if !validUUID(m.ID) {
		return invalid("mutation", "id", "must be a UUID")
	}

	if m.DeviceID == "" {
		return invalid("mutation", "deviceId", "must not be empty")
	}

	if m.Op != OpUpsert && m.Op != OpDelete {
		return invalid("mutation", "op", "must be upsert or delete")
	}

	switch m.EntityType {
	case EntityTask, EntitySession, EntitySettings:
	default:
		return invalid("mutation", "entityType", "must be task, session, or settings")
	}

	if m.ClientTs.IsZero() {
		return invalid("mutation", "clientTs", "must be set")
	}

	return nil
}
