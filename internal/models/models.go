// Package models defines the entities shared between the local store and the
// sync wire format. JSON field names match the remote API exactly.
package models

import (
	"encoding/json"
	"time"
)

// SessionKind distinguishes stopwatch runs from Pomodoro runs.
type SessionKind string

const (
	KindNormal   SessionKind = "normal"
	KindPomodoro SessionKind = "pomodoro"
)

// SessionSource records how a session came to exist.
type SessionSource string

const (
	SourceTimer  SessionSource = "timer"
	SourceManual SessionSource = "manual"
)

// PomodoroPhase is the phase of a Pomodoro cycle.
type PomodoroPhase string

const (
	PhaseWork       PomodoroPhase = "work"
	PhaseShortBreak PomodoroPhase = "shortBreak"
	PhaseLongBreak  PomodoroPhase = "longBreak"
)

// RecurrenceRule is a minimal weekly/daily recurrence shape. It is validated
// structurally but otherwise carried as opaque data; occurrence expansion is
// out of scope.
type RecurrenceRule struct {
	Freq       string `json:"freq"` // WEEKLY or DAILY
	ByWeekdays []int  `json:"byWeekdays,omitempty"`
	Interval   int    `json:"interval,omitempty"`
}

// Task is a user-owned unit of work that sessions are tracked against. Tasks
// are never hard-deleted; DeletedAt marks soft deletion.
type Task struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	Description         *string         `json:"description"`
	Category            *string         `json:"category"`
	RecurrenceRule      *RecurrenceRule `json:"recurrenceRule"`
	TargetDailyMinutes  *int            `json:"targetDailyMinutes"`
	TargetWeeklyMinutes *int            `json:"targetWeeklyMinutes"`
	IsArchived          bool            `json:"isArchived"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	DeletedAt           *time.Time      `json:"deletedAt"`
}

// Session is a finished (or manually entered) block of tracked time.
type Session struct {
	ID              string        `json:"id"`
	TaskID          string        `json:"taskId"`
	StartAt         time.Time     `json:"startAt"`
	EndAt           *time.Time    `json:"endAt"`
	DurationSeconds *int64        `json:"durationSeconds"`
	Kind            SessionKind   `json:"kind"`
	Source          SessionSource `json:"source"`
	Note            *string       `json:"note"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	DeletedAt       *time.Time    `json:"deletedAt"`
}

// Settings is the singleton preference record.
type Settings struct {
	Timezone                  string    `json:"timezone"`
	WeekStartsOn              int       `json:"weekStartsOn"` // ISO weekday, 1=Monday
	IdlePauseSeconds          int       `json:"idlePauseSeconds"`
	PomodoroWorkMinutes       int       `json:"pomodoroWorkMinutes"`
	PomodoroShortBreakMinutes int       `json:"pomodoroShortBreakMinutes"`
	PomodoroLongBreakMinutes  int       `json:"pomodoroLongBreakMinutes"`
	PomodoroLongBreakEvery    int       `json:"pomodoroLongBreakEvery"`
	NotificationsEnabled      bool      `json:"notificationsEnabled"`
	CreatedAt                 time.Time `json:"createdAt"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// PomodoroState is the phase sub-state carried by a pomodoro-kind timer.
type PomodoroState struct {
	Phase            PomodoroPhase `json:"phase"`
	RemainingSeconds int64         `json:"remainingSeconds"`
	CycleCount       int           `json:"cycleCount"`
}

// RunningTimerState is the singleton value describing the one timer that may
// be active at any moment. AccumulatedSeconds excludes the current run slice;
// LastTick is nil exactly when the timer is paused or was just resumed and no
// tick has been applied yet.
type RunningTimerState struct {
	SessionID          string         `json:"sessionId"`
	TaskID             string         `json:"taskId"`
	Kind               SessionKind    `json:"kind"`
	StartedAtUTC       time.Time      `json:"startedAtUtc"`
	AccumulatedSeconds int64          `json:"accumulatedSeconds"`
	IsRunning          bool           `json:"isRunning"`
	LastTick           *time.Time     `json:"lastTick"`
	Pomodoro           *PomodoroState `json:"pomodoro"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// MutationOp is the kind of change an outbox record carries.
type MutationOp string

const (
	OpUpsert MutationOp = "upsert"
	OpDelete MutationOp = "delete"
)

// EntityType names the entity a mutation targets.
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntitySession  EntityType = "session"
	EntitySettings EntityType = "settings"
)

// MutationStatus is the outbox lifecycle state.
type MutationStatus string

const (
	StatusPending  MutationStatus = "pending"
	StatusApplied  MutationStatus = "applied"
	StatusRejected MutationStatus = "rejected"
)

// Mutation is one outbox record. Payload stays an opaque serialized blob
// between enqueue and transmission.
type Mutation struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"deviceId"`
	Op         MutationOp      `json:"op"`
	EntityType EntityType      `json:"entityType"`
	EntityID   *string         `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	ClientTs   time.Time       `json:"clientTs"`
	Status     MutationStatus  `json:"status"`
	Error      *string         `json:"error"`
}

// SyncState is the singleton pull watermark.
type SyncState struct {
	DeviceID     string     `json:"deviceId"`
	LastServerTs *time.Time `json:"lastServerTs"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
