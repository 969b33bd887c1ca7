// Package engine is the pure state machine behind the running timer. It
// performs no I/O: callers persist the returned RunningTimerState and Session
// values. Enforcing the single-active-timer invariant is the timer store's
// job, not this package's.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/internal/timeutil"
)

const defaultWorkSeconds = 25 * 60

// StartInput describes a new timer run.
type StartInput struct {
	TaskID   string
	Kind     models.SessionKind
	StartAt  time.Time
	Pomodoro *models.PomodoroState
}

// Start creates a fresh running state with zero accumulated time. A
// pomodoro-kind timer gets a work phase seeded from input, or the default
// work duration when no seed is supplied. This always succeeds; it does not
// check for an existing timer.
func Start(in StartInput) models.RunningTimerState {
	now := in.StartAt

	var pom *models.PomodoroState
	if in.Kind == models.KindPomodoro {
		pom = in.Pomodoro
		if pom == nil {
			pom = &models.PomodoroState{
				Phase:            models.PhaseWork,
				RemainingSeconds: defaultWorkSeconds,
			}
		}
	}

	return models.RunningTimerState{
		SessionID:          uuid.NewString(),
		TaskID:             in.TaskID,
		Kind:               in.Kind,
		StartedAtUTC:       in.StartAt.UTC(),
		AccumulatedSeconds: 0,
		IsRunning:          true,
		LastTick:           &now,
		Pomodoro:           pom,
		UpdatedAt:          now,
	}
}

// Tick applies elapsed wall-clock time to the running total. The second
// return value reports whether the state changed, so callers can skip
// persistence on no-op ticks.
//
// A nil LastTick means the timer was just resumed: the tick only records now
// as the new baseline, so the paused interval is never credited. When a
// Pomodoro phase's remaining seconds reach exactly zero, the state stops
// running with LastTick reset to nil; deciding what happens next (session
// finalization, notification) is the caller's responsibility.
func Tick(s models.RunningTimerState, now time.Time) (models.RunningTimerState, bool) {
	if !s.IsRunning {
		return s, false
	}

	if s.LastTick == nil {
		s.LastTick = &now
		s.UpdatedAt = now

		return s, true
	}

	delta := timeutil.DurationSecondsBetween(*s.LastTick, now)
	if delta == 0 {
		return s, false
	}

	s.AccumulatedSeconds += delta

	phaseEnded := false

	if s.Kind == models.KindPomodoro && s.Pomodoro != nil {
		pom := *s.Pomodoro

		pom.RemainingSeconds -= delta
		if pom.RemainingSeconds <= 0 {
			pom.RemainingSeconds = 0
			phaseEnded = true
		}

		s.Pomodoro = &pom
	}

	if phaseEnded {
		s.IsRunning = false
		s.LastTick = nil
	} else {
		s.LastTick = &now
	}

	s.UpdatedAt = now

	return s, true
}

// Pause stops the clock without finalizing a session. No-op if already
// paused.
func Pause(s models.RunningTimerState, now time.Time) models.RunningTimerState {
	if !s.IsRunning {
		return s
	}

	s.IsRunning = false
	s.LastTick = nil
	s.UpdatedAt = now

	return s
}

// Resume restarts the clock. LastTick is set to now so the paused interval
// is excluded from accumulated time. No-op if already running.
func Resume(s models.RunningTimerState, now time.Time) models.RunningTimerState {
	if s.IsRunning {
		return s
	}

	s.IsRunning = true
	s.LastTick = &now
	s.UpdatedAt = now

	return s
}

// Stop finalizes the run into a Session ending at endAt.
//
// Accumulated seconds can drift below wall clock (coarse ticking) but must
// never exceed it, so the duration is the smaller of the two. If the engine
// never ticked at all, wall clock is the fallback.
func Stop(s models.RunningTimerState, endAt time.Time) models.Session {
	byWallClock := timeutil.DurationSecondsBetween(s.StartedAtUTC, endAt)

	duration := byWallClock
	if s.AccumulatedSeconds > 0 && s.AccumulatedSeconds < byWallClock {
		duration = s.AccumulatedSeconds
	}

	end := endAt

	return models.Session{
		ID:              s.SessionID,
		TaskID:          s.TaskID,
		StartAt:         s.StartedAtUTC,
		EndAt:           &end,
		DurationSeconds: &duration,
		Kind:            s.Kind,
		Source:          models.SourceTimer,
		CreatedAt:       endAt,
		UpdatedAt:       endAt,
	}
}
