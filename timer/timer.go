// Package timer wraps the pure engine with durable storage. It is the sole
// owner of the running-timer singleton and the component that enforces the
// one-active-timer invariant.
package timer

import (
	"encoding/json"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"

	"github.com/tempora-app/tempora/config"
	"github.com/tempora-app/tempora/engine"
	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/store"
)

// minSessionSeconds is the short-session suppression threshold: anything
// shorter is treated as an accidental start/stop tap and discarded.
const minSessionSeconds = 15

// persistInterval bounds crash-recovery loss while ticking happens every
// second.
const persistInterval = 5 * time.Second

const tickInterval = time.Second

// Timer drives the running-timer singleton: it persists engine transitions,
// runs the periodic tick driver, and emits completed sessions together with
// their outbox mutations.
type Timer struct {
	db       store.DB
	opts     *config.Config
	deviceID string

	// mu serializes every read-modify-write on the singleton, including the
	// tick driver's.
	mu       sync.Mutex
	stopTick chan struct{}

	lastPersist time.Time

	now    func() time.Time
	notify func(title, body string)
}

// New creates a timer store over the given database.
func New(db store.DB, opts *config.Config) (*Timer, error) {
	deviceID, err := db.DeviceID()
	if err != nil {
		return nil, err
	}

	return &Timer{
		db:       db,
		opts:     opts,
		deviceID: deviceID,
		now:      time.Now,
		notify:   desktopNotify,
	}, nil
}

// GetState returns the current running-timer singleton, or nil when idle.
func (t *Timer) GetState() (*models.RunningTimerState, error) {
	return t.db.GetRunningTimer()
}

// Start begins a new timer run for the task. If a timer is already running
// it is paused first; merging two concurrent timers is not supported. For
// Pomodoro runs the work duration comes from the settings singleton, falling
// back to the config file defaults.
func (t *Timer) Start(taskID string, kind models.SessionKind) (models.RunningTimerState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.db.GetRunningTimer()
	if err != nil {
		return models.RunningTimerState{}, err
	}

	now := t.now()

	if existing != nil && existing.IsRunning {
		paused := engine.Pause(*existing, now)

		if err := t.db.SaveRunningTimer(&paused); err != nil {
			return models.RunningTimerState{}, err
		}
	}

	var pom *models.PomodoroState
	if kind == models.KindPomodoro {
		pom = &models.PomodoroState{
			Phase:            models.PhaseWork,
			RemainingSeconds: int64(t.workMinutes()) * 60,
		}
	}

	state := engine.Start(engine.StartInput{
		TaskID:   taskID,
		Kind:     kind,
		StartAt:  now,
		Pomodoro: pom,
	})

	if err := t.db.SaveRunningTimer(&state); err != nil {
		return models.RunningTimerState{}, err
	}

	t.ensureTicking()

	return state, nil
}

// Pause stops the clock without finalizing a session. No-op when no timer
// exists.
func (t *Timer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil || state == nil {
		return err
	}

	next := engine.Pause(*state, t.now())

	if err := t.db.SaveRunningTimer(&next); err != nil {
		return err
	}

	t.stopTicking()

	return nil
}

// Resume restarts a paused timer. The paused interval is not credited.
func (t *Timer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil || state == nil {
		return err
	}

	next := engine.Resume(*state, t.now())

	if err := t.db.SaveRunningTimer(&next); err != nil {
		return err
	}

	t.ensureTicking()

	return nil
}

// Stop finalizes the current run as of now.
func (t *Timer) Stop() (*models.Session, error) {
	return t.StopAt(t.now())
}

// StopAt finalizes the current run ending at endAt. Sessions shorter than
// the suppression threshold are discarded: only the running state is
// cleared, with no session and no outbox record. Otherwise the session, its
// outbox mutation, and the singleton delete commit in one transaction.
func (t *Timer) StopAt(endAt time.Time) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil || state == nil {
		return nil, err
	}

	return t.finalize(state, endAt)
}

// finalize must be called with mu held.
func (t *Timer) finalize(state *models.RunningTimerState, endAt time.Time) (*models.Session, error) {
	sess := engine.Stop(*state, endAt)

	if *sess.DurationSeconds < minSessionSeconds {
		slog.Info(
			"discarding short session",
			slog.Int64("duration_seconds", *sess.DurationSeconds),
		)

		if err := t.db.DeleteRunningTimer(); err != nil {
			return nil, err
		}

		t.stopTicking()

		return nil, nil
	}

	mut, err := t.sessionMutation(&sess)
	if err != nil {
		return nil, err
	}

	if err := t.db.FinalizeSession(&sess, &mut); err != nil {
		return nil, err
	}

	t.stopTicking()

	return &sess, nil
}

// SplitAndPauseAt is the idle watcher's entry point: it finalizes the
// current slice as a session ending at endAt and atomically leaves a fresh
// paused timer for the same task starting at that same instant. The idle gap
// becomes a session boundary, not time inside a session. Short slices are
// suppressed like any other stop.
func (t *Timer) SplitAndPauseAt(endAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil || state == nil {
		return err
	}

	sess := engine.Stop(*state, endAt)

	next := engine.Pause(engine.Start(engine.StartInput{
		TaskID:  state.TaskID,
		Kind:    state.Kind,
		StartAt: endAt,
	}), endAt)

	if *sess.DurationSeconds < minSessionSeconds {
		slog.Info(
			"discarding short session on idle split",
			slog.Int64("duration_seconds", *sess.DurationSeconds),
		)

		if err := t.db.SplitRunningTimer(nil, nil, &next); err != nil {
			return err
		}
	} else {
		mut, err := t.sessionMutation(&sess)
		if err != nil {
			return err
		}

		if err := t.db.SplitRunningTimer(&sess, &mut, &next); err != nil {
			return err
		}
	}

	t.stopTicking()

	return nil
}

// Recover is called once at process start. A running timer left over from a
// crash or reload gets a single catch-up tick covering all elapsed time, and
// the tick driver is restarted.
func (t *Timer) Recover() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil || state == nil {
		return err
	}

	if !state.IsRunning {
		return nil
	}

	slog.Debug(spew.Sdump(state))

	now := t.now()

	next, changed := engine.Tick(*state, now)
	if changed {
		if err := t.db.SaveRunningTimer(&next); err != nil {
			return err
		}

		if phaseCompleted(state, &next) {
			return t.completePhase(&next, now)
		}
	}

	t.ensureTicking()

	return nil
}

// Shutdown cancels the tick driver. No further side effects occur after it
// returns.
func (t *Timer) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTicking()
}

// ensureTicking must be called with mu held.
func (t *Timer) ensureTicking() {
	if t.stopTick != nil {
		return
	}

	t.lastPersist = t.now()

	stop := make(chan struct{})
	t.stopTick = stop

	go t.runTicker(stop)
}

// stopTicking must be called with mu held.
func (t *Timer) stopTicking() {
	if t.stopTick == nil {
		return
	}

	close(t.stopTick)
	t.stopTick = nil
}

func (t *Timer) runTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tickOnce()
		}
	}
}

// tickOnce performs one read-compute-write cycle. Unchanged states are not
// persisted, and even changed ones are only written every persistInterval to
// bound write volume; crash-recovery loss stays within that window.
func (t *Timer) tickOnce() {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.db.GetRunningTimer()
	if err != nil {
		slog.Error("reading running timer failed", slog.Any("error", err))

		return
	}

	if state == nil || !state.IsRunning {
		return
	}

	now := t.now()

	next, changed := engine.Tick(*state, now)
	if !changed {
		return
	}

	if phaseCompleted(state, &next) {
		if err := t.db.SaveRunningTimer(&next); err != nil {
			slog.Error("persisting timer failed", slog.Any("error", err))

			return
		}

		if err := t.completePhase(&next, now); err != nil {
			slog.Error("finalizing pomodoro failed", slog.Any("error", err))
		}

		return
	}

	if now.Sub(t.lastPersist) >= persistInterval {
		if err := t.db.SaveRunningTimer(&next); err != nil {
			slog.Error("persisting timer failed", slog.Any("error", err))

			return
		}

		t.lastPersist = now
	}
}

// phaseCompleted detects the Pomodoro phase-complete signal: the countdown
// hit exactly zero on this transition and the engine stopped the outer run.
func phaseCompleted(prev, next *models.RunningTimerState) bool {
	return prev.Kind == models.KindPomodoro &&
		prev.Pomodoro != nil && next.Pomodoro != nil &&
		prev.Pomodoro.RemainingSeconds > 0 &&
		next.Pomodoro.RemainingSeconds == 0 &&
		!next.IsRunning
}

// completePhase finalizes the finished Pomodoro as a session and fires the
// best-effort user notification and session hook. Must be called with mu
// held.
func (t *Timer) completePhase(state *models.RunningTimerState, now time.Time) error {
	if _, err := t.finalize(state, now); err != nil {
		return err
	}

	if t.notificationsEnabled() {
		go t.notify("Pomodoro complete", "Timebox finished")
	}

	if cmd := t.opts.SessionCmd; cmd != "" {
		go func() {
			if err := runSessionCmd(cmd); err != nil {
				slog.Error("session command failed", slog.Any("error", err))
			}
		}()
	}

	return nil
}

// workMinutes prefers the synced settings singleton over config file
// defaults.
func (t *Timer) workMinutes() int {
	settings, err := t.db.GetSettings()
	if err == nil && settings != nil && settings.PomodoroWorkMinutes > 0 {
		return settings.PomodoroWorkMinutes
	}

	if t.opts != nil && t.opts.Pomodoro.WorkMinutes > 0 {
		return t.opts.Pomodoro.WorkMinutes
	}

	return 25
}

func (t *Timer) notificationsEnabled() bool {
	settings, err := t.db.GetSettings()
	if err == nil && settings != nil {
		return settings.NotificationsEnabled
	}

	return t.opts == nil || t.opts.Notify
}

func (t *Timer) sessionMutation(sess *models.Session) (models.Mutation, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return models.Mutation{}, err
	}

	entityID := sess.ID

	return models.Mutation{
		ID:         uuid.NewString(),
		DeviceID:   t.deviceID,
		Op:         models.OpUpsert,
		EntityType: models.EntitySession,
		EntityID:   &entityID,
		Payload:    payload,
		ClientTs:   t.now(),
		Status:     models.StatusPending,
	}, nil
}

// desktopNotify sends a desktop notification, falling back to terminal
// output when the platform refuses.
func desktopNotify(title, body string) {
	if err := beeep.Notify(title, body, ""); err != nil {
		pterm.Printfln("%s: %s", title, body)
	}
}

// runSessionCmd executes the user's configured hook command.
func runSessionCmd(sessionCmd string) error {
	cmdSlice, err := shellquote.Split(sessionCmd)
	if err != nil {
		return err
	}

	if len(cmdSlice) == 0 {
		return nil
	}

	return exec.Command(cmdSlice[0], cmdSlice[1:]...).Run()
}
