// Package idle watches user-activity signals and forces a timer split when
// inactivity exceeds the configured threshold.
package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tempora-app/tempora/internal/models"
)

const pollInterval = time.Second

// TimerController is the slice of the timer store the watcher needs.
type TimerController interface {
	GetState() (*models.RunningTimerState, error)
	SplitAndPauseAt(endAt time.Time) error
}

// Watcher polls for inactivity while a timer runs. The presentation glue
// reports user activity through Touch; when the gap since the last touch
// reaches the threshold, the running timer is split at the last activity
// instant so idle time never lands in a recorded session.
type Watcher struct {
	timer            TimerController
	idlePauseSeconds int

	mu           sync.Mutex
	lastActivity time.Time

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// New creates a watcher. An idlePauseSeconds of zero or less disables idle
// detection entirely.
func New(timer TimerController, idlePauseSeconds int) *Watcher {
	w := &Watcher{
		timer:            timer,
		idlePauseSeconds: idlePauseSeconds,
		now:              time.Now,
	}
	w.lastActivity = w.now()

	return w
}

// Touch records a user-activity signal.
func (w *Watcher) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastActivity = w.now()
}

// Start begins the poll loop. It returns immediately; polling continues
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	if w.idlePauseSeconds <= 0 || w.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.poll(ctx)
}

// Stop cancels the poll loop and blocks until it has exited. No further
// splits occur after Stop returns.
func (w *Watcher) Stop() {
	if w.done == nil {
		return
	}

	w.cancel()
	<-w.done

	w.cancel = nil
	w.done = nil
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkIdle()
		}
	}
}

func (w *Watcher) checkIdle() {
	state, err := w.timer.GetState()
	if err != nil {
		slog.Error("reading timer state failed", slog.Any("error", err))

		return
	}

	if state == nil || !state.IsRunning {
		return
	}

	w.mu.Lock()
	last := w.lastActivity
	w.mu.Unlock()

	if w.now().Sub(last) < time.Duration(w.idlePauseSeconds)*time.Second {
		return
	}

	// The cut point is the last genuine activity, not now: idle time is
	// excluded from the recorded session.
	if err := w.timer.SplitAndPauseAt(last); err != nil {
		slog.Error("idle split failed", slog.Any("error", err))
	}
}
