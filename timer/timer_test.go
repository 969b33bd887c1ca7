package timer

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/config"
	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/store"
)

// fakeClock is safe for concurrent reads from the tick driver.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestTimer(t *testing.T, cfg *config.Config) (*Timer, *store.Client, *fakeClock) {
	t.Helper()

	db, err := store.NewClient(filepath.Join(t.TempDir(), "tempora.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	tm, err := New(db, cfg)
	require.NoError(t, err)

	t.Cleanup(tm.Shutdown)

	clock := &fakeClock{
		now: time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC),
	}
	tm.now = clock.Now

	return tm, db, clock
}

func TestStartStopProducesSessionAndOutboxRecord(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	_, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)

	sess, err := tm.Stop()
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, sess.DurationSeconds)
	assert.Equal(t, int64(20), *sess.DurationSeconds)
	assert.Equal(t, models.SourceTimer, sess.Source)

	stored, err := db.GetSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.EntitySession, pending[0].EntityType)
	require.NotNil(t, pending[0].EntityID)
	assert.Equal(t, sess.ID, *pending[0].EntityID)

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestShortSessionSuppressed(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	_, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)

	sess, err := tm.Stop()
	require.NoError(t, err)
	assert.Nil(t, sess)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestPausedIntervalNotCredited(t *testing.T) {
	tm, _, clock := newTestTimer(t, &config.Config{})

	_, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	tm.tickOnce()

	require.NoError(t, tm.Pause())

	clock.Advance(100 * time.Second)

	require.NoError(t, tm.Resume())

	clock.Advance(5 * time.Second)
	tm.tickOnce()

	sess, err := tm.Stop()
	require.NoError(t, err)
	require.NotNil(t, sess)
	// 20s before the pause plus 5s after; the 100s pause never counts.
	assert.Equal(t, int64(25), *sess.DurationSeconds)
}

func TestTickPersistenceThrottle(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	started, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	// A changed tick inside the persistence window must not be written:
	// the stored state keeps the values from the start.
	clock.Advance(3 * time.Second)
	tm.tickOnce()

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Zero(t, state.AccumulatedSeconds)
	require.NotNil(t, state.LastTick)
	assert.True(t, state.LastTick.Equal(started.StartedAtUTC))

	// Once the window has passed, the full elapsed time lands in one write.
	clock.Advance(3 * time.Second)
	tm.tickOnce()

	state, err = db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(6), state.AccumulatedSeconds)
	require.NotNil(t, state.LastTick)
	assert.True(t, state.LastTick.Equal(clock.Now()))
}

func TestSplitAndPauseAt(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	started, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	idleStart := clock.Now().Add(20 * time.Second)

	clock.Advance(30 * time.Second)
	tm.tickOnce()

	// The slice ends at the last-activity instant, not at detection time.
	require.NoError(t, tm.SplitAndPauseAt(idleStart))

	sess, err := db.GetSession(started.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(20), *sess.DurationSeconds)

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.IsRunning)
	assert.Equal(t, "task-1", state.TaskID)
	assert.True(t, state.StartedAtUTC.Equal(idleStart))
	assert.Zero(t, state.AccumulatedSeconds)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSplitSuppressesShortSlice(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	_, err := tm.Start("task-1", models.KindNormal)
	require.NoError(t, err)

	splitAt := clock.Now().Add(5 * time.Second)
	clock.Advance(5 * time.Second)

	require.NoError(t, tm.SplitAndPauseAt(splitAt))

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.IsRunning)
}

func TestPomodoroPhaseCompletion(t *testing.T) {
	cfg := &config.Config{
		Pomodoro: config.PomodoroConfig{WorkMinutes: 1},
		Notify:   true,
	}

	tm, db, clock := newTestTimer(t, cfg)

	notified := make(chan string, 1)
	tm.notify = func(title, _ string) {
		notified <- title
	}

	started, err := tm.Start("task-1", models.KindPomodoro)
	require.NoError(t, err)
	require.NotNil(t, started.Pomodoro)
	assert.Equal(t, int64(60), started.Pomodoro.RemainingSeconds)

	clock.Advance(time.Minute)
	tm.tickOnce()

	sess, err := db.GetSession(started.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(60), *sess.DurationSeconds)
	assert.Equal(t, models.KindPomodoro, sess.Kind)

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	assert.Nil(t, state)

	select {
	case title := <-notified:
		assert.Equal(t, "Pomodoro complete", title)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a completion notification")
	}
}

func TestRecoverAppliesCatchUpTick(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	lastTick := clock.Now().Add(-2 * time.Minute)

	require.NoError(t, db.SaveRunningTimer(&models.RunningTimerState{
		SessionID:          "sess-1",
		TaskID:             "task-1",
		Kind:               models.KindNormal,
		StartedAtUTC:       clock.Now().Add(-10 * time.Minute),
		AccumulatedSeconds: 10,
		IsRunning:          true,
		LastTick:           &lastTick,
		UpdatedAt:          lastTick,
	}))

	require.NoError(t, tm.Recover())

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(130), state.AccumulatedSeconds)
	require.NotNil(t, state.LastTick)
	assert.True(t, state.LastTick.Equal(clock.Now()))
}

func TestRecoverIgnoresPausedTimer(t *testing.T) {
	tm, db, clock := newTestTimer(t, &config.Config{})

	require.NoError(t, db.SaveRunningTimer(&models.RunningTimerState{
		SessionID:          "sess-1",
		TaskID:             "task-1",
		Kind:               models.KindNormal,
		StartedAtUTC:       clock.Now().Add(-time.Hour),
		AccumulatedSeconds: 42,
		IsRunning:          false,
		UpdatedAt:          clock.Now().Add(-time.Hour),
	}))

	require.NoError(t, tm.Recover())

	state, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(42), state.AccumulatedSeconds)
	assert.False(t, state.IsRunning)
}
