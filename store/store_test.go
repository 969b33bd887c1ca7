package store_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/store"
)

var base = time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T) *store.Client {
	t.Helper()

	client, err := store.NewClient(filepath.Join(t.TempDir(), "tempora.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func newMutation(clientTs time.Time) models.Mutation {
	entityID := uuid.NewString()

	return models.Mutation{
		ID:         uuid.NewString(),
		DeviceID:   "device-1",
		Op:         models.OpUpsert,
		EntityType: models.EntitySession,
		EntityID:   &entityID,
		Payload:    []byte(`{}`),
		ClientTs:   clientTs,
	}
}

func newSession(startAt time.Time) models.Session {
	end := startAt.Add(time.Hour)
	dur := int64(3600)

	return models.Session{
		ID:              uuid.NewString(),
		TaskID:          uuid.NewString(),
		StartAt:         startAt,
		EndAt:           &end,
		DurationSeconds: &dur,
		Kind:            models.KindNormal,
		Source:          models.SourceTimer,
		CreatedAt:       startAt,
		UpdatedAt:       startAt,
	}
}

func TestOutboxOrderingAndLimit(t *testing.T) {
	db := newTestClient(t)

	// Enqueue out of causal order; listing must be clientTs ascending.
	second := newMutation(base.Add(time.Minute))
	first := newMutation(base)
	third := newMutation(base.Add(2 * time.Minute))

	for _, m := range []*models.Mutation{&second, &first, &third} {
		require.NoError(t, db.EnqueueMutation(m))
	}

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, third.ID, pending[2].ID)

	limited, err := db.ListPendingMutations(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, first.ID, limited[0].ID)
}

func TestMarkMutationLifecycle(t *testing.T) {
	db := newTestClient(t)

	applied := newMutation(base)
	rejected := newMutation(base.Add(time.Second))
	untouched := newMutation(base.Add(2 * time.Second))

	for _, m := range []*models.Mutation{&applied, &rejected, &untouched} {
		require.NoError(t, db.EnqueueMutation(m))
	}

	require.NoError(t, db.MarkMutationsApplied([]string{applied.ID}))
	require.NoError(t, db.MarkMutationRejected(rejected.ID, "duplicate entity"))

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, untouched.ID, pending[0].ID)

	// Unknown ids are skipped, not errors: the remote may re-confirm a
	// mutation resolved in an earlier round.
	assert.NoError(t, db.MarkMutationsApplied([]string{uuid.NewString()}))
}

func TestFinalizeSession(t *testing.T) {
	db := newTestClient(t)

	state := models.RunningTimerState{
		SessionID:    uuid.NewString(),
		TaskID:       uuid.NewString(),
		Kind:         models.KindNormal,
		StartedAtUTC: base,
		IsRunning:    true,
		UpdatedAt:    base,
	}
	require.NoError(t, db.SaveRunningTimer(&state))

	sess := newSession(base)
	mut := newMutation(base.Add(time.Hour))

	require.NoError(t, db.FinalizeSession(&sess, &mut))

	got, err := db.GetSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	timer, err := db.GetRunningTimer()
	require.NoError(t, err)
	assert.Nil(t, timer)
}

func TestSplitRunningTimerWithSuppressedSlice(t *testing.T) {
	db := newTestClient(t)

	next := models.RunningTimerState{
		SessionID:    uuid.NewString(),
		TaskID:       uuid.NewString(),
		Kind:         models.KindNormal,
		StartedAtUTC: base,
		IsRunning:    false,
		UpdatedAt:    base,
	}

	require.NoError(t, db.SplitRunningTimer(nil, nil, &next))

	timer, err := db.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, timer)
	assert.Equal(t, next.SessionID, timer.SessionID)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestGetSessionsRange(t *testing.T) {
	db := newTestClient(t)

	inside := newSession(base.Add(2 * time.Hour))
	early := newSession(base.Add(-48 * time.Hour))
	late := newSession(base.Add(200 * time.Hour))

	for _, s := range []*models.Session{&inside, &early, &late} {
		mut := newMutation(s.StartAt)
		require.NoError(t, db.SaveSessionWithMutation(s, &mut))
	}

	got, err := db.GetSessions(base, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
}

func TestApplyPull(t *testing.T) {
	db := newTestClient(t)

	local := newSession(base)
	localMut := newMutation(base)
	require.NoError(t, db.SaveSessionWithMutation(&local, &localMut))

	newer := local
	newer.UpdatedAt = local.UpdatedAt.Add(time.Minute)
	note := "edited remotely"
	newer.Note = &note

	stale := newSession(base.Add(time.Hour))
	staleMut := newMutation(base.Add(time.Hour))
	require.NoError(t, db.SaveSessionWithMutation(&stale, &staleMut))

	older := stale
	older.UpdatedAt = stale.UpdatedAt.Add(-time.Minute)
	olderNote := "should not appear"
	older.Note = &olderNote

	remoteTask := models.Task{
		ID:        uuid.NewString(),
		Title:     "From remote",
		CreatedAt: base,
		UpdatedAt: base,
	}

	serverTs := base.Add(2 * time.Hour)

	err := db.ApplyPull(store.Pull{
		Tasks:    []models.Task{remoteTask},
		Sessions: []models.Session{newer, older},
		State: models.SyncState{
			DeviceID:     "device-1",
			LastServerTs: &serverTs,
			UpdatedAt:    serverTs,
		},
	})
	require.NoError(t, err)

	gotNewer, err := db.GetSession(local.ID)
	require.NoError(t, err)
	require.NotNil(t, gotNewer.Note)
	assert.Equal(t, "edited remotely", *gotNewer.Note)

	gotStale, err := db.GetSession(stale.ID)
	require.NoError(t, err)
	assert.Nil(t, gotStale.Note)

	gotTask, err := db.GetTask(remoteTask.ID)
	require.NoError(t, err)
	require.NotNil(t, gotTask)

	state, err := db.GetSyncState()
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastServerTs)
	assert.True(t, state.LastServerTs.Equal(serverTs))

	// Absent remote settings never clears the local singleton.
	settings, err := db.GetSettings()
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestSaveSettingsWithMutation(t *testing.T) {
	db := newTestClient(t)

	settings := models.Settings{
		Timezone:                  "local",
		WeekStartsOn:              1,
		IdlePauseSeconds:          300,
		PomodoroWorkMinutes:       25,
		PomodoroShortBreakMinutes: 5,
		PomodoroLongBreakMinutes:  15,
		PomodoroLongBreakEvery:    4,
		NotificationsEnabled:      true,
		CreatedAt:                 base,
		UpdatedAt:                 base,
	}

	mut := newMutation(base)
	mut.EntityType = models.EntitySettings
	mut.EntityID = nil

	require.NoError(t, db.SaveSettingsWithMutation(&settings, &mut))

	got, err := db.GetSettings()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 25, got.PomodoroWorkMinutes)

	pending, err := db.ListPendingMutations(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.EntitySettings, pending[0].EntityType)
}

func TestDeviceIDIsStable(t *testing.T) {
	db := newTestClient(t)

	first, err := db.DeviceID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := db.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMigrateLegacyLastTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tempora.db")

	lastTickMs := base.UnixMilli()

	legacy := map[string]any{
		"sessionId":          uuid.NewString(),
		"taskId":             uuid.NewString(),
		"kind":               "normal",
		"startedAtUtc":       base.Add(-time.Hour).Format(time.RFC3339),
		"accumulatedSeconds": 120,
		"isRunning":          true,
		"lastTickMs":         lastTickMs,
		"updatedAt":          base.Format(time.RFC3339),
	}

	raw, err := json.Marshal(legacy)
	require.NoError(t, err)

	// Lay down a v1 database by hand: a timer record with the legacy
	// last-tick field and no schema version marker.
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{"timer", "meta"} {
			if _, berr := tx.CreateBucketIfNotExists([]byte(name)); berr != nil {
				return berr
			}
		}

		return tx.Bucket([]byte("timer")).Put([]byte("singleton"), raw)
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	client, err := store.NewClient(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	state, err := client.GetRunningTimer()
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastTick)
	assert.True(t, state.LastTick.Equal(time.UnixMilli(lastTickMs)))
	assert.Equal(t, int64(120), state.AccumulatedSeconds)
}
