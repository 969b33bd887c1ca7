package store

import (
	"time"

	"github.com/tempora-app/tempora/internal/models"
)

// Pull is the set of validated remote entities applied in one transaction,
// together with the watermark to advance.
type Pull struct {
	Tasks    []models.Task
	Sessions []models.Session
	Settings *models.Settings
	State    models.SyncState
}

// DB is the persistence interface consumed by the timer store and the sync
// engine.
type DB interface {
	// GetRunningTimer returns the running-timer singleton, or nil if no
	// timer exists.
	GetRunningTimer() (*models.RunningTimerState, error)
	// SaveRunningTimer overwrites the running-timer singleton.
	SaveRunningTimer(s *models.RunningTimerState) error
	// DeleteRunningTimer removes the running-timer singleton.
	DeleteRunningTimer() error
	// FinalizeSession atomically persists a finished session, enqueues its
	// outbox mutation, and deletes the running-timer singleton.
	FinalizeSession(sess *models.Session, mut *models.Mutation) error
	// SplitRunningTimer atomically persists a finished session slice (may be
	// nil when the slice was suppressed) plus its mutation, and replaces the
	// running-timer singleton with next.
	SplitRunningTimer(sess *models.Session, mut *models.Mutation, next *models.RunningTimerState) error

	GetTask(id string) (*models.Task, error)
	// ListTasks returns all tasks, soft-deleted ones included.
	ListTasks() ([]models.Task, error)
	// SaveTaskWithMutation upserts a task and enqueues its outbox mutation in
	// the same transaction.
	SaveTaskWithMutation(t *models.Task, mut *models.Mutation) error

	GetSession(id string) (*models.Session, error)
	// GetSessions returns sessions whose start instant falls within
	// [start, end], in start order.
	GetSessions(start, end time.Time) ([]models.Session, error)
	// SaveSessionWithMutation upserts a session (e.g. a manual entry) and
	// enqueues its outbox mutation in the same transaction.
	SaveSessionWithMutation(s *models.Session, mut *models.Mutation) error

	// GetSettings returns the settings singleton, or nil if never written.
	GetSettings() (*models.Settings, error)
	SaveSettings(s *models.Settings) error
	// SaveSettingsWithMutation persists a settings edit together with its
	// outbox mutation.
	SaveSettingsWithMutation(s *models.Settings, mut *models.Mutation) error

	// EnqueueMutation appends a pending mutation to the outbox, assigning an
	// id if absent. Causal order follows the mutation's client timestamp.
	EnqueueMutation(mut *models.Mutation) error
	// ListPendingMutations returns up to limit pending mutations ordered by
	// client timestamp ascending.
	ListPendingMutations(limit int) ([]models.Mutation, error)
	// MarkMutationsApplied transitions the given mutations to applied,
	// clearing any prior error, atomically across the whole id set.
	MarkMutationsApplied(ids []string) error
	// MarkMutationRejected permanently records a remote rejection. Rejected
	// mutations are retained for diagnostics and never retried.
	MarkMutationRejected(id, reason string) error

	// GetSyncState returns the watermark singleton, or nil on first run.
	GetSyncState() (*models.SyncState, error)
	// ApplyPull merges remote entities over local ones (last-write-wins) and
	// advances the watermark, all in one transaction.
	ApplyPull(pull Pull) error

	// DeviceID returns the stable per-installation identifier, generating
	// and persisting it on first use.
	DeviceID() (string, error)

	Close() error
}
