// Package store connects to the data store and manages tasks, sessions, the
// running timer, the mutation outbox, and the sync watermark.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/internal/timeutil"
	"github.com/tempora-app/tempora/merge"
)

const (
	taskBucket         = "tasks"
	sessionBucket      = "sessions"
	sessionStartBucket = "sessions_by_start"
	settingsBucket     = "settings"
	timerBucket        = "timer"
	outboxBucket       = "outbox"
	outboxIndexBucket  = "outbox_ids"
	syncStateBucket    = "syncstate"
	metaBucket         = "meta"
)

const (
	singletonKey = "singleton"
	deviceIDKey  = "device_id"
)

var buckets = []string{
	taskBucket,
	sessionBucket,
	sessionStartBucket,
	settingsBucket,
	timerBucket,
	outboxBucket,
	outboxIndexBucket,
	syncStateBucket,
	metaBucket,
}

// Client is a BoltDB database client.
type Client struct {
	*bolt.DB
}

// open creates or opens a database and locks it.
func openDB(pathToDB string) (*bolt.DB, error) {
	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(
		pathToDB,
		fileMode,
		&bolt.Options{Timeout: 1 * time.Second},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseOpen) ||
			errors.Is(err, bolt.ErrTimeout) {
			return nil, errAlreadyRunning
		}

		return nil, err
	}

	return db, nil
}

// NewClient returns a wrapper to a BoltDB connection. Buckets are created on
// first use and any pending schema upgrade runs before the client is handed
// out.
func NewClient(pathToDB string) (*Client, error) {
	db, err := openDB(pathToDB)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, berr := tx.CreateBucketIfNotExists([]byte(name)); berr != nil {
				return berr
			}
		}

		return migrate(tx)
	})
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Client{db}, nil
}

// outboxKey orders mutations by client timestamp; the id suffix keeps keys
// unique when timestamps collide.
func outboxKey(m *models.Mutation) []byte {
	key := append(timeutil.ToKey(m.ClientTs), '|')

	return append(key, []byte(m.ID)...)
}

func sessionStartKey(s *models.Session) []byte {
	key := append(timeutil.ToKey(s.StartAt), '|')

	return append(key, []byte(s.ID)...)
}

func (c *Client) GetRunningTimer() (*models.RunningTimerState, error) {
	var state *models.RunningTimerState

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(timerBucket)).Get([]byte(singletonKey))
		if len(v) == 0 {
			return nil
		}

		state = &models.RunningTimerState{}

		return json.Unmarshal(v, state)
	})

	return state, err
}

func saveRunningTimerTx(tx *bolt.Tx, s *models.RunningTimerState) error {
	v, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return tx.Bucket([]byte(timerBucket)).Put([]byte(singletonKey), v)
}

func (c *Client) SaveRunningTimer(s *models.RunningTimerState) error {
	return c.Update(func(tx *bolt.Tx) error {
		return saveRunningTimerTx(tx, s)
	})
}

func (c *Client) DeleteRunningTimer() error {
	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(timerBucket)).Delete([]byte(singletonKey))
	})
}

// putSessionTx upserts a session and maintains the start-instant index. A
// stale index entry is removed when an existing session's start changed.
func putSessionTx(tx *bolt.Tx, s *models.Session) error {
	sessions := tx.Bucket([]byte(sessionBucket))
	index := tx.Bucket([]byte(sessionStartBucket))

	if prev := sessions.Get([]byte(s.ID)); len(prev) != 0 {
		var old models.Session

		if err := json.Unmarshal(prev, &old); err != nil {
			return err
		}

		if !old.StartAt.Equal(s.StartAt) {
			if err := index.Delete(sessionStartKey(&old)); err != nil {
				return err
			}
		}
	}

	v, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if err := sessions.Put([]byte(s.ID), v); err != nil {
		return err
	}

	return index.Put(sessionStartKey(s), []byte(s.ID))
}

// enqueueMutationTx appends a pending mutation, assigning an id if absent.
func enqueueMutationTx(tx *bolt.Tx, m *models.Mutation) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	m.Status = models.StatusPending
	m.Error = nil

	v, err := json.Marshal(m)
	if err != nil {
		return err
	}

	key := outboxKey(m)

	if err := tx.Bucket([]byte(outboxBucket)).Put(key, v); err != nil {
		return err
	}

	return tx.Bucket([]byte(outboxIndexBucket)).Put([]byte(m.ID), key)
}

func (c *Client) FinalizeSession(sess *models.Session, mut *models.Mutation) error {
	return c.Update(func(tx *bolt.Tx) error {
		if err := putSessionTx(tx, sess); err != nil {
			return err
		}

		if err := enqueueMutationTx(tx, mut); err != nil {
			return err
		}

		return tx.Bucket([]byte(timerBucket)).Delete([]byte(singletonKey))
	})
}

func (c *Client) SplitRunningTimer(
	sess *models.Session,
	mut *models.Mutation,
	next *models.RunningTimerState,
) error {
	return c.Update(func(tx *bolt.Tx) error {
		if sess != nil {
			if err := putSessionTx(tx, sess); err != nil {
				return err
			}

			if err := enqueueMutationTx(tx, mut); err != nil {
				return err
			}
		}

		return saveRunningTimerTx(tx, next)
	})
}

func (c *Client) GetTask(id string) (*models.Task, error) {
	var task *models.Task

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(taskBucket)).Get([]byte(id))
		if len(v) == 0 {
			return nil
		}

		task = &models.Task{}

		return json.Unmarshal(v, task)
	})

	return task, err
}

func (c *Client) ListTasks() ([]models.Task, error) {
	var tasks []models.Task

	err := c.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(taskBucket)).ForEach(func(_, v []byte) error {
			var t models.Task

			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}

			tasks = append(tasks, t)

			return nil
		})
	})

	return tasks, err
}

func putTaskTx(tx *bolt.Tx, t *models.Task) error {
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return tx.Bucket([]byte(taskBucket)).Put([]byte(t.ID), v)
}

func (c *Client) SaveTaskWithMutation(t *models.Task, mut *models.Mutation) error {
	return c.Update(func(tx *bolt.Tx) error {
		if err := putTaskTx(tx, t); err != nil {
			return err
		}

		return enqueueMutationTx(tx, mut)
	})
}

func (c *Client) GetSession(id string) (*models.Session, error) {
	var sess *models.Session

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
		if len(v) == 0 {
			return nil
		}

		sess = &models.Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

func (c *Client) GetSessions(start, end time.Time) ([]models.Session, error) {
	var sessions []models.Session

	err := c.View(func(tx *bolt.Tx) error {
		sessBucket := tx.Bucket([]byte(sessionBucket))
		cur := tx.Bucket([]byte(sessionStartBucket)).Cursor()

		min := timeutil.ToKey(start)
		max := append(timeutil.ToKey(end), '~') // '~' sorts after the id separator

		for k, id := cur.Seek(min); k != nil && bytes.Compare(k, max) <= 0; k, id = cur.Next() {
			v := sessBucket.Get(id)
			if len(v) == 0 {
				continue
			}

			var s models.Session

			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}

			sessions = append(sessions, s)
		}

		return nil
	})

	return sessions, err
}

func (c *Client) SaveSessionWithMutation(s *models.Session, mut *models.Mutation) error {
	return c.Update(func(tx *bolt.Tx) error {
		if err := putSessionTx(tx, s); err != nil {
			return err
		}

		return enqueueMutationTx(tx, mut)
	})
}

func (c *Client) GetSettings() (*models.Settings, error) {
	var settings *models.Settings

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(settingsBucket)).Get([]byte(singletonKey))
		if len(v) == 0 {
			return nil
		}

		settings = &models.Settings{}

		return json.Unmarshal(v, settings)
	})

	return settings, err
}

func putSettingsTx(tx *bolt.Tx, s *models.Settings) error {
	v, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return tx.Bucket([]byte(settingsBucket)).Put([]byte(singletonKey), v)
}

func (c *Client) SaveSettings(s *models.Settings) error {
	return c.Update(func(tx *bolt.Tx) error {
		return putSettingsTx(tx, s)
	})
}

func (c *Client) SaveSettingsWithMutation(s *models.Settings, mut *models.Mutation) error {
	return c.Update(func(tx *bolt.Tx) error {
		if err := putSettingsTx(tx, s); err != nil {
			return err
		}

		return enqueueMutationTx(tx, mut)
	})
}

func (c *Client) EnqueueMutation(mut *models.Mutation) error {
	return c.Update(func(tx *bolt.Tx) error {
		return enqueueMutationTx(tx, mut)
	})
}

func (c *Client) ListPendingMutations(limit int) ([]models.Mutation, error) {
	var pending []models.Mutation

	err := c.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(outboxBucket)).Cursor()

		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var m models.Mutation

			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}

			if m.Status != models.StatusPending {
				continue
			}

			pending = append(pending, m)
			if len(pending) == limit {
				return nil
			}
		}

		return nil
	})

	return pending, err
}

// updateMutationTx rewrites the mutation with the given id in place. Missing
// ids are skipped: the remote may confirm a mutation that was already
// resolved in an earlier round.
func updateMutationTx(
	tx *bolt.Tx,
	id string,
	fn func(m *models.Mutation),
) error {
	key := tx.Bucket([]byte(outboxIndexBucket)).Get([]byte(id))
	if len(key) == 0 {
		return nil
	}

	outbox := tx.Bucket([]byte(outboxBucket))

	v := outbox.Get(key)
	if len(v) == 0 {
		return nil
	}

	var m models.Mutation

	if err := json.Unmarshal(v, &m); err != nil {
		return err
	}

	fn(&m)

	nv, err := json.Marshal(&m)
	if err != nil {
		return err
	}

	return outbox.Put(key, nv)
}

func (c *Client) MarkMutationsApplied(ids []string) error {
	return c.Update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			err := updateMutationTx(tx, id, func(m *models.Mutation) {
				m.Status = models.StatusApplied
				m.Error = nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (c *Client) MarkMutationRejected(id, reason string) error {
	return c.Update(func(tx *bolt.Tx) error {
		return updateMutationTx(tx, id, func(m *models.Mutation) {
			m.Status = models.StatusRejected
			m.Error = &reason
		})
	})
}

func (c *Client) GetSyncState() (*models.SyncState, error) {
	var state *models.SyncState

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(syncStateBucket)).Get([]byte(singletonKey))
		if len(v) == 0 {
			return nil
		}

		state = &models.SyncState{}

		return json.Unmarshal(v, state)
	})

	return state, err
}

// ApplyPull lays remote entities over local ones under the last-write-wins
// policy and advances the watermark. The whole pull is one transaction: a
// failure on any entity leaves every local entity and the watermark
// untouched.
func (c *Client) ApplyPull(pull Pull) error {
	return c.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket([]byte(taskBucket))

		for i := range pull.Tasks {
			remote := &pull.Tasks[i]

			var local *models.Task

			if v := tasks.Get([]byte(remote.ID)); len(v) != 0 {
				local = &models.Task{}

				if err := json.Unmarshal(v, local); err != nil {
					return err
				}
			}

			if merge.ShouldApplyRemoteTask(local, remote) {
				if err := putTaskTx(tx, remote); err != nil {
					return err
				}
			}
		}

		sessions := tx.Bucket([]byte(sessionBucket))

		for i := range pull.Sessions {
			remote := &pull.Sessions[i]

			var local *models.Session

			if v := sessions.Get([]byte(remote.ID)); len(v) != 0 {
				local = &models.Session{}

				if err := json.Unmarshal(v, local); err != nil {
					return err
				}
			}

			if merge.ShouldApplyRemoteSession(local, remote) {
				if err := putSessionTx(tx, remote); err != nil {
					return err
				}
			}
		}

		if pull.Settings != nil {
			var local *models.Settings

			if v := tx.Bucket([]byte(settingsBucket)).Get([]byte(singletonKey)); len(v) != 0 {
				local = &models.Settings{}

				if err := json.Unmarshal(v, local); err != nil {
					return err
				}
			}

			if merge.ShouldApplyRemoteSettings(local, pull.Settings) {
				if err := putSettingsTx(tx, pull.Settings); err != nil {
					return err
				}
			}
		}

		v, err := json.Marshal(&pull.State)
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(syncStateBucket)).Put([]byte(singletonKey), v)
	})
}

// DeviceID returns the stable per-installation identifier, generating and
// persisting one on first use.
func (c *Client) DeviceID() (string, error) {
	var id string

	err := c.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))

		if v := meta.Get([]byte(deviceIDKey)); len(v) != 0 {
			id = string(v)

			return nil
		}

		id = uuid.NewString()

		return meta.Put([]byte(deviceIDKey), []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("resolving device id: %w", err)
	}

	return id, nil
}
