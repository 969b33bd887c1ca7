// Package sync orchestrates push-then-pull synchronization with the remote
// store: pending outbox mutations are drained first, then canonical entities
// are pulled since the last watermark and merged locally.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/store"
)

// DefaultBatchSize bounds how many pending mutations one push carries.
const DefaultBatchSize = 250

const requestTimeout = 30 * time.Second

type wireMutation struct {
	ID         string            `json:"id"`
	DeviceID   string            `json:"deviceId"`
	Op         models.MutationOp `json:"op"`
	EntityType models.EntityType `json:"entityType"`
	EntityID   *string           `json:"entityId"`
	Payload    json.RawMessage   `json:"payload"`
	ClientTs   time.Time         `json:"clientTs"`
}

type pushRequest struct {
	Mutations []wireMutation `json:"mutations"`
}

type rejectedMutation struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type pushResponse struct {
	Applied  []string           `json:"applied"`
	Rejected []rejectedMutation `json:"rejected"`
	ServerTs time.Time          `json:"serverTs"`
}

type pullRequest struct {
	SinceServerTs *time.Time `json:"sinceServerTs,omitempty"`
}

type pullResponse struct {
	Tasks    []json.RawMessage `json:"tasks"`
	Sessions []json.RawMessage `json:"sessions"`
	Settings json.RawMessage   `json:"settings"`
	ServerTs time.Time         `json:"serverTs"`
}

// Engine runs sync rounds. It is safe for concurrent use, but only one round
// is ever in flight: concurrent callers get ErrSyncInFlight instead of a
// second round that could double-push a batch or race the watermark write.
type Engine struct {
	db        store.DB
	baseURL   string
	deviceID  string
	batchSize int
	client    *http.Client

	mu sync.Mutex
}

// Option is a function that modifies an Engine.
type Option func(*Engine)

// WithBatchSize overrides the push batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// New creates a sync engine against the remote at baseURL.
func New(db store.DB, baseURL, deviceID string, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		baseURL:   baseURL,
		deviceID:  deviceID,
		batchSize: DefaultBatchSize,
		client:    &http.Client{Timeout: requestTimeout},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SyncNow performs one push-then-pull round. A transport failure aborts the
// round leaving the outbox and watermark untouched; the caller retries the
// whole round later. Remote per-mutation rejections are recorded permanently
// without aborting.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.baseURL == "" {
		return ErrNoEndpoint
	}

	if !e.mu.TryLock() {
		return ErrSyncInFlight
	}
	defer e.mu.Unlock()

	syncState, err := e.db.GetSyncState()
	if err != nil {
		return err
	}

	if err := e.push(ctx); err != nil {
		return err
	}

	return e.pull(ctx, syncState)
}

func (e *Engine) push(ctx context.Context) error {
	pending, err := e.db.ListPendingMutations(e.batchSize)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	body := pushRequest{Mutations: make([]wireMutation, 0, len(pending))}

	for i := range pending {
		m := &pending[i]

		if err := m.Validate(); err != nil {
			return fmt.Errorf("outbox mutation %s: %w", m.ID, err)
		}

		body.Mutations = append(body.Mutations, wireMutation{
			ID:         m.ID,
			DeviceID:   m.DeviceID,
			Op:         m.Op,
			EntityType: m.EntityType,
			EntityID:   m.EntityID,
			Payload:    m.Payload,
			ClientTs:   m.ClientTs,
		})
	}

	var resp pushResponse

	if err := e.post(ctx, "push", body, &resp); err != nil {
		return err
	}

	if err := e.db.MarkMutationsApplied(resp.Applied); err != nil {
		return err
	}

	for _, r := range resp.Rejected {
		slog.Warn(
			"mutation rejected by remote",
			slog.String("id", r.ID),
			slog.String("reason", r.Reason),
		)

		if err := e.db.MarkMutationRejected(r.ID, r.Reason); err != nil {
			return err
		}
	}

	return nil
}

// pull fetches entities changed since the watermark, validates every one,
// and applies them in a single local transaction together with the watermark
// advance. One bad entity aborts the whole pull: a partially applied pull
// with an advanced watermark could skip data forever, so all-or-nothing is
// the only safe default.
func (e *Engine) pull(ctx context.Context, syncState *models.SyncState) error {
	var body pullRequest
	if syncState != nil {
		body.SinceServerTs = syncState.LastServerTs
	}

	var resp pullResponse

	if err := e.post(ctx, "pull", body, &resp); err != nil {
		return err
	}

	pull := store.Pull{}

	for _, raw := range resp.Tasks {
		var t models.Task

		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("decoding pulled task: %w", err)
		}

		if err := t.Validate(); err != nil {
			return fmt.Errorf("pulled task %s: %w", t.ID, err)
		}

		pull.Tasks = append(pull.Tasks, t)
	}

	for _, raw := range resp.Sessions {
		var s models.Session

		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decoding pulled session: %w", err)
		}

		if err := s.Validate(); err != nil {
			return fmt.Errorf("pulled session %s: %w", s.ID, err)
		}

		pull.Sessions = append(pull.Sessions, s)
	}

	// Absent remote settings is a no-op, never destructive.
	if len(resp.Settings) != 0 && string(resp.Settings) != "null" {
		var s models.Settings

		if err := json.Unmarshal(resp.Settings, &s); err != nil {
			return fmt.Errorf("decoding pulled settings: %w", err)
		}

		if err := s.Validate(); err != nil {
			return fmt.Errorf("pulled settings: %w", err)
		}

		pull.Settings = &s
	}

	serverTs := resp.ServerTs

	pull.State = models.SyncState{
		DeviceID:     e.deviceID,
		LastServerTs: &serverTs,
		UpdatedAt:    time.Now(),
	}

	return e.db.ApplyPull(pull)
}

func (e *Engine) post(ctx context.Context, op string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := e.baseURL + "/api/sync/" + op

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Id", e.deviceID)

	resp, err := e.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: err}
	}

	return nil
}
