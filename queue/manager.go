// Package queue records stock movements locally with immediate effect and
// replays them against the backend in order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitemanager/remote"
	"sitemanager/store"
)

// Submitter delivers one movement to the backend.
type Submitter interface {
	SubmitMovement(ctx context.Context, mv remote.Movement) error
}

// Options configure a Queue.
type Options struct {
	// RequireSignature rejects withdrawals without a signature image.
	RequireSignature bool
	// Guard, when set, is held for the whole of a drain pass. Sharing it
	// with snapshot replacement keeps a refresh from landing between a
	// submit and the removal of its mutation.
	Guard            sync.Locker
	Logger           *zap.Logger
}

// Queue is the durable mutation queue and its drainer.
type Queue struct {
	db               *store.DB
	remote           Submitter
	emitter          EventEmitter
	log              *zap.Logger
	requireSignature bool
	guard            sync.Locker

	draining atomic.Bool
	// stuck is a mutation whose failed delivery could not be recorded.
	stuck    atomic.Pointer[stuckMutation]
}

// New creates a Queue.
func New(db *store.DB, sub Submitter, emitter EventEmitter, opts Options) *Queue {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		db:               db,
		remote:           sub,
		emitter:          emitter,
		log:              log,
		requireSignature: opts.RequireSignature,
		guard:            opts.Guard,
	}
}

// Enqueue validates p, applies its delta to local stock and persists it for
// delivery, atomically. The returned mutation carries its FIFO id and client
// reference.
func (q *Queue) Enqueue(p Payload) (*store.Mutation, error) {
	if err := p.check(q.requireSignature); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	m := &store.Mutation{
		ClientRef: uuid.NewString(),
		ProjectID: p.ProjectID,
		ItemID:    p.ItemID,
		Delta:     p.Delta,
		Payload:   raw,
	}
	if _, err := q.db.EnqueueMutation(m); err != nil {
		return nil, err
	}
	q.log.Info("mutation enqueued",
		zap.Int64("id", m.ID),
		zap.String("client_ref", m.ClientRef),
		zap.String("project", m.ProjectID),
		zap.String("item", m.ItemID),
		zap.String("kind", p.Kind),
		zap.Stringer("delta", m.Delta))
	if q.emitter != nil {
		q.emitter.EmitMutationEnqueued(m.ID, m.ClientRef, m.ProjectID, m.ItemID, p.Kind, m.Delta)
	}
	return m, nil
}

// Validate checks p without enqueueing it.
func (q *Queue) Validate(p Payload) error {
	return p.check(q.requireSignature)
}

// Dismiss cancels a pending mutation and reverses its local stock effect.
func (q *Queue) Dismiss(id int64) (*store.Mutation, error) {
	m, err := q.db.DismissMutation(id)
	if err != nil {
		return nil, err
	}
	q.log.Info("mutation dismissed", zap.Int64("id", id), zap.String("client_ref", m.ClientRef))
	if q.emitter != nil {
		q.emitter.EmitMutationDismissed(id, m.ClientRef)
	}
	return m, nil
}

// Retry clears the recorded failure so the next drain tries the mutation again.
func (q *Queue) Retry(id int64) error {
	if err := q.db.ClearMutationError(id); err != nil {
		return err
	}
	if q.emitter != nil {
		q.emitter.EmitMutationRetried(id)
	}
	return nil
}

// PendingCount counts queued mutations, in flight or not.
func (q *Queue) PendingCount() (int, error) {
	return q.db.CountPendingMutations()
}

// WatchPendingCount streams the pending count, starting with the current value.
func (q *Queue) WatchPendingCount(ctx context.Context) <-chan int {
	return store.Watch(ctx, q.db, q.db.CountPendingMutations, store.TablePendingMutations)
}

// List returns the queue in delivery order with the payload summarized.
func (q *Queue) List() ([]Entry, error) {
	ms, err := q.db.ListMutations()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ms))
	for _, m := range ms {
		e := Entry{Mutation: m}
		if p, err := decodePayload(m); err == nil {
			e.Kind = p.Kind
			e.Notes = p.Notes
			e.HasSignature = p.Signature != ""
		}
		out = append(out, e)
	}
	return out, nil
}

// Draining reports whether a drain pass is running.
func (q *Queue) Draining() bool { return q.draining.Load() }
