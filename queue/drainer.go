package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitemanager/remote"
	"sitemanager/store"
)

// KindStorage marks a mutation that failed locally rather than remotely.
const KindStorage = "storage"

// Drain replays pending mutations oldest first, one at a time. The first
// failure reverts that mutation to pending and ends the pass, leaving every
// later mutation untouched. A drain started while another is running returns
// immediately with Skipped set.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	if !q.draining.CompareAndSwap(false, true) {
		q.log.Debug("drain already running, skipped")
		return DrainResult{Skipped: true}
	}
	defer q.draining.Store(false)
	if q.guard != nil {
		q.guard.Lock()
		defer q.guard.Unlock()
	}

	start := time.Now()
	var res DrainResult
	if s, err := q.unstick(); err != nil {
		res = q.halt(res, store.Mutation{ID: s.id, ClientRef: s.clientRef}, KindStorage, err)
	} else {
		res = q.drain(ctx)
	}
	res.Took = time.Since(start)
	if n, err := q.db.CountPendingMutations(); err == nil {
		res.Remaining = n
	}
	return res
}

func (q *Queue) drain(ctx context.Context) DrainResult {
	var res DrainResult
	pending, err := q.db.ListPendingMutations(0)
	if err != nil {
		res.Err = err
		res.ErrKind = KindStorage
		return res
	}
	if len(pending) == 0 {
		return res
	}

	q.log.Info("drain started", zap.Int("pending", len(pending)))
	if q.emitter != nil {
		q.emitter.EmitDrainStarted(len(pending))
	}

	for _, m := range pending {
		if err := q.db.MarkMutationInFlight(m.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Dismissed after the list was read.
				continue
			}
			return q.halt(res, m, KindStorage, err)
		}

		if err := q.deliver(ctx, m); err != nil {
			kind := remote.KindOf(err)
			if rerr := q.db.RevertMutation(m.ID, err.Error(), kind); rerr != nil {
				// Left in flight, the mutation would be passed over by
				// later drains. Hold the queue until the revert lands.
				q.log.Error("revert mutation", zap.Int64("id", m.ID), zap.Error(rerr))
				q.stuck.Store(&stuckMutation{id: m.ID, clientRef: m.ClientRef, lastErr: err.Error(), kind: kind})
			}
			return q.halt(res, m, kind, err)
		}

		if err := q.db.DeleteMutation(m.ID); err != nil {
			// Delivered but still queued. It stays in flight until the next
			// start recovers it. The redelivery is absorbed by the backend's
			// unique constraint on client_ref.
			res.Delivered++
			return q.halt(res, m, KindStorage, err)
		}
		res.Delivered++
		q.log.Info("mutation delivered", zap.Int64("id", m.ID), zap.String("client_ref", m.ClientRef))
	}

	q.log.Info("drain completed", zap.Int("delivered", res.Delivered))
	if q.emitter != nil {
		q.emitter.EmitDrainCompleted(res.Delivered)
	}
	return res
}

type stuckMutation struct {
	id        int64
	clientRef string
	lastErr   string
	kind      string
}

// unstick retries the revert of a mutation left in flight by an earlier
// pass. No mutation is delivered while it fails.
func (q *Queue) unstick() (*stuckMutation, error) {
	s := q.stuck.Load()
	if s == nil {
		return nil, nil
	}
	if err := q.db.RevertMutation(s.id, s.lastErr, s.kind); err != nil {
		return s, fmt.Errorf("queue held, mutation %d still in flight: %w", s.id, err)
	}
	q.log.Info("stuck mutation returned to pending", zap.Int64("id", s.id))
	q.stuck.Store(nil)
	return s, nil
}

// Held reports whether drains are refused until an in-flight mutation can
// be returned to pending.
func (q *Queue) Held() bool { return q.stuck.Load() != nil }

func (q *Queue) deliver(ctx context.Context, m store.Mutation) error {
	p, err := decodePayload(m)
	if err != nil {
		return fmt.Errorf("decode payload of mutation %d: %w", m.ID, err)
	}
	return q.remote.SubmitMovement(ctx, movement(m, p))
}

func (q *Queue) halt(res DrainResult, m store.Mutation, kind string, err error) DrainResult {
	res.HaltedID = m.ID
	res.ErrKind = kind
	res.Err = err
	q.log.Warn("drain halted",
		zap.Int64("id", m.ID),
		zap.String("client_ref", m.ClientRef),
		zap.String("kind", kind),
		zap.Int("delivered", res.Delivered),
		zap.Error(err))
	if q.emitter != nil {
		q.emitter.EmitDrainHalted(m.ID, res.Delivered, kind, err)
	}
	return res
}
