package store

import (
	"context"
	"sync"
)

// Subscription receives a signal after each committed write touching one of
// its tables. Signals coalesce: a slow reader sees at most one queued signal.
type Subscription struct {
	C      <-chan struct{}
	c      chan struct{}
	tables map[string]struct{}
	hub    *changeHub
	once   sync.Once
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

type changeHub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[*Subscription]struct{})}
}

func (h *changeHub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *changeHub) notify(tables []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !s.matches(tables) {
			continue
		}
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

func (s *Subscription) matches(tables []string) bool {
	if len(s.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}

// Subscribe registers for change signals on the given tables (all tables if none).
func (db *DB) Subscribe(tables ...string) *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, tables: make(map[string]struct{}, len(tables)), hub: db.changes}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}
	db.changes.mu.Lock()
	db.changes.subs[s] = struct{}{}
	db.changes.mu.Unlock()
	return s
}

// Watch is a live query: it delivers the query result immediately and again
// after every committed write to any of the tables. The channel closes when
// ctx is done. Query errors are skipped; the previous result stays current.
func Watch[T any](ctx context.Context, db *DB, query func() (T, error), tables ...string) <-chan T {
	out := make(chan T, 1)
	sub := db.Subscribe(tables...)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			if v, err := query(); err != nil {
				db.log.Sugar().Debugf("live query on %v: %v", tables, err)
			} else {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-sub.C:
			}
		}
	}()
	return out
}
