// Package registry tracks who is watching which cache key.
//
// Subscriptions hold per-key change callbacks; Pins hold a reference count per
// key that vetoes deletion while any consumer still uses it. Both are safe for
// concurrent use so callbacks may subscribe or unsubscribe while a
// notification is in flight.
package registry

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Callback is invoked after the watched key changed.
type Callback func()

type subscriber struct {
	id uint64
	fn Callback
}

// Subscriptions maps keys to their ordered callback lists. Lists are
// replaced copy-on-write so Notify iterates a stable snapshot.
type Subscriptions struct {
	subs   *xsync.MapOf[string, []*subscriber]
	seq    atomic.Uint64
	logger *slog.Logger
}

// NewSubscriptions returns an empty registry. A nil logger uses slog.Default.
func NewSubscriptions(logger *slog.Logger) *Subscriptions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriptions{
		subs:   xsync.NewMapOf[string, []*subscriber](),
		logger: logger,
	}
}

// Subscribe registers fn under key and returns an idempotent unsubscribe
// function. The key entry is dropped once its last callback goes away.
func (r *Subscriptions) Subscribe(key string, fn Callback) func() {
	sub := &subscriber{id: r.seq.Add(1), fn: fn}

	r.subs.Compute(key, func(old []*subscriber, _ bool) ([]*subscriber, bool) {
		next := make([]*subscriber, len(old), len(old)+1)
		copy(next, old)
		return append(next, sub), false
	})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, sub.id) })
	}
}

func (r *Subscriptions) remove(key string, id uint64) {
	r.subs.Compute(key, func(old []*subscriber, loaded bool) ([]*subscriber, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]*subscriber, 0, len(old))
		for _, s := range old {
			if s.id != id {
				next = append(next, s)
			}
		}
		return next, len(next) == 0
	})
}

// Notify calls every callback registered for key in registration order.
// A panicking callback is logged and does not stop the others.
func (r *Subscriptions) Notify(key string) {
	subs, ok := r.subs.Load(key)
	if !ok {
		return
	}
	for _, s := range subs {
		r.invoke(key, s)
	}
}

func (r *Subscriptions) invoke(key string, s *subscriber) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber callback failed", "key", key, "panic", rec)
		}
	}()
	s.fn()
}

// Count returns the number of callbacks registered for key.
func (r *Subscriptions) Count(key string) int {
	subs, _ := r.subs.Load(key)
	return len(subs)
}

// Keys returns how many keys currently have subscribers.
func (r *Subscriptions) Keys() int {
	return r.subs.Size()
}

// Clear removes every subscription. Outstanding unsubscribe functions
// become no-ops.
func (r *Subscriptions) Clear() {
	r.subs.Clear()
}
