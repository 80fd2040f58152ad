package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"reminderd/internal/clock"
)

// slot is the live timer for one user. ctx lives across re-arms and is
// cancelled only on disarm, which aborts any dispatch still running for
// that user.
type slot struct {
	timer   clock.Timer
	version uint64
	at      time.Time
	every   time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// ArmedInfo describes one pending firing.
type ArmedInfo struct {
	UserID  string    `json:"userId"`
	At      time.Time `json:"at"`
	Version uint64    `json:"version"`
}

type registry struct {
	mu      sync.Mutex
	base    context.Context
	seq     uint64
	slots   map[string]*slot
	stopped bool
}

func newRegistry(base context.Context) *registry {
	return &registry{base: base, slots: map[string]*slot{}}
}

// arm replaces any pending timer for userID. every is the reminder interval
// used when a firing has to retry without fresh state. start receives the new
// version and must return the started timer. It reports false after stop.
func (r *registry) arm(userID string, at time.Time, every time.Duration, start func(version uint64) clock.Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.seq++
	v := r.seq

	sl := r.slots[userID]
	if sl == nil {
		ctx, cancel := context.WithCancel(r.base)
		sl = &slot{ctx: ctx, cancel: cancel}
		r.slots[userID] = sl
	} else if sl.timer != nil {
		sl.timer.Stop()
	}
	sl.version = v
	sl.at = at
	sl.every = every
	sl.timer = start(v)
	return true
}

// disarm stops and forgets the timer. It reports whether one existed.
func (r *registry) disarm(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl := r.slots[userID]
	if sl == nil {
		return false
	}
	delete(r.slots, userID)
	if sl.timer != nil {
		sl.timer.Stop()
	}
	sl.cancel()
	return true
}

// current returns the arm context and interval when version v is still the
// live one.
func (r *registry) current(userID string, v uint64) (context.Context, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl := r.slots[userID]
	if sl == nil || sl.version != v {
		return nil, 0, false
	}
	return sl.ctx, sl.every, true
}

func (r *registry) armed(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[userID]
	return ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *registry) list() []ArmedInfo {
	r.mu.Lock()
	out := make([]ArmedInfo, 0, len(r.slots))
	for id, sl := range r.slots {
		out = append(out, ArmedInfo{UserID: id, At: sl.at, Version: sl.version})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// stop disarms everything and refuses later arms.
func (r *registry) stop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	n := len(r.slots)
	for id, sl := range r.slots {
		if sl.timer != nil {
			sl.timer.Stop()
		}
		sl.cancel()
		delete(r.slots, id)
	}
	return n
}
