// Package debounce coalesces rapid edits into one delayed execution per key.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Debouncer schedules at most one pending callback per key. A new Debounce
// for a key replaces the pending callback without running it. Cancellation
// is cooperative: a callback that has started is never interrupted.
type Debouncer[K comparable] struct {
	clock clockwork.Clock

	mu      sync.Mutex
	pending map[K]*entry
}

// entry is one scheduled callback. signal is buffered so the side that
// claims the entry never blocks; true means run now, false means drop. done
// closes once the entry's goroutine has finished.
type entry struct {
	signal chan bool
	done   chan struct{}
}

// New creates a debouncer. In production pass clockwork.NewRealClock(); in
// tests a fake clock.
func New[K comparable](clock clockwork.Clock) *Debouncer[K] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer[K]{
		clock:   clock,
		pending: make(map[K]*entry),
	}
}

// Debounce runs fn after delay unless another Debounce, Cancel or
// ExecuteImmediately for the same key happens first.
func (d *Debouncer[K]) Debounce(key K, delay time.Duration, fn func()) {
	e := &entry{signal: make(chan bool, 1), done: make(chan struct{})}
	timer := d.clock.NewTimer(delay)

	d.mu.Lock()
	if prev, exists := d.pending[key]; exists {
		prev.signal <- false
		log.Debug().Interface("key", key).Msg("replaced pending debounce")
	}
	d.pending[key] = e
	d.mu.Unlock()

	go func() {
		defer close(e.done)
		select {
		case <-timer.Chan():
			if d.claim(key, e) {
				fn()
				return
			}
			// Someone claimed the entry between the timer firing and us
			// taking the lock; their signal decides the outcome.
			if <-e.signal {
				fn()
			}
		case run := <-e.signal:
			stopAndDrainTimer(timer)
			if run {
				fn()
			}
		}
	}()
}

// Cancel drops the pending callback for key without running it.
func (d *Debouncer[K]) Cancel(key K) {
	d.release(key, false)
}

// ExecuteImmediately runs the pending callback for key now instead of
// waiting for its delay, and returns once it has finished. It reports whether
// anything was pending.
func (d *Debouncer[K]) ExecuteImmediately(key K) bool {
	return d.release(key, true)
}

// ExecuteAll runs every pending callback now and waits for them to finish.
func (d *Debouncer[K]) ExecuteAll() {
	d.mu.Lock()
	entries := make([]*entry, 0, len(d.pending))
	for key, e := range d.pending {
		delete(d.pending, key)
		e.signal <- true
		entries = append(entries, e)
	}
	d.mu.Unlock()

	for _, e := range entries {
		<-e.done
	}
}

// Pending reports whether a callback is scheduled for key.
func (d *Debouncer[K]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.pending[key]
	return exists
}

func (d *Debouncer[K]) release(key K, run bool) bool {
	d.mu.Lock()
	e, exists := d.pending[key]
	if !exists {
		d.mu.Unlock()
		return false
	}
	delete(d.pending, key)
	e.signal <- run
	d.mu.Unlock()

	if run {
		<-e.done
	}
	return true
}

// claim removes e if it is still the pending entry for key.
func (d *Debouncer[K]) claim(key K, e *entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[key] != e {
		return false
	}
	delete(d.pending, key)
	return true
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
