// Package debounce coalesces bursts of updates into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delivers the last value pushed once no further value has been
// pushed for the configured delay. Each Push cancels and restarts the wait.
// The callback runs on its own goroutine and must not block for long.
type Debouncer[T any] struct {
	delay time.Duration
	fire  func(T)

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// New returns a Debouncer that calls fire after delay of quiet.
func New[T any](delay time.Duration, fire func(T)) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{delay: delay, fire: fire}
}

// Delay returns the quiet period.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

// Push schedules v, superseding any value still waiting.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if seq != d.seq {
			// Superseded after the timer had already fired.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fire(v)
	})
}

// Cancel drops the pending value, if any.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a value is waiting to be delivered.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
