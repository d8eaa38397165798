// Package timer implements the Timer wheel interface (C3, spec §4.3): a
// single per-entry slot holding either no timer or one armed absolute-time
// callback. All callbacks are dispatched onto a single channel so the
// engine can serialize them under its own global lock (spec §5) rather
// than relying on each time.AfterFunc's own goroutine.
package timer

import (
	"sync"
	"time"
)

// Callback is dispatched when a Slot's deadline elapses. gen is the
// generation the callback was armed with; the receiver must discard the
// callback if the slot has since been re-armed or disarmed (spec §9
// "timer/destroy race" — prefer a generation counter on the armed slot).
type Callback func(gen uint64)

// Slot is a single entry's timer. The zero value is a valid, disarmed
// slot.
type Slot struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// Wheel dispatches fired callbacks onto Fire, serialized by generation so
// the caller can re-check liveness after acquiring its own lock.
type Wheel struct {
	Fire chan fired
}

type fired struct {
	cb  Callback
	gen uint64
}

// New creates a Wheel with the given dispatch-channel buffer size.
func New(buffer int) *Wheel {
	return &Wheel{Fire: make(chan fired, buffer)}
}

// ArmAbs replaces any prior arming of slot with a callback scheduled for
// when. If when is already in the past, the callback fires on the next
// dispatcher tick (spec §4.3) rather than synchronously, so callers never
// observe re-entrant firing from inside ArmAbs.
func (w *Wheel) ArmAbs(slot *Slot, when time.Time, cb Callback) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.gen++
	gen := slot.gen

	d := time.Until(when)
	if d < 0 {
		d = 0
	}
	slot.timer = time.AfterFunc(d, func() {
		w.Fire <- fired{cb: cb, gen: gen}
	})
}

// Disarm cancels any armed callback for slot. Idempotent.
func (w *Wheel) Disarm(slot *Slot) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.gen++ // bump so an in-flight fire observes staleness
}

// Current reports the generation a callback must match to still be live.
func (s *Slot) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Run drains fired callbacks, invoking each with its generation, until
// stop is closed. The caller's callback is responsible for taking the
// engine's global lock and re-checking the slot's current generation
// before acting.
func (w *Wheel) Run(stop <-chan struct{}) {
	for {
		select {
		case f := <-w.Fire:
			f.cb(f.gen)
		case <-stop:
			return
		}
	}
}
