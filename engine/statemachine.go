package engine

import (
	"context"
	"log"
	"time"

	"github.com/whisper-darkly/dvr-engine/access"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/recorder"
	"github.com/whisper-darkly/dvr-engine/rules"
	"github.com/whisper-darkly/dvr-engine/schema"
)

// setTimerLocked is the reconciler (C4): invoked after any mutation that
// affects scheduling (create, update, EPG rebind, timer fire). It must be
// called with the engine lock held.
func (en *Engine) setTimerLocked(e *entry.Entry) {
	cfg := en.cfg.Get()
	now := en.now()

	pre := e.ExtraPre(cfg.ExtraTimePre)
	post := e.ExtraPost(cfg.ExtraTimePost)
	effStart := e.EffectiveStart(pre)
	effStop := e.EffectiveStop(post)

	switch {
	case !now.Before(effStop) || e.DontReschedule:
		if e.Filename == "" {
			e.SchedState = entry.MissedTime
			en.metrics.missed.Inc()
		} else {
			e.SchedState = entry.Completed
			en.notifyFileWatcher(e)
			en.metrics.completed.Inc()
		}
		en.armLocked(e, e.Stop.Add(time.Duration(e.RetentionDays(cfg.RetentionDays))*24*time.Hour), en.onExpire)

	case e.SchedState == entry.Recording:
		en.armLocked(e, effStop, en.onStop)

	case e.Channel != nil && e.Channel.Enabled():
		e.SchedState = entry.Scheduled
		en.armLocked(e, effStart, en.onStart)
		en.kickNextStartLocked()

	default:
		e.SchedState = entry.NoState
		if slot, ok := en.slots[e.ID]; ok {
			en.wheel.Disarm(slot)
		}
	}
}

// armLocked arms e's slot with cb, assuming the engine lock is held while
// arming (time.AfterFunc itself fires on its own goroutine; cb re-acquires
// the lock and rechecks the slot generation before acting — spec §9
// "timer/destroy race").
func (en *Engine) armLocked(e *entry.Entry, when time.Time, cb func(uuid string, gen uint64)) {
	slot, ok := en.slots[e.ID]
	if !ok {
		return
	}
	id := e.ID
	en.wheel.ArmAbs(slot, when, func(gen uint64) { cb(id, gen) })
}

func (en *Engine) fire(uuid string, gen uint64, handle func(*entry.Entry)) {
	en.mu.Lock()
	defer en.mu.Unlock()

	slot, ok := en.slots[uuid]
	if !ok || slot.Current() != gen {
		return // disarmed or re-armed since this callback was dispatched
	}
	e, ok := en.entries[uuid]
	if !ok {
		return
	}
	handle(e)
}

func (en *Engine) onStart(uuid string, gen uint64) { en.fire(uuid, gen, en.handleStartLocked) }
func (en *Engine) onStop(uuid string, gen uint64)  { en.fire(uuid, gen, en.handleStopLocked) }
func (en *Engine) onExpire(uuid string, gen uint64) {
	en.fire(uuid, gen, func(e *entry.Entry) { en.destroyLocked(e, true); en.metrics.expirations.Inc() })
}

// handleStartLocked is the start-recording timer callback (spec §4.4).
func (en *Engine) handleStartLocked(e *entry.Entry) {
	if e.Channel == nil || !e.Channel.Enabled() {
		e.SchedState = entry.NoState
		en.persistSaveLocked(e)
		en.bus.PublishUpdate(e.ID, schema.Save(e))
		return
	}

	if e.AutorecID != "" {
		mode := rules.RecordAll
		if en.autorecs != nil {
			if rule, ok := en.autorecs.ByID(e.AutorecID); ok {
				mode = rule.RecordMode()
			}
		}
		if dupe := en.dedupFindLocked(e, mode); dupe != nil {
			en.metrics.dedupSkips.Inc()
			en.destroyLocked(e, true)
			return
		}
	}

	e.SchedState = entry.Recording
	e.RecState = entry.RecPending
	en.persistSaveLocked(e)
	en.bus.PublishUpdate(e.ID, schema.Save(e))
	en.metrics.recordingsStarted.Inc()

	en.subscribeRecorderLocked(e)

	cfg := en.cfg.Get()
	en.armLocked(e, e.EffectiveStop(e.ExtraPost(cfg.ExtraTimePost)), en.onStop)
}

// subscribeRecorderLocked wraps recorder.Subscribe in a circuit breaker
// (spec §6 "recorder" collaborator): a Recorder that errors repeatedly
// trips the breaker instead of being hammered on every start-recording
// timer fire.
func (en *Engine) subscribeRecorderLocked(e *entry.Entry) {
	if en.recorder == nil {
		return
	}
	_, err := en.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return struct{}{}, en.recorder.Subscribe(ctx, e)
	})
	if err != nil {
		log.Printf("engine: subscribe %s: %v", e.ID, err)
		e.LastError = recorder.StopCodeRecorderError
	}
}

// handleStopLocked is the stop-recording timer callback, also reused by
// Cancel's forced-stop path on a RECORDING entry.
func (en *Engine) handleStopLocked(e *entry.Entry) {
	if e.RecState == entry.RecPending || e.RecState == entry.RecWaitProgramStart || e.Filename == "" {
		e.SchedState = entry.MissedTime
		en.metrics.missed.Inc()
	} else {
		e.SchedState = entry.Completed
		en.notifyFileWatcher(e)
		en.metrics.completed.Inc()
	}

	stopCode := recorder.StopCodeOK
	if e.LastError != 0 {
		stopCode = recorder.StopCodeRecorderError
	}
	if en.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := en.recorder.Unsubscribe(ctx, e, stopCode); err != nil {
			log.Printf("engine: unsubscribe %s: %v", e.ID, err)
		}
		cancel()
	}

	en.persistSaveLocked(e)
	en.bus.PublishUpdate(e.ID, schema.Save(e))

	cfg := en.cfg.Get()
	en.armLocked(e, e.Stop.Add(time.Duration(e.RetentionDays(cfg.RetentionDays))*24*time.Hour), en.onExpire)
}

// kickNextStartLocked recomputes the earliest effective_start strictly
// greater than now among SCHEDULED entries and publishes it, suppressing a
// repeat of the same instant (spec §4.8).
func (en *Engine) kickNextStartLocked() {
	cfg := en.cfg.Get()
	now := en.now()

	var next time.Time
	var title string
	for _, e := range en.entries {
		if e.SchedState != entry.Scheduled {
			continue
		}
		es := e.EffectiveStart(e.ExtraPre(cfg.ExtraTimePre))
		if !es.After(now) {
			continue
		}
		if next.IsZero() || es.Before(next) {
			next = es
			title = e.Title.Get(cfg.DefaultLanguage)
		}
	}
	if next.IsZero() || next.Equal(en.lastNextStart) {
		return
	}
	en.lastNextStart = next
	en.bus.PublishNextStart(next, title)
}

// Cancel implements the operator cancel command (spec §4.4 state table):
// a SCHEDULED entry is destroyed outright; a RECORDING entry is forced to
// stop and marked so the reconciler never reschedules it.
func (en *Engine) Cancel(actor access.Actor, id string) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	e, ok := en.entries[id]
	if !ok {
		return ErrNotFound
	}
	if !en.perm.Verify(actor, access.MaskDelete, e.Owner) {
		return ErrPermissionDenied
	}

	switch e.SchedState {
	case entry.Scheduled:
		en.destroyLocked(e, true)
	case entry.Recording:
		e.DontReschedule = true
		en.handleStopLocked(e)
	}
	return nil
}
