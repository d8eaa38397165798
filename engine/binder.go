package engine

import (
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/epg"
	"github.com/whisper-darkly/dvr-engine/schema"
)

// EventUpdated is the EPG binder's first entry point (spec §4.5): either
// propagate field changes onto the entry already bound to b, or — if none
// is bound — look for a SCHEDULED, unbound entry on the same channel that
// fuzzy-matches b and bind it.
func (en *Engine) EventUpdated(b epg.Broadcast) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if e := en.findByEventLocked(b.ID()); e != nil {
		windowChanged := !e.Start.Equal(b.Start()) || !e.Stop.Equal(b.Stop())
		en.propagateLocked(e, b)
		if windowChanged {
			en.setTimerLocked(e)
			en.persistSaveLocked(e)
			en.bus.PublishUpdate(e.ID, schema.Save(e))
		}
		return
	}

	for _, e := range en.entries {
		if e.SchedState != entry.Scheduled || e.Bound() {
			continue
		}
		if e.Channel == nil || e.Channel.ID() != b.ChannelID() {
			continue
		}
		if en.fuzzyMatch(e, b) {
			e.Bind(b)
			en.lookaside.Add(b.ID(), e.ID)
			en.propagateLocked(e, b)
			en.setTimerLocked(e)
			en.persistSaveLocked(e)
			en.bus.PublishUpdate(e.ID, schema.Save(e))
			en.metrics.epgRebinds.Inc()
			return
		}
	}
}

// EventReplaced is the EPG binder's second entry point (spec §4.5). Per the
// original's exact guard, an entry that has left SCHEDULED is never
// disturbed by a replace — a recording in progress keeps its broadcast
// reference for reporting purposes only (spec §12).
func (en *Engine) EventReplaced(old, replacement epg.Broadcast) {
	en.mu.Lock()
	defer en.mu.Unlock()

	e := en.findByEventLocked(old.ID())
	if e == nil {
		return
	}
	if e.SchedState != entry.Scheduled {
		return
	}

	e.Unbind()

	if e.AutorecID != "" {
		// The rule engine owns re-creation once its next pass sees the
		// replacement broadcast.
		en.destroyLocked(e, true)
		return
	}

	if e.Channel != nil && en.epgSched != nil {
		var found epg.Broadcast
		en.epgSched.ForEach(e.Channel.ID(), func(b epg.Broadcast) bool {
			if b.ID() == old.ID() {
				return true // never rebind to the broadcast being replaced
			}
			if en.fuzzyMatch(e, b) {
				found = b
				return false
			}
			return true
		})
		if found != nil {
			e.Bind(found)
			en.lookaside.Add(found.ID(), e.ID)
			en.propagateLocked(e, found)
			en.metrics.epgRebinds.Inc()
		}
	}

	en.setTimerLocked(e)
	en.persistSaveLocked(e)
	en.bus.PublishUpdate(e.ID, schema.Save(e))
}

// fuzzyMatch implements spec §4.5's fuzzy-match predicate.
func (en *Engine) fuzzyMatch(e *entry.Entry, b epg.Broadcast) bool {
	if e.DVBEID != 0 && e.DVBEID == b.DVBEID() {
		return true
	}

	if e.Title.Get("") != b.Title("") {
		return false
	}

	eDur := e.Stop.Sub(e.Start)
	bDur := b.Stop().Sub(b.Start())
	if eDur <= 0 || bDur <= 0 {
		return false
	}
	ratio := float64(bDur) / float64(eDur)
	if ratio < 0.8 || ratio > 1.2 {
		return false
	}

	window := en.cfg.Get().UpdateWindow
	drift := b.Start().Sub(e.Start)
	if drift < 0 {
		drift = -drift
	}
	if drift > window {
		return false
	}

	if e.Episode != "" && b.Episode() != e.Episode {
		return false
	}
	return true
}

// propagateLocked refreshes metadata (and, per the documented open
// question, the window itself) from a bound broadcast onto e. Broadcast
// wins over a user-edited window while the entry is still SCHEDULED (spec
// §9 open question — resolved in favor of the original's behavior).
func (en *Engine) propagateLocked(e *entry.Entry, b epg.Broadcast) {
	e.Title = entry.LangStr{"": b.Title("")}
	e.Subtitle = entry.LangStr{"": b.Subtitle("")}
	e.Description = entry.LangStr{"": b.Description("")}
	e.Episode = b.Episode()
	e.ContentType = b.ContentType()
	e.DVBEID = b.DVBEID()

	if e.SchedState == entry.Scheduled {
		e.Start = b.Start()
		e.Stop = b.Stop()
	}
}
