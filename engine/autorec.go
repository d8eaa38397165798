package engine

import (
	"time"

	"github.com/whisper-darkly/dvr-engine/channel"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/epg"
	"github.com/whisper-darkly/dvr-engine/rules"
	"github.com/whisper-darkly/dvr-engine/schema"
)

// CreateByAutorec is the autorec rule engine's entry point (spec §4.1,
// §12 supplemented feature): builds an entry from a matched broadcast and
// rule, short-circuiting silently if an entry already covers the same
// broadcast or the same underlying episode — a cheaper, identity-level
// check that runs before the semantic Deduper (C6) ever sees the entry, so
// the deduper only ever evaluates one entry per broadcast.
func (en *Engine) CreateByAutorec(b epg.Broadcast, rule rules.Autorec, ch channel.Channel) (*entry.Entry, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	if existing := en.findByEventLocked(b.ID()); existing != nil {
		return nil, nil
	}
	if existing := en.findByEpisodeLocked(b); existing != nil {
		return nil, nil
	}

	creator := "Auto recording"
	if rule.Creator() != "" {
		creator = "Auto recording by: " + rule.Creator()
	}

	props := schema.Props{
		"start":        b.Start(),
		"stop":         b.Stop(),
		"title":        entry.LangStr{"": b.Title("")},
		"subtitle":     entry.LangStr{"": b.Subtitle("")},
		"description":  entry.LangStr{"": b.Description("")},
		"episode":      b.Episode(),
		"content_type": b.ContentType(),
		"dvb_eid":      b.DVBEID(),
		"channel":      ch.ID(),
		"broadcast":    b.ID(),
		"autorec":      rule.ID(),
		"start_extra":  rule.StartExtra(),
		"stop_extra":   rule.StopExtra(),
		"config_name":  rule.ConfigName(),
		"pri":          rule.Priority(),
		"retention":    rule.Retention(),
		"owner":        rule.Owner(),
		"creator":      creator,
		"comment":      rule.Comment(),
	}

	e, err := en.createLocked("", props, false)
	if err != nil {
		return nil, err
	}
	if !e.Bound() {
		// b may not be listed in the EPG schedule createLocked resolves
		// against; bind the matched broadcast directly.
		e.Bind(b)
		en.lookaside.Add(b.ID(), e.ID)
		en.persistSaveLocked(e)
	}
	return e, nil
}

// CreateByTimerec is the recurring-clock-time rule engine's entry point
// (spec §4.1, Glossary "Timerec"). Unlike autorec, a timerec rule owns a
// singleton spawned entry; the caller is expected to consult rule.Spawn()
// before calling this so it only ever spawns once per rule. title is the
// rule's own configured title — a timerec entry has no EPG broadcast to
// source metadata from.
func (en *Engine) CreateByTimerec(rule rules.Timerec, ch channel.Channel, title entry.LangStr, start, stop time.Time) (*entry.Entry, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	creator := "Auto recording"
	if rule.Creator() != "" {
		creator = "Auto recording by: " + rule.Creator()
	}

	props := schema.Props{
		"start":       start,
		"stop":        stop,
		"title":       title,
		"channel":     ch.ID(),
		"timerec":     rule.ID(),
		"start_extra": rule.StartExtra(),
		"stop_extra":  rule.StopExtra(),
		"config_name": rule.ConfigName(),
		"pri":         rule.Priority(),
		"retention":   rule.Retention(),
		"owner":       rule.Owner(),
		"creator":     creator,
		"comment":     rule.Comment(),
	}

	return en.createLocked("", props, false)
}
