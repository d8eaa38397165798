package main

import (
	"context"
	"log"
	"strconv"
	"sync"

	"github.com/whisper-darkly/dvr-engine/channel"
	"github.com/whisper-darkly/dvr-engine/config"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/epg"
	"github.com/whisper-darkly/dvr-engine/recorder"
	"github.com/whisper-darkly/dvr-engine/rules"
)

// The channel inventory, EPG database, stream recorder, and rule engines
// all live outside this module (spec §1). The demo composition root below
// gives the engine just enough of each collaborator to run standalone; a
// real deployment replaces every type in this file and nothing else.

// demoChannel is a fixed, always-enabled channel.Channel.
type demoChannel struct {
	id, name string
}

func (c demoChannel) ID() string         { return c.id }
func (c demoChannel) Name() string       { return c.name }
func (c demoChannel) Icon() string       { return "" }
func (c demoChannel) Enabled() bool      { return true }
func (c demoChannel) ExtraTimePre() int  { return 0 }
func (c demoChannel) ExtraTimePost() int { return -1 }

// demoInventory is a small, static channel.Inventory seeded at startup.
type demoInventory struct {
	byID   map[string]channel.Channel
	byName map[string]channel.Channel
}

func newDemoInventory(channels ...demoChannel) *demoInventory {
	inv := &demoInventory{
		byID:   make(map[string]channel.Channel, len(channels)),
		byName: make(map[string]channel.Channel, len(channels)),
	}
	for _, c := range channels {
		inv.byID[c.id] = c
		inv.byName[c.name] = c
	}
	return inv
}

func (inv *demoInventory) ByID(id string) channel.Channel     { return inv.byID[id] }
func (inv *demoInventory) ByName(name string) channel.Channel { return inv.byName[name] }

// demoSchedule is an empty epg.Schedule: the demo has no live EPG feed, so
// the binder's fuzzy-rescan in EventReplaced simply finds nothing.
type demoSchedule struct{}

func (demoSchedule) ForEach(channelID string, fn func(epg.Broadcast) bool) {}

// demoRecorder logs subscribe/unsubscribe instead of driving a real tuner
// and mux pipeline, and immediately reports a filename — built the same
// way a real recorder would, via entry.TitleStem (C9) under the DVR
// configuration's title-formatter projection — so the state machine's
// stop-recording/expire path has something to act on.
type demoRecorder struct {
	mu   sync.Mutex
	next int
	cfg  *config.Global
}

func newDemoRecorder(cfg *config.Global) *demoRecorder {
	return &demoRecorder{cfg: cfg}
}

func (r *demoRecorder) Subscribe(ctx context.Context, e *entry.Entry) error {
	r.mu.Lock()
	r.next++
	n := r.next
	r.mu.Unlock()

	cfg := r.cfg.Get()
	stem := e.TitleStem(cfg.TitleConfig(), cfg.DefaultLanguage, 0, 0)
	filename := "/recordings/" + stem + "-" + strconv.Itoa(n) + ".ts"

	log.Printf("demo recorder: subscribe %s (%q)", e.ID, e.Title.Get(""))
	e.SetResult(filename, "/recordings", entry.RecRunning, 0, 0, 0)
	return nil
}

func (r *demoRecorder) Unsubscribe(ctx context.Context, e *entry.Entry, stopCode int) error {
	log.Printf("demo recorder: unsubscribe %s (stop code %d)", e.ID, stopCode)
	return nil
}

// demoAutorecs and demoTimerecs are empty lookups: the demo only exercises
// manually created entries (Create), not rule-spawned ones.
type demoAutorecs struct{}

func (demoAutorecs) ByID(id string) (rules.Autorec, bool) { return nil, false }

type demoTimerecs struct{}

func (demoTimerecs) ByID(id string) (rules.Timerec, bool) { return nil, false }

var _ recorder.Recorder = (*demoRecorder)(nil)
