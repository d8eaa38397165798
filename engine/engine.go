// Package engine implements the recording-entry engine core: the Entry
// store (C1), wired to the state machine (C4) and EPG binder (C5) so that
// every mutation path — create, timer fire, EPG callback, operator
// command — goes through one place that holds the process-wide lock (spec
// §5). Adapted from the teacher's Manager: the same shape (a struct
// guarding maps with a mutex, a reconcile loop, log.Printf-style internal
// logging) now drives DVR entries instead of subscription workers.
package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/fsnotify/fsnotify"

	"github.com/whisper-darkly/dvr-engine/access"
	"github.com/whisper-darkly/dvr-engine/channel"
	"github.com/whisper-darkly/dvr-engine/config"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/epg"
	"github.com/whisper-darkly/dvr-engine/notify"
	"github.com/whisper-darkly/dvr-engine/persist"
	"github.com/whisper-darkly/dvr-engine/recorder"
	"github.com/whisper-darkly/dvr-engine/rules"
	"github.com/whisper-darkly/dvr-engine/schema"
	"github.com/whisper-darkly/dvr-engine/timer"
)

// Error kinds surfaced at the API boundary (spec §7). Timer callbacks never
// return these outward — they log and leave the entry in a consistent
// state.
var (
	ErrInvalidInput     = errors.New("engine: invalid input")
	ErrUniqueness       = errors.New("engine: channel/start collision")
	ErrNotFound         = errors.New("engine: not found")
	ErrPermissionDenied = errors.New("engine: permission denied")
)

// Engine is the recording-entry engine: entry store, state machine, and EPG
// binder behind one lock.
type Engine struct {
	mu sync.Mutex

	cfg      *config.Global
	channels channel.Inventory
	epgSched epg.Schedule
	autorecs rules.AutorecLookup
	timerecs rules.TimerecLookup
	recorder recorder.Recorder
	store    persist.Store
	bus      notify.Bus
	perm     access.Permission

	wheel *timer.Wheel
	slots map[string]*timer.Slot

	entries   map[string]*entry.Entry            // global index, by uuid
	byChannel map[string]map[string]*entry.Entry  // channel id -> uuid -> entry
	byConfig  map[string]map[string]*entry.Entry  // config name -> uuid -> entry
	byAutorec map[string]map[string]*entry.Entry  // autorec id -> uuid -> entry
	byTimerec map[string]*entry.Entry             // timerec id -> entry (singleton)

	breaker   *gobreaker.CircuitBreaker[struct{}]
	lookaside *lru.Cache[string, string] // broadcast id -> entry uuid

	watcher    *fsnotify.Watcher
	outputRoot string

	metrics  *metrics
	Registry *prometheus.Registry

	lastNextStart time.Time
	now           func() time.Time

	stop chan struct{}
}

// Options bundles the engine's external collaborators (spec §6).
type Options struct {
	Config     *config.Global
	Channels   channel.Inventory
	EPG        epg.Schedule
	Autorecs   rules.AutorecLookup
	Timerecs   rules.TimerecLookup
	Recorder   recorder.Recorder
	Store      persist.Store
	Bus        notify.Bus
	Perm       access.Permission // built with access.New() if nil
	OutputRoot string            // directory watched for the "inotify add" side effect
}

// New constructs an Engine. Call Run to load persisted entries and start
// the timer dispatcher.
func New(opts Options) (*Engine, error) {
	perm := opts.Perm
	if perm == nil {
		var err error
		perm, err = access.New()
		if err != nil {
			return nil, err
		}
	}

	lookaside, err := lru.New[string, string](256)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.OutputRoot != "" {
		if err := watcher.Add(opts.OutputRoot); err != nil {
			log.Printf("engine: watch output root %s: %v", opts.OutputRoot, err)
		}
	}

	registry := prometheus.NewRegistry()

	en := &Engine{
		cfg:      opts.Config,
		channels: opts.Channels,
		epgSched: opts.EPG,
		autorecs: opts.Autorecs,
		timerecs: opts.Timerecs,
		recorder: opts.Recorder,
		store:    opts.Store,
		bus:      opts.Bus,
		perm:     perm,

		wheel: timer.New(64),
		slots: make(map[string]*timer.Slot),

		entries:   make(map[string]*entry.Entry),
		byChannel: make(map[string]map[string]*entry.Entry),
		byConfig:  make(map[string]map[string]*entry.Entry),
		byAutorec: make(map[string]map[string]*entry.Entry),
		byTimerec: make(map[string]*entry.Entry),

		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "recorder.Subscribe",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
		}),
		lookaside: lookaside,

		watcher:    watcher,
		outputRoot: opts.OutputRoot,

		metrics:  newMetrics(registry),
		Registry: registry,

		now:  time.Now,
		stop: make(chan struct{}),
	}
	return en, nil
}

// Run loads persisted entries (replaying set_timer so wall-clock elapsed
// since the last run is reconciled) and starts the timer dispatcher and the
// file-watch event loop. Blocks until ctx is cancelled.
func (en *Engine) Run(ctx context.Context) error {
	if en.store != nil {
		records, err := en.store.LoadAll(ctx)
		if err != nil {
			return err
		}
		en.mu.Lock()
		for _, rec := range records {
			en.restoreLocked(rec.UUID, rec.Props)
		}
		en.mu.Unlock()
	}

	go en.wheel.Run(en.stop)
	go en.watchLoop(ctx)

	<-ctx.Done()
	close(en.stop)
	en.watcher.Close()
	if en.store != nil {
		return en.store.Close()
	}
	return nil
}

func (en *Engine) watchLoop(ctx context.Context) {
	for {
		select {
		case ev, ok := <-en.watcher.Events:
			if !ok {
				return
			}
			log.Printf("engine: inotify %s: %s", ev.Op, ev.Name)
		case err, ok := <-en.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("engine: inotify error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// notifyFileWatcher arms an fsnotify watch on a just-completed recording's
// file, so external consumers (outside this engine's scope, spec §1) observe
// the finished file via the "inotify add" side effect (spec §4.4 step 2).
func (en *Engine) notifyFileWatcher(e *entry.Entry) {
	if e.Filename == "" {
		return
	}
	if err := en.watcher.Add(e.Filename); err != nil {
		log.Printf("engine: watch %s: %v", e.Filename, err)
	}
}

func newShortUUID() string {
	full := uuid.New().String()
	return strings.ReplaceAll(full, "-", "")[:16]
}

// ---- entry store (C1) ----

// Create builds a new entry from an external property map (spec §4.1).
// Requires start, stop, and one of channel/channelname in props.
func (en *Engine) Create(props schema.Props) (*entry.Entry, error) {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.createLocked("", props, false)
}

func (en *Engine) createLocked(uuidHint string, props schema.Props, restore bool) (*entry.Entry, error) {
	e := entry.NewEntry()
	bindings := schema.Load(e, props)

	if e.Start.IsZero() || e.Stop.IsZero() {
		return nil, ErrInvalidInput
	}
	en.clampWindowLocked(e)

	var ch channel.Channel
	switch {
	case bindings.ChannelID != "":
		ch = en.channels.ByID(bindings.ChannelID)
	case bindings.ChannelName != "":
		ch = en.channels.ByName(bindings.ChannelName)
	}
	if ch == nil {
		return nil, ErrInvalidInput
	}
	e.Channel = ch
	e.AutorecID = bindings.AutorecID
	e.TimerecID = bindings.TimerecID

	id := uuidHint
	if id == "" {
		id = newShortUUID()
		if _, exists := en.entries[id]; exists {
			id = newShortUUID()
			if _, exists := en.entries[id]; exists {
				return nil, ErrInvalidInput
			}
		}
	} else if _, exists := en.entries[id]; exists {
		return nil, ErrInvalidInput
	}
	e.ID = id

	if peers, ok := en.byChannel[ch.ID()]; ok {
		for _, other := range peers {
			if other.Start.Equal(e.Start) && other.SchedState != entry.Completed {
				return nil, ErrUniqueness
			}
		}
	}

	if bindings.BroadcastID != "" {
		if b := en.resolveBroadcastLocked(ch.ID(), bindings.BroadcastID); b != nil {
			e.Bind(b)
		}
	}

	en.insertLocked(e)
	en.setTimerLocked(e)
	en.persistSaveLocked(e)
	if !restore {
		en.bus.PublishAdd(e.ID, schema.Save(e))
	}
	en.metrics.entriesCreated.Inc()
	return e, nil
}

// restoreLocked replays a persisted record at startup, reconciling its
// schedule state against the current wall clock (spec §4.1, §10 "ambient
// config"). Errors are logged, not propagated — a malformed persisted
// record must not abort loading the rest.
func (en *Engine) restoreLocked(uuid string, props map[string]any) {
	if _, err := en.createLocked(uuid, props, true); err != nil {
		log.Printf("engine: restore %s: %v", uuid, err)
	}
}

func (en *Engine) resolveBroadcastLocked(channelID, broadcastID string) epg.Broadcast {
	if en.epgSched == nil {
		return nil
	}
	var found epg.Broadcast
	en.epgSched.ForEach(channelID, func(b epg.Broadcast) bool {
		if b.ID() == broadcastID {
			found = b
			return false
		}
		return true
	})
	return found
}

func (en *Engine) insertLocked(e *entry.Entry) {
	en.entries[e.ID] = e

	if en.byChannel[e.Channel.ID()] == nil {
		en.byChannel[e.Channel.ID()] = make(map[string]*entry.Entry)
	}
	en.byChannel[e.Channel.ID()][e.ID] = e

	if e.ConfigName != "" {
		if en.byConfig[e.ConfigName] == nil {
			en.byConfig[e.ConfigName] = make(map[string]*entry.Entry)
		}
		en.byConfig[e.ConfigName][e.ID] = e
	}

	if e.AutorecID != "" {
		if en.byAutorec[e.AutorecID] == nil {
			en.byAutorec[e.AutorecID] = make(map[string]*entry.Entry)
		}
		en.byAutorec[e.AutorecID][e.ID] = e
	}

	if e.TimerecID != "" {
		en.byTimerec[e.TimerecID] = e
	}

	en.slots[e.ID] = &timer.Slot{}

	if e.Bound() {
		en.lookaside.Add(e.Broadcast.ID(), e.ID)
	}
}

// clampWindowLocked enforces spec §3's stop >= start invariant on an
// editable entry: a stop pushed before the wall clock clamps to the wall
// clock, and a stop still before start after that clamps to start. A
// non-editable entry's window is left alone — Update already restricts it
// to comment/retention before this is ever reached.
func (en *Engine) clampWindowLocked(e *entry.Entry) {
	if !e.Editable() {
		return
	}
	now := en.now()
	if e.Stop.Before(now) {
		e.Stop = now
	}
	if e.Stop.Before(e.Start) {
		e.Stop = e.Start
	}
}

func (en *Engine) removeLocked(e *entry.Entry) {
	delete(en.entries, e.ID)

	if e.Channel != nil {
		if m, ok := en.byChannel[e.Channel.ID()]; ok {
			delete(m, e.ID)
			if len(m) == 0 {
				delete(en.byChannel, e.Channel.ID())
			}
		}
	}
	if e.ConfigName != "" {
		if m, ok := en.byConfig[e.ConfigName]; ok {
			delete(m, e.ID)
			if len(m) == 0 {
				delete(en.byConfig, e.ConfigName)
			}
		}
	}
	if e.AutorecID != "" {
		if m, ok := en.byAutorec[e.AutorecID]; ok {
			delete(m, e.ID)
			if len(m) == 0 {
				delete(en.byAutorec, e.AutorecID)
			}
		}
	}
	if e.TimerecID != "" {
		if en.byTimerec[e.TimerecID] == e {
			delete(en.byTimerec, e.TimerecID)
		}
	}

	if slot, ok := en.slots[e.ID]; ok {
		en.wheel.Disarm(slot)
		delete(en.slots, e.ID)
	}
}

// FindByID looks up an entry by its short UUID.
func (en *Engine) FindByID(uuid string) *entry.Entry {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.entries[uuid]
}

// FindByEvent returns the entry currently bound to b, if any, consulting
// the lookaside cache before falling back to a linear scan.
func (en *Engine) FindByEvent(b epg.Broadcast) *entry.Entry {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.findByEventLocked(b.ID())
}

func (en *Engine) findByEventLocked(broadcastID string) *entry.Entry {
	if uuid, ok := en.lookaside.Get(broadcastID); ok {
		if e, ok := en.entries[uuid]; ok && e.Bound() && e.Broadcast.ID() == broadcastID {
			return e
		}
		en.lookaside.Remove(broadcastID)
	}
	for _, e := range en.entries {
		if e.Bound() && e.Broadcast.ID() == broadcastID {
			en.lookaside.Add(broadcastID, e.ID)
			return e
		}
	}
	return nil
}

// FindByEpisode returns an entry on b's channel whose episode string
// matches b's, independent of broadcast binding (used by CreateByAutorec's
// identical-duplicate short circuit).
func (en *Engine) FindByEpisode(b epg.Broadcast) *entry.Entry {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.findByEpisodeLocked(b)
}

func (en *Engine) findByEpisodeLocked(b epg.Broadcast) *entry.Entry {
	episode := b.Episode()
	if episode == "" {
		return nil
	}
	for _, e := range en.byChannel[b.ChannelID()] {
		if e.Episode == episode {
			return e
		}
	}
	return nil
}

// Destroy removes an entry from every index, disarms its timer, and
// optionally deletes its persisted record (spec §4.1).
func (en *Engine) Destroy(e *entry.Entry, persistDelete bool) {
	en.mu.Lock()
	defer en.mu.Unlock()
	en.destroyLocked(e, persistDelete)
}

func (en *Engine) destroyLocked(e *entry.Entry, persistDelete bool) {
	en.removeLocked(e)
	if persistDelete && en.store != nil {
		if err := en.store.Remove(context.Background(), e.ID); err != nil {
			log.Printf("engine: remove persisted %s: %v", e.ID, err)
		}
	}
	en.bus.PublishDelete(e.ID)
	e.Unbind()
	e.DecRef()
}

// DestroyByConfig bulk-removes every entry belonging to configName. When
// reattachTo is non-empty, entries are reassigned to that config instead of
// being destroyed (spec §4.1 "optional reattachment to a default config").
func (en *Engine) DestroyByConfig(configName, reattachTo string) {
	en.mu.Lock()
	defer en.mu.Unlock()

	set, ok := en.byConfig[configName]
	if !ok {
		return
	}
	victims := make([]*entry.Entry, 0, len(set))
	for _, e := range set {
		victims = append(victims, e)
	}

	for _, e := range victims {
		if reattachTo == "" {
			en.destroyLocked(e, true)
			continue
		}
		delete(en.byConfig[configName], e.ID)
		e.ConfigName = reattachTo
		if en.byConfig[reattachTo] == nil {
			en.byConfig[reattachTo] = make(map[string]*entry.Entry)
		}
		en.byConfig[reattachTo][e.ID] = e
		en.persistSaveLocked(e)
		en.bus.PublishUpdate(e.ID, schema.Save(e))
	}
}

// DestroyByChannel bulk-removes every entry bound to ch.
func (en *Engine) DestroyByChannel(ch channel.Channel) {
	en.mu.Lock()
	defer en.mu.Unlock()

	set, ok := en.byChannel[ch.ID()]
	if !ok {
		return
	}
	victims := make([]*entry.Entry, 0, len(set))
	for _, e := range set {
		victims = append(victims, e)
	}
	for _, e := range victims {
		en.destroyLocked(e, true)
	}
}

func (en *Engine) persistSaveLocked(e *entry.Entry) {
	if en.store == nil {
		return
	}
	props := schema.Save(e)
	if err := en.store.Save(context.Background(), e.ID, props); err != nil {
		log.Printf("engine: save %s: %v", e.ID, err)
	}
}

// ---- authorized mutation API ----

// Update applies an actor-supplied property map to an existing entry,
// enforcing the permission predicate and entry editability (spec §3
// testable property 5: non-editable entries only accept comment/retention).
func (en *Engine) Update(actor access.Actor, id string, props schema.Props) (*entry.Entry, error) {
	en.mu.Lock()
	defer en.mu.Unlock()

	e, ok := en.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !en.perm.Verify(actor, access.MaskModify, e.Owner) {
		return nil, ErrPermissionDenied
	}

	if !e.Editable() {
		filtered := make(schema.Props, 2)
		for _, k := range []string{"comment", "retention"} {
			if v, ok := props[k]; ok {
				filtered[k] = v
			}
		}
		props = filtered
	}

	en.removeLocked(e)
	bindings := schema.Load(e, props)
	if e.Editable() {
		switch {
		case bindings.ChannelID != "":
			if ch := en.channels.ByID(bindings.ChannelID); ch != nil {
				e.Channel = ch
			}
		case bindings.ChannelName != "":
			if ch := en.channels.ByName(bindings.ChannelName); ch != nil {
				e.Channel = ch
			}
		}
	}
	en.clampWindowLocked(e)
	en.insertLocked(e)

	en.setTimerLocked(e)
	en.persistSaveLocked(e)
	en.bus.PublishUpdate(e.ID, schema.Save(e))
	return e, nil
}

// EntriesInChannel returns every live entry on the given channel, used by
// tests asserting index consistency (spec §8 property 1) and by callers
// building a channel's schedule view.
func (en *Engine) EntriesInChannel(channelID string) []*entry.Entry {
	en.mu.Lock()
	defer en.mu.Unlock()
	set := en.byChannel[channelID]
	out := make([]*entry.Entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// EntriesInAutorec returns every live entry spawned by the given autorec
// rule.
func (en *Engine) EntriesInAutorec(ruleID string) []*entry.Entry {
	en.mu.Lock()
	defer en.mu.Unlock()
	set := en.byAutorec[ruleID]
	out := make([]*entry.Entry, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// Delete is the authorized counterpart of Destroy.
func (en *Engine) Delete(actor access.Actor, id string, persistDelete bool) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	e, ok := en.entries[id]
	if !ok {
		return ErrNotFound
	}
	if !en.perm.Verify(actor, access.MaskDelete, e.Owner) {
		return ErrPermissionDenied
	}
	en.destroyLocked(e, persistDelete)
	return nil
}
