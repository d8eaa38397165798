package engine

import (
	"context"
	"sync"
	"time"

	"github.com/whisper-darkly/dvr-engine/access"
	"github.com/whisper-darkly/dvr-engine/channel"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/epg"
	"github.com/whisper-darkly/dvr-engine/persist"
	"github.com/whisper-darkly/dvr-engine/rules"
)

// ---- channel.Inventory ----

type fakeChannel struct {
	id        string
	name      string
	enabled   bool
	extraPre  int
	extraPost int
}

func (c fakeChannel) ID() string         { return c.id }
func (c fakeChannel) Name() string       { return c.name }
func (c fakeChannel) Icon() string       { return "" }
func (c fakeChannel) Enabled() bool      { return c.enabled }
func (c fakeChannel) ExtraTimePre() int  { return c.extraPre }
func (c fakeChannel) ExtraTimePost() int { return c.extraPost }

type fakeInventory struct {
	byID   map[string]channel.Channel
	byName map[string]channel.Channel
}

func newFakeInventory(channels ...fakeChannel) *fakeInventory {
	inv := &fakeInventory{byID: map[string]channel.Channel{}, byName: map[string]channel.Channel{}}
	for _, c := range channels {
		inv.byID[c.id] = c
		inv.byName[c.name] = c
	}
	return inv
}

func (inv *fakeInventory) ByID(id string) channel.Channel     { return inv.byID[id] }
func (inv *fakeInventory) ByName(name string) channel.Channel { return inv.byName[name] }

// ---- epg.Broadcast / epg.Schedule ----

type fakeBroadcast struct {
	id, channelID    string
	start, stop      time.Time
	dvbEID           uint32
	title, subtitle  string
	description      string
	episode          string
	contentType      int
	refs             int
}

func (b *fakeBroadcast) ID() string              { return b.id }
func (b *fakeBroadcast) ChannelID() string       { return b.channelID }
func (b *fakeBroadcast) Start() time.Time        { return b.start }
func (b *fakeBroadcast) Stop() time.Time         { return b.stop }
func (b *fakeBroadcast) DVBEID() uint32          { return b.dvbEID }
func (b *fakeBroadcast) Title(string) string     { return b.title }
func (b *fakeBroadcast) Subtitle(string) string   { return b.subtitle }
func (b *fakeBroadcast) Description(string) string { return b.description }
func (b *fakeBroadcast) Episode() string         { return b.episode }
func (b *fakeBroadcast) ContentType() int        { return b.contentType }
func (b *fakeBroadcast) GetRef()                 { b.refs++ }
func (b *fakeBroadcast) PutRef()                 { b.refs-- }

type fakeSchedule struct {
	mu          sync.Mutex
	byChannel   map[string][]epg.Broadcast
}

func newFakeSchedule() *fakeSchedule {
	return &fakeSchedule{byChannel: map[string][]epg.Broadcast{}}
}

func (s *fakeSchedule) add(b *fakeBroadcast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChannel[b.channelID] = append(s.byChannel[b.channelID], b)
}

func (s *fakeSchedule) ForEach(channelID string, fn func(epg.Broadcast) bool) {
	s.mu.Lock()
	list := append([]epg.Broadcast(nil), s.byChannel[channelID]...)
	s.mu.Unlock()
	for _, b := range list {
		if !fn(b) {
			return
		}
	}
}

// ---- recorder.Recorder ----

type fakeRecorder struct {
	mu          sync.Mutex
	subscribed  []string
	unsubscribed []string
	subscribeErr error
}

func (r *fakeRecorder) Subscribe(ctx context.Context, e *entry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed = append(r.subscribed, e.ID)
	if r.subscribeErr != nil {
		return r.subscribeErr
	}
	e.SetResult("/rec/"+e.ID+".ts", "/rec", entry.RecRunning, 0, 0, 0)
	return nil
}

func (r *fakeRecorder) Unsubscribe(ctx context.Context, e *entry.Entry, stopCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed = append(r.unsubscribed, e.ID)
	return nil
}

// ---- persist.Store ----

type fakeStore struct {
	mu      sync.Mutex
	records map[string]map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]map[string]any{}}
}

func (s *fakeStore) Save(ctx context.Context, uuid string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[uuid] = props
	return nil
}

func (s *fakeStore) LoadAll(ctx context.Context) ([]persist.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persist.Record, 0, len(s.records))
	for uuid, props := range s.records {
		out = append(out, persist.Record{UUID: uuid, Props: props})
	}
	return out, nil
}

func (s *fakeStore) Remove(ctx context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, uuid)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// ---- notify.Bus ----

type fakeBus struct {
	mu      sync.Mutex
	added   []string
	updated []string
	deleted []string
	nextAt  []time.Time
}

func (b *fakeBus) PublishAdd(uuid string, props map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, uuid)
}

func (b *fakeBus) PublishUpdate(uuid string, props map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = append(b.updated, uuid)
}

func (b *fakeBus) PublishDelete(uuid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, uuid)
}

func (b *fakeBus) PublishNextStart(when time.Time, title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextAt = append(b.nextAt, when)
}

// ---- access.Permission ----

// allowAllPermission lets every test focus on the engine's own logic rather
// than re-exercising the casbin policy (access_test.go already covers that).
type allowAllPermission struct{}

func (allowAllPermission) Verify(actor access.Actor, mask access.Mask, ownerID string) bool {
	return true
}

// ---- rules.AutorecLookup / rules.TimerecLookup ----

type fakeAutorec struct {
	id         string
	mode       rules.RecordMode
	creator    string
}

func (r fakeAutorec) ID() string                 { return r.id }
func (r fakeAutorec) RecordMode() rules.RecordMode { return r.mode }
func (r fakeAutorec) StartExtra() int            { return 0 }
func (r fakeAutorec) StopExtra() int             { return 0 }
func (r fakeAutorec) ConfigName() string         { return "" }
func (r fakeAutorec) Priority() int              { return 0 }
func (r fakeAutorec) Retention() int             { return 0 }
func (r fakeAutorec) Owner() string              { return "" }
func (r fakeAutorec) Creator() string            { return r.creator }
func (r fakeAutorec) Comment() string            { return "" }
func (r fakeAutorec) Directory() string          { return "" }

type fakeAutorecLookup struct {
	rules map[string]rules.Autorec
}

func (l fakeAutorecLookup) ByID(id string) (rules.Autorec, bool) {
	r, ok := l.rules[id]
	return r, ok
}

type fakeTimerecLookup struct{}

func (fakeTimerecLookup) ByID(id string) (rules.Timerec, bool) { return nil, false }
