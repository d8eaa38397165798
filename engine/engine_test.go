package engine

import (
	"testing"
	"time"

	"github.com/whisper-darkly/dvr-engine/access"
	"github.com/whisper-darkly/dvr-engine/config"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/rules"
	"github.com/whisper-darkly/dvr-engine/schema"
)

// denyAllPermission is the inverse of fakes_test.go's allowAllPermission,
// used to check that Update/Delete actually consult the predicate.
type denyAllPermission struct{}

func (denyAllPermission) Verify(actor access.Actor, mask access.Mask, ownerID string) bool {
	return false
}

func testConfig() *config.Global {
	return config.New(config.Data{
		Name:              "default",
		ExtraTimePre:      2,
		ExtraTimePost:     15,
		RetentionDays:     30,
		UpdateWindow:      5 * time.Minute,
		NextStartCoalesce: 5 * time.Second,
	})
}

func newTestEngine(t *testing.T, channels ...fakeChannel) (*Engine, *fakeBus, *fakeStore) {
	t.Helper()
	bus := &fakeBus{}
	store := newFakeStore()
	eng, err := New(Options{
		Config:   testConfig(),
		Channels: newFakeInventory(channels...),
		EPG:      newFakeSchedule(),
		Autorecs: fakeAutorecLookup{rules: map[string]rules.Autorec{}},
		Timerecs: fakeTimerecLookup{},
		Recorder: &fakeRecorder{},
		Store:    store,
		Bus:      bus,
		Perm:     allowAllPermission{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, bus, store
}

func TestCreateRequiresStartStopChannel(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	if _, err := eng.Create(schema.Props{}); err != ErrInvalidInput {
		t.Fatalf("Create with no fields: got %v, want ErrInvalidInput", err)
	}

	now := time.Now().Add(time.Hour)
	if _, err := eng.Create(schema.Props{"start": now, "stop": now.Add(time.Hour)}); err != ErrInvalidInput {
		t.Fatalf("Create with no channel: got %v, want ErrInvalidInput", err)
	}

	if _, err := eng.Create(schema.Props{"start": now, "stop": now.Add(time.Hour), "channel": "does-not-exist"}); err != ErrInvalidInput {
		t.Fatalf("Create with unknown channel id: got %v, want ErrInvalidInput", err)
	}
}

func TestCreateSchedulesAndPublishesAdd(t *testing.T) {
	eng, bus, store := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	stop := start.Add(time.Hour)
	e, err := eng.Create(schema.Props{
		"start":   start,
		"stop":    stop,
		"channel": "ch1",
		"title":   map[string]string{"": "Demo"},
		"owner":   "alice",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.SchedState != entry.Scheduled {
		t.Fatalf("SchedState = %v, want SCHEDULED", e.SchedState)
	}

	if got := eng.FindByID(e.ID); got != e {
		t.Fatalf("FindByID did not return the created entry")
	}
	if inChannel := eng.EntriesInChannel("ch1"); len(inChannel) != 1 || inChannel[0] != e {
		t.Fatalf("EntriesInChannel(ch1) = %v, want [%v]", inChannel, e)
	}

	bus.mu.Lock()
	addedCount := len(bus.added)
	bus.mu.Unlock()
	if addedCount != 1 {
		t.Fatalf("PublishAdd called %d times, want 1", addedCount)
	}

	store.mu.Lock()
	_, persisted := store.records[e.ID]
	store.mu.Unlock()
	if !persisted {
		t.Fatalf("Create should have persisted the new entry")
	}
}

func TestCreateRejectsSameChannelSameStart(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	props := schema.Props{"start": start, "stop": start.Add(time.Hour), "channel": "ch1"}
	if _, err := eng.Create(props); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := eng.Create(props); err != ErrUniqueness {
		t.Fatalf("second Create at the same channel+start: got %v, want ErrUniqueness", err)
	}
}

func TestDestroyRemovesFromIndicesAndPublishes(t *testing.T) {
	eng, bus, store := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{"start": start, "stop": start.Add(time.Hour), "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	eng.Destroy(e, true)

	if got := eng.FindByID(e.ID); got != nil {
		t.Fatalf("FindByID after Destroy = %v, want nil", got)
	}
	if in := eng.EntriesInChannel("ch1"); len(in) != 0 {
		t.Fatalf("EntriesInChannel after Destroy = %v, want empty", in)
	}

	bus.mu.Lock()
	deletedCount := len(bus.deleted)
	bus.mu.Unlock()
	if deletedCount != 1 {
		t.Fatalf("PublishDelete called %d times, want 1", deletedCount)
	}

	store.mu.Lock()
	_, stillThere := store.records[e.ID]
	store.mu.Unlock()
	if stillThere {
		t.Fatalf("Destroy(persistDelete=true) should have removed the persisted record")
	}
}

func TestUpdateDeniedByPermission(t *testing.T) {
	bus := &fakeBus{}
	store := newFakeStore()
	eng, err := New(Options{
		Config:   testConfig(),
		Channels: newFakeInventory(fakeChannel{id: "ch1", name: "Channel One", enabled: true}),
		EPG:      newFakeSchedule(),
		Autorecs: fakeAutorecLookup{},
		Timerecs: fakeTimerecLookup{},
		Recorder: &fakeRecorder{},
		Store:    store,
		Bus:      bus,
		Perm:     denyAllPermission{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{"start": start, "stop": start.Add(time.Hour), "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = eng.Update(access.Actor{ID: "alice", Role: access.RoleRecorder}, e.ID, schema.Props{"comment": "x"})
	if err != ErrPermissionDenied {
		t.Fatalf("Update with denying permission: got %v, want ErrPermissionDenied", err)
	}
}

func TestDestroyByConfigReattaches(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{
		"start": start, "stop": start.Add(time.Hour), "channel": "ch1", "config_name": "hd-profile",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	eng.DestroyByConfig("hd-profile", "default-profile")

	if e.ConfigName != "default-profile" {
		t.Fatalf("ConfigName after reattach = %q, want default-profile", e.ConfigName)
	}
	if got := eng.FindByID(e.ID); got == nil {
		t.Fatalf("reattached entry should still exist, FindByID returned nil")
	}
}

func TestDestroyByConfigWithoutReattachDestroys(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{
		"start": start, "stop": start.Add(time.Hour), "channel": "ch1", "config_name": "hd-profile",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	eng.DestroyByConfig("hd-profile", "")

	if got := eng.FindByID(e.ID); got != nil {
		t.Fatalf("entry should be destroyed, FindByID returned %v", got)
	}
}

func TestCreateClampsStopBeforeStart(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{"start": start, "stop": start.Add(-time.Minute), "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !e.Stop.Equal(e.Start) {
		t.Fatalf("Stop = %v, want clamped to Start (%v)", e.Stop, e.Start)
	}
}

func TestCreateClampsStopBeforeWallClock(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(-time.Hour)
	stop := time.Now().Add(-30 * time.Minute)
	before := time.Now()
	e, err := eng.Create(schema.Props{"start": start, "stop": stop, "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Stop.Before(before) {
		t.Fatalf("Stop = %v, want clamped up to the wall clock (>= %v)", e.Stop, before)
	}
}

func TestUpdateClampsStopBeforeStart(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(time.Hour)
	e, err := eng.Create(schema.Props{"start": start, "stop": start.Add(time.Hour), "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	admin := access.Actor{ID: "admin", Role: access.RoleAdmin}
	updated, err := eng.Update(admin, e.ID, schema.Props{"stop": start.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Stop.Equal(updated.Start) {
		t.Fatalf("Stop after Update = %v, want clamped to Start (%v)", updated.Stop, updated.Start)
	}
}

func TestUpdateClampsStopBeforeWallClock(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})

	start := time.Now().Add(-2 * time.Hour)
	e, err := eng.Create(schema.Props{"start": start, "stop": start.Add(time.Hour), "channel": "ch1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	admin := access.Actor{ID: "admin", Role: access.RoleAdmin}
	before := time.Now()
	updated, err := eng.Update(admin, e.ID, schema.Props{"stop": start.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Stop.Before(before) {
		t.Fatalf("Stop after Update = %v, want clamped up to the wall clock (>= %v)", updated.Stop, before)
	}
}
