package engine

import (
	"testing"
	"time"

	"github.com/whisper-darkly/dvr-engine/entry"
)

func TestCreateByAutorecBuildsEntryFromBroadcastAndRule(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})
	ch := eng.channels.ByID("ch1")

	start := time.Now().Add(time.Hour)
	b := &fakeBroadcast{
		id: "bcast1", channelID: "ch1", start: start, stop: start.Add(time.Hour),
		title: "Weekly Show", episode: "S01E01",
	}
	rule := fakeAutorec{id: "rule1", creator: "alice"}

	e, err := eng.CreateByAutorec(b, rule, ch)
	if err != nil {
		t.Fatalf("CreateByAutorec: %v", err)
	}
	if e == nil {
		t.Fatalf("CreateByAutorec returned nil entry with nil error")
	}
	if e.AutorecID != "rule1" {
		t.Fatalf("AutorecID = %q, want rule1", e.AutorecID)
	}
	if e.Title.Get("") != "Weekly Show" {
		t.Fatalf("Title = %q, want Weekly Show", e.Title.Get(""))
	}
	if e.Creator != "Auto recording by: alice" {
		t.Fatalf("Creator = %q, want to credit the rule's creator", e.Creator)
	}
	if !e.Bound() || e.Broadcast.ID() != "bcast1" {
		t.Fatalf("CreateByAutorec should bind the spawned entry to its source broadcast")
	}
}

func TestCreateByAutorecSkipsWhenBroadcastAlreadyCovered(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})
	ch := eng.channels.ByID("ch1")

	start := time.Now().Add(time.Hour)
	b := &fakeBroadcast{id: "bcast1", channelID: "ch1", start: start, stop: start.Add(time.Hour), title: "Weekly Show"}
	rule := fakeAutorec{id: "rule1"}

	first, err := eng.CreateByAutorec(b, rule, ch)
	if err != nil || first == nil {
		t.Fatalf("first CreateByAutorec: entry=%v err=%v", first, err)
	}

	second, err := eng.CreateByAutorec(b, rule, ch)
	if err != nil {
		t.Fatalf("second CreateByAutorec: %v", err)
	}
	if second != nil {
		t.Fatalf("CreateByAutorec should silently no-op when the broadcast is already covered, got %v", second)
	}
	if in := eng.EntriesInAutorec("rule1"); len(in) != 1 {
		t.Fatalf("EntriesInAutorec(rule1) = %d entries, want 1 (no duplicate spawned)", len(in))
	}
}

func TestCreateByAutorecSkipsWhenEpisodeAlreadyCovered(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})
	ch := eng.channels.ByID("ch1")

	start := time.Now().Add(time.Hour)
	first := &fakeBroadcast{id: "bcast1", channelID: "ch1", start: start, stop: start.Add(time.Hour), title: "Weekly Show", episode: "S01E01"}
	rule := fakeAutorec{id: "rule1"}
	if _, err := eng.CreateByAutorec(first, rule, ch); err != nil {
		t.Fatalf("first CreateByAutorec: %v", err)
	}

	rerun := &fakeBroadcast{id: "bcast1-rerun", channelID: "ch1", start: start.Add(6 * time.Hour), stop: start.Add(7 * time.Hour), title: "Weekly Show", episode: "S01E01"}
	second, err := eng.CreateByAutorec(rerun, rule, ch)
	if err != nil {
		t.Fatalf("second CreateByAutorec: %v", err)
	}
	if second != nil {
		t.Fatalf("CreateByAutorec should skip a rerun broadcast covering an already-spawned episode, got %v", second)
	}
}

func TestCreateByTimerecBuildsEntryFromRuleOnly(t *testing.T) {
	eng, _, _ := newTestEngine(t, fakeChannel{id: "ch1", name: "Channel One", enabled: true})
	ch := eng.channels.ByID("ch1")

	start := time.Now().Add(time.Hour)
	rule := fakeTimerec{id: "trule1", creator: "bob"}

	e, err := eng.CreateByTimerec(rule, ch, entry.LangStr{"": "Nightly News"}, start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("CreateByTimerec: %v", err)
	}
	if e.TimerecID != "trule1" {
		t.Fatalf("TimerecID = %q, want trule1", e.TimerecID)
	}
	if e.Title.Get("") != "Nightly News" {
		t.Fatalf("Title = %q, want Nightly News", e.Title.Get(""))
	}
	if e.Creator != "Auto recording by: bob" {
		t.Fatalf("Creator = %q, want to credit the rule's creator", e.Creator)
	}
	if e.ExtraPre(2) != 0 {
		t.Fatalf("ExtraPre for a timerec entry = %d, want 0 (timerec entries never pad)", e.ExtraPre(2))
	}

	if got := eng.FindByID(e.ID); got != e {
		t.Fatalf("FindByID after CreateByTimerec did not return the spawned entry")
	}
}

type fakeTimerec struct {
	id      string
	creator string
}

func (r fakeTimerec) ID() string         { return r.id }
func (r fakeTimerec) StartExtra() int    { return 0 }
func (r fakeTimerec) StopExtra() int     { return 0 }
func (r fakeTimerec) ConfigName() string { return "" }
func (r fakeTimerec) Priority() int      { return 0 }
func (r fakeTimerec) Retention() int     { return 0 }
func (r fakeTimerec) Owner() string      { return "" }
func (r fakeTimerec) Creator() string    { return r.creator }
func (r fakeTimerec) Comment() string    { return "" }
func (r fakeTimerec) Directory() string  { return "" }
func (r fakeTimerec) Spawn() string      { return "" }
