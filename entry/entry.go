// Package entry holds the central DVR entity: a single scheduled, running,
// completed or expired recording. It implements the Entry Record component
// (spec §4.2) — derived-time accessors, reference counting, the title
// formatter — but never the entry store's multi-index membership (that is
// engine.Engine, spec §4.1) nor the state machine that drives transitions
// (engine, spec §4.4).
package entry

import (
	"sync"
	"time"

	"github.com/whisper-darkly/dvr-engine/channel"
	"github.com/whisper-darkly/dvr-engine/epg"
)

// SchedState is the top-level lifecycle state (spec §3).
type SchedState string

const (
	NoState    SchedState = "NOSTATE"
	Scheduled  SchedState = "SCHEDULED"
	Recording  SchedState = "RECORDING"
	Completed  SchedState = "COMPLETED"
	MissedTime SchedState = "MISSED_TIME"
)

// RecState is the sub-state while SchedState == Recording.
type RecState string

const (
	RecPending          RecState = "PENDING"
	RecWaitProgramStart RecState = "WAIT_PROGRAM_START"
	RecRunning          RecState = "RUNNING"
	RecCommercial       RecState = "COMMERCIAL"
	RecError            RecState = "ERROR"
)

// extraUnset is the sentinel meaning "inherit" for the *_extra fields,
// matching the original's extra_valid() check (a value of 0 or -1 is
// considered unset).
const extraUnset = -1

func extraValid(v int) bool { return v != 0 && v != extraUnset }

// LangStr is a localized text value, keyed by language tag. An empty key
// holds the default-language text.
type LangStr map[string]string

// Get returns the text for lang, falling back to the default ("") entry,
// then to the empty string.
func (l LangStr) Get(lang string) string {
	if l == nil {
		return ""
	}
	if v, ok := l[lang]; ok && v != "" {
		return v
	}
	return l[""]
}

// Empty reports whether every language variant is the empty string.
func (l LangStr) Empty() bool {
	for _, v := range l {
		if v != "" {
			return false
		}
	}
	return true
}

// Equal compares two localized strings by their default-language text,
// matching lang_str_compare in the original (spec §4.6 dedup, §4.5 fuzzy
// match both compare on default language only).
func (l LangStr) Equal(o LangStr) bool {
	return l.Get("") == o.Get("")
}

func cloneLangStr(l LangStr) LangStr {
	if l == nil {
		return nil
	}
	out := make(LangStr, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Entry is the central DVR entity (spec §3). All mutation happens under the
// engine's global lock; Entry itself does no locking beyond the refcount
// (dec_ref is called from multiple potential finalizers).
type Entry struct {
	mu sync.Mutex // guards refcount only; field mutation is serialized by the engine's lock

	ID string // stable short UUID, assigned on creation

	// Scheduling window (spec §3). Zero StartExtra/StopExtra means "unset".
	Start, Stop           time.Time
	StartExtra, StopExtra int

	// Binding.
	Channel    channel.Channel // weak: engine does not refcount channels
	Broadcast  epg.Broadcast   // counted: Entry holds exactly one GetRef on this
	AutorecID  string
	TimerecID  string

	// Content metadata.
	Title, Subtitle, Description LangStr
	Episode                      string
	DVBEID                       uint32
	ContentType                  int

	// Runtime state.
	SchedState SchedState
	RecState   RecState
	LastError  int
	Errors     int
	DataErrors int

	// Artifacts.
	Filename       string
	Directory      string
	Container      int // -1 means "inherit from config profile"
	Priority       int
	Retention      int // days; 0 means "inherit from config"
	Owner          string
	Creator        string
	Comment        string
	DontReschedule bool

	// ConfigName is the name of the DVR configuration profile this entry
	// belongs to (spec §4.1 "config" index membership).
	ConfigName string

	refcount int32
}

// NewEntry returns a freshly allocated, zero-state entry. Callers (the
// store) are responsible for assigning ID and inserting into indices.
func NewEntry() *Entry {
	return &Entry{
		SchedState: NoState,
		Container:  -1,
		refcount:   1,
	}
}

// ---- reference counting ----

// Ref increments the reference count.
func (e *Entry) Ref() {
	e.mu.Lock()
	e.refcount++
	e.mu.Unlock()
}

// DecRef decrements the reference count and reports whether it reached
// zero. The caller (the store) is responsible for unlinking from indices
// and releasing the broadcast reference when this returns true — Entry
// itself never calls back into the store to avoid a layering cycle.
func (e *Entry) DecRef() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refcount--
	return e.refcount <= 0
}

// ---- derived accessors (spec §4.2) ----

// ExtraPre returns the effective pre-padding in minutes: 0 for a timerec
// entry, else the entry's own value if valid, else the channel's, else
// configDefault (passed in by the caller — Entry has no reference to
// config.Data to avoid an import cycle between entry and config).
func (e *Entry) ExtraPre(configDefault int) int {
	if e.TimerecID != "" {
		return 0
	}
	if extraValid(e.StartExtra) {
		return e.StartExtra
	}
	if e.Channel != nil && extraValid(e.Channel.ExtraTimePre()) {
		return e.Channel.ExtraTimePre()
	}
	return configDefault
}

// ExtraPost mirrors ExtraPre for the post-padding.
func (e *Entry) ExtraPost(configDefault int) int {
	if e.TimerecID != "" {
		return 0
	}
	if extraValid(e.StopExtra) {
		return e.StopExtra
	}
	if e.Channel != nil && extraValid(e.Channel.ExtraTimePost()) {
		return e.Channel.ExtraTimePost()
	}
	return configDefault
}

// EffectiveStart is start minus pre-padding minus the fixed 30s receiver
// lock lead (spec §4.2).
func (e *Entry) EffectiveStart(configExtraPre int) time.Time {
	pre := e.ExtraPre(configExtraPre)
	return e.Start.Add(-time.Duration(pre)*time.Minute - 30*time.Second)
}

// EffectiveStop is stop plus post-padding.
func (e *Entry) EffectiveStop(configExtraPost int) time.Time {
	post := e.ExtraPost(configExtraPost)
	return e.Stop.Add(time.Duration(post) * time.Minute)
}

// ContainerCode returns the entry's container if set (>=0), else
// configDefault.
func (e *Entry) ContainerCode(configDefault int) int {
	if e.Container >= 0 {
		return e.Container
	}
	return configDefault
}

// RetentionDays returns the entry's retention if set (>0), else
// configDefault.
func (e *Entry) RetentionDays(configDefault int) int {
	if e.Retention > 0 {
		return e.Retention
	}
	return configDefault
}

// Editable reports whether binding/window fields may still be mutated
// (spec §3: "editable only while SCHEDULED, or pre-initial").
func (e *Entry) Editable() bool {
	return e.SchedState == NoState || e.SchedState == Scheduled
}

// Bound reports whether the entry currently holds an EPG broadcast
// reference.
func (e *Entry) Bound() bool { return e.Broadcast != nil }

// Bind takes a GetRef on b and sets it as the entry's broadcast. Any
// previously bound broadcast must already have been released by the
// caller (Unbind) — Entry does not track "replace" as a single atomic
// operation because the binder (spec §4.5) needs to propagate fields
// between the putref and the getref.
func (e *Entry) Bind(b epg.Broadcast) {
	b.GetRef()
	e.Broadcast = b
	e.DVBEID = b.DVBEID()
}

// Unbind releases the entry's reference on its current broadcast, if any.
func (e *Entry) Unbind() {
	if e.Broadcast != nil {
		e.Broadcast.PutRef()
		e.Broadcast = nil
	}
}

// Clone returns a value copy suitable for read-only external exposure
// (e.g. SubscriptionStatus-style API responses) without sharing the
// localized-string maps.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Title = cloneLangStr(e.Title)
	cp.Subtitle = cloneLangStr(e.Subtitle)
	cp.Description = cloneLangStr(e.Description)
	return &cp
}

// SetResult is how the Recorder collaborator reports back into the entry
// (spec §6 "recorder writes filename, directory, rec_state, last_error,
// errors, data_errors under the lock"). Called while the engine holds its
// global lock.
func (e *Entry) SetResult(filename, directory string, rec RecState, lastError, errors, dataErrors int) {
	e.Filename = filename
	e.Directory = directory
	e.RecState = rec
	e.LastError = lastError
	e.Errors = errors
	e.DataErrors = dataErrors
}
