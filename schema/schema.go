// Package schema implements the property schema described in spec §6:
// each entry field has {id, type, storage accessor, options}, and the
// persistence bridge (and entry creation from an external property map)
// walks this table rather than branching on field name. Modeled per the
// design notes as a table of tagged get/set closures rather than the
// original's vtable of function pointers.
package schema

import (
	"time"

	"github.com/whisper-darkly/dvr-engine/entry"
)

// Kind is the wire type of a field.
type Kind int

const (
	KindTime Kind = iota
	KindInt
	KindU32
	KindBool
	KindString
	KindLangStr
)

// Opts are the per-field options from spec §6.
type Opts struct {
	ReadOnly bool
	NoSave   bool
	Hidden   bool
	SortKey  bool
}

// Field is one row of the schema table.
type Field struct {
	ID   string
	Kind Kind
	Opts Opts
	Get  func(e *entry.Entry) any
	Set  func(e *entry.Entry, v any) // no-op for ReadOnly fields; caller should not call Set on those
}

// Props is the string-keyed property map create/save operate on (spec
// §4.1, §6).
type Props map[string]any

// Fields is the bit-stable schema (spec §6 field-name list), excluding the
// binding fields (channel, channelname, broadcast, autorec, timerec) which
// the engine resolves against its collaborators rather than setting
// directly on the entry — see Bindings below.
var Fields = []Field{
	{ID: "start", Kind: KindTime,
		Get: func(e *entry.Entry) any { return e.Start },
		Set: func(e *entry.Entry, v any) { e.Start = asTime(v) }},
	{ID: "stop", Kind: KindTime,
		Get: func(e *entry.Entry) any { return e.Stop },
		Set: func(e *entry.Entry, v any) { e.Stop = asTime(v) }},
	{ID: "start_extra", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.StartExtra },
		Set: func(e *entry.Entry, v any) { e.StartExtra = asInt(v) }},
	{ID: "stop_extra", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.StopExtra },
		Set: func(e *entry.Entry, v any) { e.StopExtra = asInt(v) }},
	{ID: "title", Kind: KindLangStr,
		Get: func(e *entry.Entry) any { return e.Title },
		Set: func(e *entry.Entry, v any) { e.Title = asLangStr(v) }},
	{ID: "subtitle", Kind: KindLangStr,
		Get: func(e *entry.Entry) any { return e.Subtitle },
		Set: func(e *entry.Entry, v any) { e.Subtitle = asLangStr(v) }},
	{ID: "description", Kind: KindLangStr,
		Get: func(e *entry.Entry) any { return e.Description },
		Set: func(e *entry.Entry, v any) { e.Description = asLangStr(v) }},
	{ID: "episode", Kind: KindString,
		Get: func(e *entry.Entry) any { return e.Episode },
		Set: func(e *entry.Entry, v any) { e.Episode = asString(v) }},
	{ID: "pri", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.Priority },
		Set: func(e *entry.Entry, v any) { e.Priority = asInt(v) }},
	{ID: "retention", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.Retention },
		Set: func(e *entry.Entry, v any) { e.Retention = asInt(v) }},
	{ID: "container", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.Container },
		Set: func(e *entry.Entry, v any) { e.Container = asInt(v) }},
	{ID: "config_name", Kind: KindString,
		Get: func(e *entry.Entry) any { return e.ConfigName },
		Set: func(e *entry.Entry, v any) { e.ConfigName = asString(v) }},
	{ID: "owner", Kind: KindString,
		Get: func(e *entry.Entry) any { return e.Owner },
		Set: func(e *entry.Entry, v any) { e.Owner = asString(v) }},
	{ID: "creator", Kind: KindString,
		Get: func(e *entry.Entry) any { return e.Creator },
		Set: func(e *entry.Entry, v any) { e.Creator = asString(v) }},
	{ID: "comment", Kind: KindString,
		Get: func(e *entry.Entry) any { return e.Comment },
		Set: func(e *entry.Entry, v any) { e.Comment = asString(v) }},
	{ID: "filename", Kind: KindString, Opts: Opts{ReadOnly: true},
		Get: func(e *entry.Entry) any { return e.Filename }},
	{ID: "directory", Kind: KindString, Opts: Opts{ReadOnly: true},
		Get: func(e *entry.Entry) any { return e.Directory }},
	{ID: "errorcode", Kind: KindInt, Opts: Opts{ReadOnly: true},
		Get: func(e *entry.Entry) any { return e.LastError }},
	{ID: "errors", Kind: KindInt, Opts: Opts{ReadOnly: true},
		Get: func(e *entry.Entry) any { return e.Errors }},
	{ID: "data_errors", Kind: KindInt, Opts: Opts{ReadOnly: true},
		Get: func(e *entry.Entry) any { return e.DataErrors }},
	{ID: "dvb_eid", Kind: KindU32, Opts: Opts{Hidden: true},
		Get: func(e *entry.Entry) any { return e.DVBEID },
		Set: func(e *entry.Entry, v any) { e.DVBEID = uint32(asInt(v)) }},
	{ID: "noresched", Kind: KindBool,
		Get: func(e *entry.Entry) any { return e.DontReschedule },
		Set: func(e *entry.Entry, v any) { e.DontReschedule = asBool(v) }},
	{ID: "content_type", Kind: KindInt,
		Get: func(e *entry.Entry) any { return e.ContentType },
		Set: func(e *entry.Entry, v any) { e.ContentType = asInt(v) }},
}

// Bindings is what Load extracts but cannot apply itself, since resolving
// a channel/broadcast/rule id to the live object requires the engine's
// collaborators.
type Bindings struct {
	ChannelID   string
	ChannelName string
	BroadcastID string
	AutorecID   string
	TimerecID   string
}

// Save walks Fields and returns every non-no-save field's current value,
// plus the binding ids, as a flat property map ready for the persistence
// bridge (spec §4.7, §6).
func Save(e *entry.Entry) Props {
	p := make(Props, len(Fields)+5)
	for _, f := range Fields {
		if f.Opts.NoSave || f.Get == nil {
			continue
		}
		p[f.ID] = f.Get(e)
	}
	if e.Channel != nil {
		p["channel"] = e.Channel.ID()
	}
	if e.Broadcast != nil {
		p["broadcast"] = e.Broadcast.ID()
	}
	p["autorec"] = e.AutorecID
	p["timerec"] = e.TimerecID
	return p
}

// Load applies every scalar/localized field present in p onto e (skipping
// read-only fields — those are recorder-owned, never round-tripped from
// an external conf) and returns the binding ids for the caller to resolve.
func Load(e *entry.Entry, p Props) Bindings {
	for _, f := range Fields {
		if f.Opts.ReadOnly || f.Set == nil {
			continue
		}
		if v, ok := p[f.ID]; ok {
			f.Set(e, v)
		}
	}
	var b Bindings
	if v, ok := p["channel"].(string); ok {
		b.ChannelID = v
	}
	if v, ok := p["channelname"].(string); ok {
		b.ChannelName = v
	}
	if v, ok := p["broadcast"].(string); ok {
		b.BroadcastID = v
	}
	if v, ok := p["autorec"].(string); ok {
		b.AutorecID = v
	}
	if v, ok := p["timerec"].(string); ok {
		b.TimerecID = v
	}
	return b
}

// ---- coercion helpers: values round-trip through JSON, so numbers may
// arrive as float64 and times as RFC3339 strings or time.Time. ----

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	case float64:
		return time.Unix(int64(t), 0).UTC()
	}
	return time.Time{}
}

func asLangStr(v any) entry.LangStr {
	switch t := v.(type) {
	case entry.LangStr:
		return t
	case map[string]any:
		out := make(entry.LangStr, len(t))
		for k, vv := range t {
			out[k] = asString(vv)
		}
		return out
	case map[string]string:
		return entry.LangStr(t)
	case string:
		return entry.LangStr{"": t}
	}
	return nil
}
