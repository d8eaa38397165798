// Package epg defines the narrow interface the recording-entry engine uses
// to observe the electronic program guide. The EPG database itself — the
// acquisition, storage and scheduling of broadcasts — lives outside this
// module; the engine only ever holds a counted reference to a Broadcast and
// reads its fields.
package epg

import "time"

// Broadcast is a single airing of an episode on a channel at a time, as
// exposed by the external EPG database.
//
// GetRef/PutRef model the engine's side of a bidirectional but
// non-symmetric reference count: the broadcast never holds a strong
// reference back to entries (see entry.Entry for the engine side of this
// contract). Implementations must make GetRef/PutRef safe to call while
// the engine's global lock is held.
type Broadcast interface {
	ID() string
	ChannelID() string

	Start() time.Time
	Stop() time.Time

	// DVBEID is the DVB EPG event id, or 0 if the broadcast has none.
	DVBEID() uint32

	// Title/Subtitle/Description return the text for lang, falling back to
	// the broadcast's default language when lang is empty.
	Title(lang string) string
	Subtitle(lang string) string
	Description(lang string) string

	// Episode returns the formatted episode string (e.g. "Season 1.Episode 2"),
	// or "" if the broadcast has no episode information.
	Episode() string

	ContentType() int

	GetRef()
	PutRef()
}

// Schedule exposes a channel's EPG events in start-time order, used by the
// binder when searching for a fuzzy-match replacement broadcast.
type Schedule interface {
	// ForEach calls fn for every broadcast currently scheduled on the
	// channel, in start-time order. Iteration stops early if fn returns
	// false.
	ForEach(channelID string, fn func(Broadcast) bool)
}
