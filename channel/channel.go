// Package channel defines the narrow interface the engine uses to look up
// channels. The channel inventory itself — configuration, tuner mapping,
// enable/disable persistence — lives outside this module.
package channel

// Channel is a single entry in the external channel inventory.
type Channel interface {
	ID() string
	Name() string
	Icon() string
	Enabled() bool

	// ExtraTimePre/ExtraTimePost are the channel's padding defaults, in
	// minutes. The sentinel values 0 and -1 both mean "unset" (see
	// entry.Entry.ExtraPre/ExtraPost, which fall through to the DVR config
	// default when neither the entry nor the channel specifies a value).
	ExtraTimePre() int
	ExtraTimePost() int
}

// Inventory is the lookup surface the engine needs from the channel
// component: by id (used when binding an entry) and by display name (used
// when an entry is created with only a "channelname" hint).
type Inventory interface {
	ByID(id string) Channel
	ByName(name string) Channel
}
