// Package persist defines the Persistence bridge (C7, spec §4.7): a
// generic key-value settings store keyed by entry UUID, holding each
// entry's schema.Props as an opaque blob. The engine is the only caller;
// it owns translating Props to and from a live *entry.Entry via the
// schema package.
package persist

import "context"

// Record is one persisted entry: its UUID and its schema-encoded
// property map (spec §4.7 "schema-driven save/load").
type Record struct {
	UUID  string
	Props map[string]any
}

// Store is the persistence abstraction the engine depends on. All
// methods are context-aware; the default implementation is SQLite
// (persist/sqlite), pure Go via modernc.org/sqlite so the binary needs no
// C compiler.
type Store interface {
	// Save upserts a single entry's property map under its UUID.
	Save(ctx context.Context, uuid string, props map[string]any) error

	// LoadAll returns every persisted entry, for the engine to replay at
	// startup (spec §4.1 "reconciliation on load").
	LoadAll(ctx context.Context) ([]Record, error)

	// Remove deletes a persisted entry. Removing an absent uuid is not
	// an error (spec §4.7 "destroy is idempotent at the persistence
	// layer").
	Remove(ctx context.Context, uuid string) error

	Close() error
}
