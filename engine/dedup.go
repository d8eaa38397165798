package engine

import (
	"github.com/whisper-darkly/dvr-engine/dedup"
	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/rules"
)

// dedupFindLocked gathers every other live entry as a dedup candidate and
// delegates to dedup.Find (C6). Read-only: calling it twice for the same
// entry returns the same result (spec §8 property 8).
func (en *Engine) dedupFindLocked(e *entry.Entry, mode rules.RecordMode) *entry.Entry {
	candidates := make([]*entry.Entry, 0, len(en.entries))
	for _, other := range en.entries {
		if other.ID == e.ID {
			continue
		}
		candidates = append(candidates, other)
	}
	return dedup.Find(e, mode, candidates)
}
