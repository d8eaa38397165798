// Package dedup implements the Deduper (C6, spec §4.6): deciding at
// recording-start whether an auto-created entry duplicates an earlier
// successful one. Ported from the original's _dvr_duplicate_event.
package dedup

import (
	"time"

	"github.com/whisper-darkly/dvr-engine/entry"
	"github.com/whisper-darkly/dvr-engine/rules"
)

// Find scans candidates for a prior entry that makes e redundant, per e's
// autorec record mode. candidates should be every other live entry in the
// store; the caller normally excludes e itself, and Find also skips e if
// it is present. Returns nil if no hit, or if e
// is not eligible for dedup at all (no autorec, no title, or the mode's
// required discriminator is empty — spec §4.6).
//
// Find performs no mutation; calling it twice with the same arguments
// returns the same result (spec §8 property 8).
func Find(e *entry.Entry, mode rules.RecordMode, candidates []*entry.Entry) *entry.Entry {
	if e.AutorecID == "" {
		return nil
	}
	if e.Title.Empty() {
		return nil
	}

	switch mode {
	case rules.RecordAll:
		return nil
	case rules.RecordDifferentEpisodeNumber:
		if e.Episode == "" {
			return nil
		}
	case rules.RecordDifferentSubtitle:
		if e.Subtitle.Empty() {
			return nil
		}
	case rules.RecordDifferentDescription:
		if e.Description.Empty() {
			return nil
		}
	}

	eWeekStart := weekStart(e.Start)
	eDate := calendarDate(e.Start)

	for _, d := range candidates {
		if d == e {
			continue
		}
		if d.Start.After(e.Start) {
			continue // only earlier recordings qualify as master
		}
		if d.SchedState == entry.MissedTime {
			continue // only successful earlier recordings qualify as master
		}
		if d.SchedState == entry.Completed && d.LastError != 0 {
			continue
		}
		if !e.Title.Equal(d.Title) {
			continue
		}

		switch mode {
		case rules.RecordDifferentEpisodeNumber:
			if d.Episode == e.Episode {
				return d
			}
		case rules.RecordDifferentSubtitle:
			if e.Subtitle.Equal(d.Subtitle) {
				return d
			}
		case rules.RecordDifferentDescription:
			if e.Description.Equal(d.Description) {
				return d
			}
		case rules.RecordOncePerWeek:
			if weekStart(d.Start).Equal(eWeekStart) {
				return d
			}
		case rules.RecordOncePerDay:
			if calendarDate(d.Start).Equal(eDate) {
				return d
			}
		}
	}
	return nil
}

// weekStart subtracts (weekday+6)%7 days, matching the original's
// Mon–Sun week boundary computed purely from the local weekday.
func weekStart(t time.Time) time.Time {
	wd := int(t.Weekday()) // Sunday = 0
	back := (wd + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, t.Location())
}

// calendarDate truncates t to local midnight, used for the once-per-day
// comparison.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
