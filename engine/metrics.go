package engine

import "github.com/prometheus/client_golang/prometheus"

// metrics are the engine-wide counters an embedder can scrape. Grounded on
// the counters pattern used for worker-lifecycle observability elsewhere in
// the pack; the engine has no HTTP surface of its own (spec §1 places the
// admin surface out of scope), so Registry is exposed for the embedder to
// mount under its own /metrics handler.
type metrics struct {
	entriesCreated    prometheus.Counter
	recordingsStarted prometheus.Counter
	dedupSkips        prometheus.Counter
	expirations       prometheus.Counter
	epgRebinds        prometheus.Counter
	completed         prometheus.Counter
	missed            prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		entriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_entries_created_total", Help: "Entries created via Create, CreateByAutorec or CreateByTimerec, or restored at startup.",
		}),
		recordingsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_recordings_started_total", Help: "Entries that transitioned SCHEDULED to RECORDING.",
		}),
		dedupSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_dedup_skips_total", Help: "Autorec entries cancel-deleted by the deduper at start-recording.",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_expirations_total", Help: "Entries destroyed by the expire timer.",
		}),
		epgRebinds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_epg_rebinds_total", Help: "Entries bound or rebound to a broadcast by the EPG binder's fuzzy match.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_recordings_completed_total", Help: "Entries that reached COMPLETED.",
		}),
		missed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dvr_recordings_missed_total", Help: "Entries that reached MISSED_TIME.",
		}),
	}
	reg.MustRegister(m.entriesCreated, m.recordingsStarted, m.dedupSkips,
		m.expirations, m.epgRebinds, m.completed, m.missed)
	return m
}
