package mirrorsync

import "time"

// defaultProgressInterval is the "one second of monotonic time"
// progress-stat threshold named in §4.1.
const defaultProgressInterval = time.Second

// defaultInitialCredit is the syncer's starting per-mirror credit
// window before any bump_credit is observed.
const defaultInitialCredit = 4

// MasterOption configures a Master, following the functional-option
// shape of pkg/node/options.go's NodeOption.
type MasterOption func(*Master)

// WithBatchSize sets B, the flush threshold of §4.1.
func WithBatchSize(b int) MasterOption {
	return func(m *Master) {
		if b > 0 {
			m.batchSize = b
		}
	}
}

// WithProgressInterval overrides the one-second default stats cadence.
func WithProgressInterval(d time.Duration) MasterOption {
	return func(m *Master) {
		if d > 0 {
			m.progressInterval = d
		}
	}
}

// WithStatsHooks installs the EmitStats/HandleInfo/log hooks of §6.4.
func WithStatsHooks(emitStats, handleInfo StatsFunc, logHook LogFunc) MasterOption {
	return func(m *Master) {
		m.emitStats = emitStats
		m.handleInfo = handleInfo
		m.logHook = logHook
	}
}

// WithEvents attaches a best-effort Event sink.
func WithEvents(sink EventSink) MasterOption {
	return func(m *Master) { m.events = sink }
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithInitialCredit sets the per-mirror credit window.
func WithInitialCredit(n int) SyncerOption {
	return func(s *Syncer) {
		if n > 0 {
			s.initialCredit = n
		}
	}
}

// WithSyncerEvents attaches a best-effort Event sink to the syncer.
func WithSyncerEvents(sink EventSink) SyncerOption {
	return func(s *Syncer) { s.events = sink }
}
