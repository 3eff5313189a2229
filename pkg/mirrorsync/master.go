package mirrorsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/pkg/bq"
	"github.com/relaymq/relaymq/pkg/roundref"
)

// defaultBatchSize is B, the flush threshold of §4.1, absent an
// explicit WithBatchSize override.
const defaultBatchSize = 256

// MasterConfig names the fixed wiring of the queue master running a
// round: its own backing queue, the membership bus its syncer will
// announce on, the candidate mirror set, and the pre-established
// syncer->mirror channel for each candidate.
type MasterConfig struct {
	BQ      bq.BQ
	Bus     membership.Bus
	Mirrors []MirrorID
	Inboxes map[MirrorID]chan<- syncerToMirror
	Logger  *slog.Logger

	// FromMirrors and MirrorDown are the shared channels every candidate
	// mirror's goroutine was wired against by the surrounding queue
	// process (e.g. RunRound). The master's syncer reads both; nothing
	// about mirror lifetime is otherwise visible to the master.
	FromMirrors <-chan mirrorToSyncer
	MirrorDown  <-chan MirrorID
}

// Master drives one mirror-sync round: it spawns a syncer bound to a
// fresh round token, folds its backing queue snapshot into batches, and
// reports the round's terminal outcome (§4.1, §7).
type Master struct {
	cfg              MasterConfig
	batchSize        int
	progressInterval time.Duration
	emitStats        StatsFunc
	handleInfo       StatsFunc
	logHook          LogFunc
	events           EventSink
}

func NewMaster(cfg MasterConfig, opts ...MasterOption) *Master {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FromMirrors == nil {
		cfg.FromMirrors = make(chan mirrorToSyncer)
	}
	if cfg.MirrorDown == nil {
		cfg.MirrorDown = make(chan MirrorID)
	}
	m := &Master{
		cfg:              cfg,
		batchSize:        defaultBatchSize,
		progressInterval: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one full round. cancel delivers the synchronous external
// cancel call of §6.3; admin carries the administrative casts drained
// between flushes without disturbing fold position. Run blocks for the
// whole round and returns the MasterOutcome the caller should report.
func (m *Master) Run(ctx context.Context, cancel <-chan CancelRequest, admin <-chan AdminMsg) MasterOutcome {
	ref := roundref.New()

	toSyncer := make(chan masterToSyncer)
	fromSyncer := make(chan syncerToMaster, 1)

	syncerCtx, cancelSyncer := context.WithCancel(ctx)
	defer cancelSyncer()

	syncer := NewSyncer(SyncerConfig{
		Bus:        m.cfg.Bus,
		Candidates: m.cfg.Mirrors,
		Inboxes:    m.cfg.Inboxes,
		Logger:     m.cfg.Logger,
	}, WithSyncerEvents(m.events))

	syncerResult := make(chan syncerOutcome, 1)
	go func() {
		syncerResult <- syncer.Run(syncerCtx, ref, fromSyncer, toSyncer, m.cfg.FromMirrors, m.cfg.MirrorDown)
	}()

	// Prepare phase: block on the syncer's first message.
	select {
	case sm := <-fromSyncer:
		if sm.ref != ref || sm.kind != toMasterReady {
			return MasterOutcome{Kind: SyncDied, Reason: "protocol_violation"}
		}
	case so := <-syncerResult:
		if so.kind == syncerNormal {
			return MasterOutcome{Kind: AlreadySynced, Reason: so.reason}
		}
		return MasterOutcome{Kind: SyncDied, Reason: so.reason}
	case <-ctx.Done():
		return MasterOutcome{Kind: Shutdown, Reason: "parent_exit"}
	}

	publish(m.events, ref, EventRoundReady, nil)
	m.cfg.Logger.Info("fold_start", "ref", ref)

	sent := 0
	var lastStats time.Time
	var batch []bq.Record
	var earlyStop *MasterOutcome

	// §4.1 fires the initial (syncing, 0) stat unconditionally at the
	// ready->fold transition, not only from the first flush — a master
	// whose own queue is already empty must still emit it.
	if m.emitStats != nil {
		m.emitStats(0)
	}
	if m.logHook != nil {
		m.logHook(0)
	}
	lastStats = time.Now()

	foldOutcome := m.cfg.BQ.Fold(func(rec bq.Record, curr, length int) (bool, bq.FoldOutcome) {
		batch = append(batch, rec)
		if curr != length && curr%m.batchSize != 0 {
			return true, bq.FoldOutcome{}
		}

		drainAdmin(admin, m.cfg.BQ)
		if lastStats.IsZero() || time.Since(lastStats) >= m.progressInterval {
			if m.emitStats != nil {
				m.emitStats(sent)
			}
			if m.logHook != nil {
				m.logHook(sent)
			}
			lastStats = time.Now()
		}

		toSend := batch
		batch = nil
		sent += len(toSend)
		if m.handleInfo != nil {
			m.handleInfo(sent)
		}
		m.cfg.Logger.Info("flush", "ref", ref, "count", len(toSend), "sent", sent)
		publish(m.events, ref, EventBatchSent, map[string]any{"count": len(toSend), "sent": sent})

		select {
		case toSyncer <- masterToSyncer{kind: toSyncerMsgs, ref: ref, batch: toSend}:
		case <-ctx.Done():
			earlyStop = &MasterOutcome{Kind: Shutdown, Reason: "parent_exit"}
			return false, bq.FoldOutcome{Kind: bq.FoldShutdown, Reason: "parent_exit"}
		}

		select {
		case sm := <-fromSyncer:
			if sm.kind == toMasterNext && sm.ref == ref {
				return true, bq.FoldOutcome{}
			}
			earlyStop = &MasterOutcome{Kind: SyncDied, Reason: "protocol_violation"}
			return false, bq.FoldOutcome{Kind: bq.FoldSyncDied, Reason: "protocol_violation"}
		case cr := <-cancel:
			// A message on toSyncer cannot reach the syncer while it is
			// parked in deliver()'s credit-blocked wait, which selects on
			// its ctx, mirror messages and mirror-down notices but not on
			// toSyncer — so cancellation is delivered by
			// cancelling syncerCtx directly, not by sending a message.
			cancelSyncer()
			<-syncerResult
			close(cr.Done)
			earlyStop = &MasterOutcome{Kind: Cancelled}
			return false, bq.FoldOutcome{Kind: bq.FoldShutdown, Reason: "cancelled"}
		case so := <-syncerResult:
			earlyStop = &MasterOutcome{Kind: SyncDied, Reason: so.reason}
			return false, bq.FoldOutcome{Kind: bq.FoldSyncDied, Reason: so.reason}
		case <-ctx.Done():
			earlyStop = &MasterOutcome{Kind: Shutdown, Reason: "parent_exit"}
			return false, bq.FoldOutcome{Kind: bq.FoldShutdown, Reason: "parent_exit"}
		}
	})
	_ = foldOutcome // every non-OK termination is already captured in earlyStop above

	if earlyStop != nil {
		return *earlyStop
	}

	// Completion phase: the fold exhausted the snapshot normally.
	select {
	case toSyncer <- masterToSyncer{kind: toSyncerDone, ref: ref}:
	case <-ctx.Done():
		return MasterOutcome{Kind: Shutdown, Reason: "parent_exit"}
	}

	select {
	case so := <-syncerResult:
		if so.kind == syncerNormal {
			m.cfg.Logger.Info("round_done", "ref", ref, "sent", sent)
			publish(m.events, ref, EventRoundDone, map[string]any{"sent": sent})
			return MasterOutcome{Kind: OK}
		}
		return MasterOutcome{Kind: SyncDied, Reason: so.reason}
	case <-ctx.Done():
		return MasterOutcome{Kind: Shutdown, Reason: "parent_exit"}
	}
}

// drainAdmin applies every administrative cast queued since the last
// flush without blocking, so a quiet admin channel never stalls folding.
func drainAdmin(admin <-chan AdminMsg, target bq.BQ) {
	for {
		select {
		case a := <-admin:
			applyMasterAdmin(a, target)
		default:
			return
		}
	}
}

func applyMasterAdmin(a AdminMsg, target bq.BQ) {
	switch a.Kind {
	case AdminSetMaxSinceUse:
		// Throttles the surrounding file-handle cache; no BQ op of its
		// own, kept here only for parity with the administrative table.
	case AdminSetRAMDurationTarget:
		target.SetRAMDurationTarget(a.RAMDurationTarget)
	case AdminRunHook:
		if a.Hook != nil {
			target.Invoke(func() { a.Hook(target) })
		}
	}
}
