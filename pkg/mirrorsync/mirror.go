package mirrorsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaymq/relaymq/internal/creditflow"
	"github.com/relaymq/relaymq/pkg/bq"
)

// AdminKind tags the administrative casts §4.3 mirrors on both master
// and mirror, plus the mirror's own ram-duration refresh tick.
type AdminKind int

const (
	AdminSetMaxSinceUse AdminKind = iota
	AdminSetRAMDurationTarget
	AdminRunHook
)

// AdminMsg is the administrative-cast enum a mirror (and a master,
// during its fold) drains without disturbing protocol state.
type AdminMsg struct {
	Kind              AdminKind
	AgeSeconds        float64
	RAMDurationTarget time.Duration
	Hook              func(bq.BQ)
}

// MirrorConfig names the entry conditions of §4.3: the mirror's own
// queue depth, its backing queue, and a closure to refresh its
// ram-duration timer.
type MirrorConfig struct {
	ID                 MirrorID
	BQ                 bq.BQ
	RefreshRAMDuration func()
	RAMDurationEvery   time.Duration
	Events             EventSink
	Logger             *slog.Logger
}

// Mirror is the target replica of one sync round: it purges any
// pre-existing content, then absorbs batches and rebuilds its backing
// queue (§4.3).
type Mirror struct {
	cfg     MirrorConfig
	credits *creditflow.Manager // mirror's own flow state toward its BQ
}

func NewMirror(cfg MirrorConfig) *Mirror {
	if cfg.RAMDurationEvery <= 0 {
		cfg.RAMDurationEvery = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Mirror{cfg: cfg, credits: creditflow.NewManager(1)}
}

// Run executes this mirror's participation in round ref. out is this
// mirror's outbound channel to the syncer; in is its inbound channel
// from the syncer; syncerDown is closed when the syncer is observed
// gone (monitored, not linked — a mirror crash must never kill the
// syncer, but the reverse is the liveness signal the mirror needs);
// bumpCredit feeds the mirror's own local credit manager; admin
// carries the administrative casts; terminate carries the out-of-band
// master-delete-and-terminate cast. Run blocks until the round ends.
func (m *Mirror) Run(
	ctx context.Context,
	ref Ref,
	out chan<- mirrorToSyncer,
	in <-chan syncerToMirror,
	syncerDown <-chan struct{},
	bumpCredit <-chan int,
	admin <-chan AdminMsg,
	terminate <-chan string,
) MirrorOutcome {
	depth := m.cfg.BQ.Depth()
	if depth == 0 {
		m.cfg.Logger.Info("sync_deny", "mirror", m.cfg.ID, "ref", ref)
		m.send(out, mirrorToSyncer{kind: fromMirrorSyncDeny, ref: ref, mirror: m.cfg.ID})
		publish(m.cfg.Events, ref, EventMirrorDenied, map[string]any{"mirror": string(m.cfg.ID)})
		return MirrorOutcome{Kind: Denied}
	}

	// §4.3 orders entry as monitor, send sync_ready, then purge; a
	// syncer down between sync_ready and the first batch still finds
	// this mirror's queue purged when syncerDown fires below.
	m.send(out, mirrorToSyncer{kind: fromMirrorSyncReady, ref: ref, mirror: m.cfg.ID})
	m.cfg.BQ.Purge()
	m.cfg.BQ.PurgeAcks()
	m.cfg.Logger.Info("sync_ready", "mirror", m.cfg.ID, "ref", ref, "depth", depth)
	publish(m.cfg.Events, ref, EventMirrorReady, map[string]any{"mirror": string(m.cfg.ID)})

	var ackMap AckMap
	ticker := time.NewTicker(m.cfg.RAMDurationEvery)
	defer ticker.Stop()

	for {
		select {
		case <-syncerDown:
			m.cfg.BQ.Purge()
			m.cfg.BQ.PurgeAcks()
			publish(m.cfg.Events, ref, EventMirrorDown, map[string]any{"mirror": string(m.cfg.ID)})
			return MirrorOutcome{Kind: Failed, Reason: "syncer_down"}

		case n := <-bumpCredit:
			m.credits.HandleBump("bq", n)

		case msg, ok := <-in:
			if !ok {
				m.cfg.BQ.Purge()
				m.cfg.BQ.PurgeAcks()
				return MirrorOutcome{Kind: Failed, Reason: "syncer_channel_closed"}
			}
			if msg.ref != ref {
				m.cfg.Logger.Warn("stale sync_msgs dropped", "mirror", m.cfg.ID, "want", ref, "got", msg.ref)
				continue
			}
			switch msg.kind {
			case toMirrorSyncMsgs:
				entries, err := applyBatch(m.cfg.BQ, msg.batch)
				if err != nil {
					m.cfg.Logger.Warn("batch apply failed", "mirror", m.cfg.ID, "err", err)
					continue
				}
				ackMap = append(ackMap, entries...)
				m.cfg.Logger.Info("batch_applied", "mirror", m.cfg.ID, "ref", ref, "count", len(entries), "acked", len(ackMap))
				m.send(out, mirrorToSyncer{kind: fromMirrorAck, ref: ref, mirror: m.cfg.ID})
			case toMirrorSyncComplete:
				m.cfg.Logger.Info("sync_complete", "mirror", m.cfg.ID, "ref", ref, "acked", len(ackMap))
				return MirrorOutcome{Kind: MirrorOK, AckMap: ackMap}
			}

		case a := <-admin:
			m.applyAdmin(a)

		case <-ticker.C:
			if m.cfg.RefreshRAMDuration != nil {
				m.cfg.RefreshRAMDuration()
			}

		case reason := <-terminate:
			m.cfg.BQ.DeleteAndTerminate(reason)
			return MirrorOutcome{Kind: Stopped, Reason: reason}

		case <-ctx.Done():
			return MirrorOutcome{Kind: Stopped, Reason: "parent_exit", AckMap: ackMap}
		}
	}
}

func (m *Mirror) applyAdmin(a AdminMsg) {
	switch a.Kind {
	case AdminSetMaxSinceUse:
		// No direct BQ op named for this in §6.1; it throttles the
		// surrounding file-handle cache, a control-plane concern out
		// of this module's scope. Recorded for parity with the table.
	case AdminSetRAMDurationTarget:
		m.cfg.BQ.SetRAMDurationTarget(a.RAMDurationTarget)
	case AdminRunHook:
		if a.Hook != nil {
			m.cfg.BQ.Invoke(func() { a.Hook(m.cfg.BQ) })
		}
	}
}

func (m *Mirror) send(out chan<- mirrorToSyncer, msg mirrorToSyncer) {
	select {
	case out <- msg:
	default:
		out <- msg
	}
}
