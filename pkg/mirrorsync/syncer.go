package mirrorsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaymq/relaymq/internal/creditflow"
	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/pkg/bq"
)

// SyncerConfig names the fixed wiring a Syncer needs for one round: the
// membership bus it announces sync_start on, the candidate mirror set,
// and the pre-established outbound channel to each candidate's Mirror
// goroutine (§6.2 treats mirror discovery as out of scope for this
// module; the surrounding queue process owns that wiring).
type SyncerConfig struct {
	Bus        membership.Bus
	Candidates []MirrorID
	Inboxes    map[MirrorID]chan<- syncerToMirror
	Logger     *slog.Logger
}

// Syncer is the negotiation-and-relay actor of §4.2: it establishes
// which candidates are live for this round, then shuttles batches from
// its master to every live mirror under the syncer-side credit policy.
type Syncer struct {
	cfg           SyncerConfig
	initialCredit int
	events        EventSink
}

func NewSyncer(cfg SyncerConfig, opts ...SyncerOption) *Syncer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Syncer{cfg: cfg, initialCredit: defaultInitialCredit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one round. toMaster/fromMaster are the syncer's private
// channel pair with its master; fromMirrors is the single inbound
// channel shared by every candidate mirror (each tags its messages with
// its own MirrorID, so one reader can multiplex all of them); mirrorDown
// delivers a MirrorID whenever that mirror's goroutine has exited, for
// any reason, standing in for the monitor signal of §4.2.
func (s *Syncer) Run(
	ctx context.Context,
	ref Ref,
	toMaster chan<- syncerToMaster,
	fromMaster <-chan masterToSyncer,
	fromMirrors <-chan mirrorToSyncer,
	mirrorDown <-chan MirrorID,
) syncerOutcome {
	credits := creditflow.NewManager(s.initialCredit)
	live := make(map[MirrorID]chan<- syncerToMirror, len(s.cfg.Candidates))
	for _, id := range s.cfg.Candidates {
		if ch, ok := s.cfg.Inboxes[id]; ok {
			live[id] = ch
			credits.Track(creditflow.Peer(id))
		}
	}

	if err := s.cfg.Bus.BroadcastSyncStart(ref, s.cfg.Candidates); err != nil {
		s.cfg.Logger.Warn("sync_start broadcast degraded", "ref", ref, "err", err)
	}

	pending := make(map[MirrorID]struct{}, len(live))
	for id := range live {
		pending[id] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return syncerOutcome{kind: syncerCrashed, reason: "parent_exit"}
		case id := <-mirrorDown:
			delete(pending, id)
			delete(live, id)
			credits.PeerDown(creditflow.Peer(id))
		case msg := <-fromMirrors:
			if msg.ref != ref {
				continue
			}
			switch msg.kind {
			case fromMirrorSyncReady:
				delete(pending, msg.mirror)
			case fromMirrorSyncDeny:
				delete(pending, msg.mirror)
				delete(live, msg.mirror)
				credits.PeerDown(creditflow.Peer(msg.mirror))
			}
		}
	}

	if len(live) == 0 {
		return syncerOutcome{kind: syncerNormal, reason: "all_denied"}
	}

	s.cfg.Logger.Info("sync_ready", "ref", ref, "live", len(live))
	select {
	case toMaster <- syncerToMaster{kind: toMasterReady, ref: ref}:
	case <-ctx.Done():
		return syncerOutcome{kind: syncerCrashed, reason: "parent_exit"}
	}

	for {
		select {
		case <-ctx.Done():
			return syncerOutcome{kind: syncerCrashed, reason: "parent_exit"}
		case id := <-mirrorDown:
			delete(live, id)
			credits.PeerDown(creditflow.Peer(id))
		case fm := <-fromMaster:
			if fm.ref != ref {
				continue
			}
			switch fm.kind {
			case toSyncerMsgs:
				if err := s.deliver(ctx, ref, fm.batch, live, credits, fromMirrors, mirrorDown); err != nil {
					return syncerOutcome{kind: syncerCrashed, reason: err.Error()}
				}
				select {
				case toMaster <- syncerToMaster{kind: toMasterNext, ref: ref}:
				case <-ctx.Done():
					return syncerOutcome{kind: syncerCrashed, reason: "parent_exit"}
				}
			case toSyncerDone:
				s.cfg.Logger.Info("sync_complete", "ref", ref, "live", len(live))
				s.broadcastComplete(ref, live)
				return syncerOutcome{kind: syncerNormal}
			}
		}
	}
}

// deliver parks in the credit-blocked wait state described in §5 for as
// long as any live mirror is out of credit, handling only mirror acks,
// bump_credit messages, mirror-down notifications and cancellation of
// ctx while parked, then broadcasts one batch
// to every still-live mirror and charges one credit per send. The
// master is only told "next" once this call returns, so at most one
// batch is ever in flight between a send(msgs) and its receive(next).
func (s *Syncer) deliver(
	ctx context.Context,
	ref Ref,
	batch []bq.Record,
	live map[MirrorID]chan<- syncerToMirror,
	credits *creditflow.Manager,
	fromMirrors <-chan mirrorToSyncer,
	mirrorDown <-chan MirrorID,
) error {
	for credits.Blocked() {
		publish(s.events, ref, EventCreditBlocked, map[string]any{"blocked": credits.BlockedPeers()})
		select {
		case <-ctx.Done():
			return fmt.Errorf("parent_exit")
		case id := <-mirrorDown:
			delete(live, id)
			credits.PeerDown(creditflow.Peer(id))
		case msg := <-fromMirrors:
			if msg.ref != ref {
				continue
			}
			switch msg.kind {
			case fromMirrorAck:
				credits.Ack(creditflow.Peer(msg.mirror))
				publish(s.events, ref, EventCreditBump, map[string]any{"mirror": string(msg.mirror)})
			case fromMirrorBumpCredit:
				credits.HandleBump(creditflow.Peer(msg.mirror), msg.n)
			}
		}
	}

	s.cfg.Logger.Info("batch_relay", "ref", ref, "count", len(batch), "mirrors", len(live))
	for id, ch := range live {
		s.sendMirror(ch, syncerToMirror{kind: toMirrorSyncMsgs, ref: ref, batch: batch})
		credits.Send(creditflow.Peer(id))
	}
	return nil
}

func (s *Syncer) broadcastComplete(ref Ref, live map[MirrorID]chan<- syncerToMirror) {
	for _, ch := range live {
		s.sendMirror(ch, syncerToMirror{kind: toMirrorSyncComplete, ref: ref})
	}
}

func (s *Syncer) sendMirror(ch chan<- syncerToMirror, msg syncerToMirror) {
	select {
	case ch <- msg:
	default:
		ch <- msg
	}
}
