package mirrorsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/pkg/bq"
)

// MirrorParticipant names one mirror candidate for a Round: its id and
// the backing queue it will rebuild.
type MirrorParticipant struct {
	ID MirrorID
	BQ bq.BQ
}

// RoundConfig wires a single in-process round end to end: one master
// backing queue, a set of mirror participants, and the in-memory
// membership bus used to kick it off. This is the "surrounding queue
// process" the master/syncer/mirror actors are designed to be spliced
// into — useful directly in tests and in cmd/syncmon's demo mode. A
// real multi-host deployment wires Master, Syncer and Mirror against
// its own transport instead of using RunRound.
type RoundConfig struct {
	MasterBQ  bq.BQ
	Mirrors   []MirrorParticipant
	Bus       *membership.Mem
	BatchSize int
	Events    EventSink
	Logger    *slog.Logger
}

// RoundResult is everything observable once a round finishes.
type RoundResult struct {
	Master  MasterOutcome
	Mirrors map[MirrorID]MirrorOutcome
}

type mirrorResult struct {
	id      MirrorID
	outcome MirrorOutcome
}

// RunRound spawns a Mirror goroutine per participant (each awaiting its
// own sync_start off the bus), then runs a Master synchronously to
// completion and collects every mirror's outcome. It blocks until the
// round has ended, then waits at most five seconds in total for the
// mirrors' outcomes; a mirror that has not finished by then is absent
// from RoundResult.Mirrors.
func RunRound(ctx context.Context, cfg RoundConfig) RoundResult {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ids := make([]MirrorID, 0, len(cfg.Mirrors))
	inboxes := make(map[MirrorID]chan<- syncerToMirror, len(cfg.Mirrors))
	fromMirrors := make(chan mirrorToSyncer, 64)
	mirrorDown := make(chan MirrorID, len(cfg.Mirrors)+1)
	results := make(chan mirrorResult, len(cfg.Mirrors))

	for _, p := range cfg.Mirrors {
		p := p
		ids = append(ids, p.ID)
		in := make(chan syncerToMirror, 4)
		inboxes[p.ID] = in
		started := cfg.Bus.Listen(p.ID)
		admin := make(chan AdminMsg, 4)
		bump := make(chan int, 4)
		term := make(chan string, 1)

		go func() {
			var outcome MirrorOutcome
			select {
			case ref := <-started:
				mir := NewMirror(MirrorConfig{ID: p.ID, BQ: p.BQ, Events: cfg.Events, Logger: cfg.Logger})
				// A nil syncerDown: RunRound has no standing signal for
				// "this round's syncer just crashed" separate from the
				// round-level ctx, so a mid-round syncer crash is only
				// observed by mirrors through ctx cancellation upstream.
				outcome = mir.Run(ctx, ref, fromMirrors, in, nil, bump, admin, term)
			case <-ctx.Done():
				outcome = MirrorOutcome{Kind: Stopped, Reason: "parent_exit"}
			}
			results <- mirrorResult{id: p.ID, outcome: outcome}
			mirrorDown <- p.ID
		}()
	}

	master := NewMaster(MasterConfig{
		BQ:          cfg.MasterBQ,
		Bus:         cfg.Bus,
		Mirrors:     ids,
		Inboxes:     inboxes,
		Logger:      cfg.Logger,
		FromMirrors: fromMirrors,
		MirrorDown:  mirrorDown,
	}, WithBatchSize(cfg.BatchSize), WithEvents(cfg.Events))

	outcome := master.Run(ctx, make(chan CancelRequest), make(chan AdminMsg))

	collected := make(map[MirrorID]MirrorOutcome, len(cfg.Mirrors))
	deadline := time.After(5 * time.Second)
collect:
	for range cfg.Mirrors {
		select {
		case r := <-results:
			collected[r.id] = r.outcome
		case <-deadline:
			break collect
		}
	}

	return RoundResult{Master: outcome, Mirrors: collected}
}
