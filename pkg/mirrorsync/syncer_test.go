package mirrorsync

import (
	"context"
	"testing"
	"time"

	"github.com/relaymq/relaymq/pkg/bq"
	"github.com/relaymq/relaymq/pkg/roundref"
)

// fakeBus is a no-op membership.Bus for tests that don't exercise the
// negotiation broadcast itself.
type fakeBus struct{}

func (fakeBus) BroadcastSyncStart(ref roundref.Ref, mirrors []MirrorID) error { return nil }

func TestSyncerAllDenyReturnsAllDenied(t *testing.T) {
	ref := roundref.New()
	inboxes := map[MirrorID]chan<- syncerToMirror{
		"m1": make(chan syncerToMirror, 1),
		"m2": make(chan syncerToMirror, 1),
	}
	s := NewSyncer(SyncerConfig{Bus: fakeBus{}, Candidates: []MirrorID{"m1", "m2"}, Inboxes: inboxes})

	fromMirrors := make(chan mirrorToSyncer, 4)
	fromMirrors <- mirrorToSyncer{kind: fromMirrorSyncDeny, ref: ref, mirror: "m1"}
	fromMirrors <- mirrorToSyncer{kind: fromMirrorSyncDeny, ref: ref, mirror: "m2"}

	outcome := s.Run(context.Background(), ref,
		make(chan syncerToMaster, 1), make(chan masterToSyncer),
		fromMirrors, make(chan MirrorID, 2))

	if outcome.kind != syncerNormal || outcome.reason != "all_denied" {
		t.Fatalf("outcome = %+v, want {syncerNormal, all_denied}", outcome)
	}
}

func TestSyncerMidSyncMirrorCrashContinuesWithSurvivors(t *testing.T) {
	ref := roundref.New()
	m1in := make(chan syncerToMirror, 4)
	m2in := make(chan syncerToMirror, 4)
	inboxes := map[MirrorID]chan<- syncerToMirror{"m1": m1in, "m2": m2in}
	s := NewSyncer(SyncerConfig{Bus: fakeBus{}, Candidates: []MirrorID{"m1", "m2"}, Inboxes: inboxes})

	fromMirrors := make(chan mirrorToSyncer, 8)
	fromMirrors <- mirrorToSyncer{kind: fromMirrorSyncReady, ref: ref, mirror: "m1"}
	fromMirrors <- mirrorToSyncer{kind: fromMirrorSyncReady, ref: ref, mirror: "m2"}
	mirrorDown := make(chan MirrorID, 2)
	toMaster := make(chan syncerToMaster, 4)
	fromMaster := make(chan masterToSyncer, 4)

	outcomeCh := make(chan syncerOutcome, 1)
	go func() {
		outcomeCh <- s.Run(context.Background(), ref, toMaster, fromMaster, fromMirrors, mirrorDown)
	}()

	select {
	case sm := <-toMaster:
		if sm.kind != toMasterReady {
			t.Fatalf("first master message = %+v, want toMasterReady", sm)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for toMasterReady")
	}

	batch := []bq.Record{{Msg: bq.Msg{ID: "1"}}}
	fromMaster <- masterToSyncer{kind: toSyncerMsgs, ref: ref, batch: batch}

	select {
	case sm := <-toMaster:
		if sm.kind != toMasterNext {
			t.Fatalf("second master message = %+v, want toMasterNext", sm)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first toMasterNext")
	}
	<-m1in
	<-m2in

	mirrorDown <- "m1"
	time.Sleep(10 * time.Millisecond) // let the relay loop drain the down notice

	fromMaster <- masterToSyncer{kind: toSyncerMsgs, ref: ref, batch: batch}
	select {
	case <-toMaster:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second toMasterNext")
	}

	select {
	case <-m1in:
		t.Fatal("crashed mirror m1 must not receive further batches")
	default:
	}
	select {
	case <-m2in:
	default:
		t.Fatal("surviving mirror m2 should have received the second batch")
	}

	fromMaster <- masterToSyncer{kind: toSyncerDone, ref: ref}
	select {
	case outcome := <-outcomeCh:
		if outcome.kind != syncerNormal {
			t.Fatalf("outcome = %+v, want syncerNormal", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for syncer to finish")
	}
}

func TestSyncerDeliverBlocksUntilCreditAvailable(t *testing.T) {
	ref := roundref.New()
	m1in := make(chan syncerToMirror, 4)
	inboxes := map[MirrorID]chan<- syncerToMirror{"m1": m1in}
	s := NewSyncer(SyncerConfig{Bus: fakeBus{}, Candidates: []MirrorID{"m1"}, Inboxes: inboxes}, WithInitialCredit(1))

	fromMirrors := make(chan mirrorToSyncer, 8)
	fromMirrors <- mirrorToSyncer{kind: fromMirrorSyncReady, ref: ref, mirror: "m1"}
	mirrorDown := make(chan MirrorID, 2)
	toMaster := make(chan syncerToMaster, 4)
	fromMaster := make(chan masterToSyncer, 4)

	outcomeCh := make(chan syncerOutcome, 1)
	go func() {
		outcomeCh <- s.Run(context.Background(), ref, toMaster, fromMaster, fromMirrors, mirrorDown)
	}()
	<-toMaster // toMasterReady

	batch := []bq.Record{{Msg: bq.Msg{ID: "1"}}}
	fromMaster <- masterToSyncer{kind: toSyncerMsgs, ref: ref, batch: batch}
	<-toMaster // first toMasterNext: credit was available
	<-m1in

	// Credit is now exhausted (initial=1, one send charged). The second
	// batch must not produce a toMasterNext until an ack restores credit.
	fromMaster <- masterToSyncer{kind: toSyncerMsgs, ref: ref, batch: batch}
	select {
	case <-toMaster:
		t.Fatal("syncer advanced past a credit-exhausted mirror without an ack")
	case <-time.After(50 * time.Millisecond):
	}

	fromMirrors <- mirrorToSyncer{kind: fromMirrorAck, ref: ref, mirror: "m1"}

	select {
	case <-toMaster:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for toMasterNext after the ack restored credit")
	}
	<-m1in

	fromMaster <- masterToSyncer{kind: toSyncerDone, ref: ref}
	select {
	case outcome := <-outcomeCh:
		if outcome.kind != syncerNormal {
			t.Fatalf("outcome = %+v, want syncerNormal", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for syncer to finish")
	}
}
