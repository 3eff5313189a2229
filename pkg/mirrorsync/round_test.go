package mirrorsync

import (
	"context"
	"fmt"
	"testing"

	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/internal/memqueue"
	"github.com/relaymq/relaymq/pkg/bq"
)

func TestRunRoundAllDeniedMirrorsReportsAlreadySynced(t *testing.T) {
	masterBQ := memqueue.NewFlat()
	masterBQ.BatchPublish([]bq.PublishRecord{{Msg: bq.Msg{ID: "1"}}, {Msg: bq.Msg{ID: "2"}}})

	result := RunRound(context.Background(), RoundConfig{
		MasterBQ: masterBQ,
		Mirrors: []MirrorParticipant{
			{ID: "m1", BQ: memqueue.NewFlat()},
			{ID: "m2", BQ: memqueue.NewFlat()},
		},
		Bus:       membership.NewMem(),
		BatchSize: 8,
	})

	if result.Master.Kind != AlreadySynced {
		t.Fatalf("master outcome = %+v, want AlreadySynced", result.Master)
	}
	for id, mo := range result.Mirrors {
		if mo.Kind != Denied {
			t.Fatalf("mirror %s outcome = %+v, want Denied", id, mo)
		}
	}
}

func TestRunRoundReplicatesFlatQueueContent(t *testing.T) {
	masterBQ := memqueue.NewFlat()
	regular := make([]bq.PublishRecord, 0, 20)
	for i := 0; i < 20; i++ {
		regular = append(regular, bq.PublishRecord{Msg: bq.Msg{ID: bq.MsgID(fmt.Sprintf("m-%d", i))}})
	}
	masterBQ.BatchPublish(regular)
	masterBQ.BatchPublishDelivered([]bq.PublishRecord{{Msg: bq.Msg{ID: "tail"}}})

	mirrorBQ := memqueue.NewFlat()
	mirrorBQ.BatchPublish([]bq.PublishRecord{{Msg: bq.Msg{ID: "placeholder"}}})

	result := RunRound(context.Background(), RoundConfig{
		MasterBQ:  masterBQ,
		Mirrors:   []MirrorParticipant{{ID: "m1", BQ: mirrorBQ}},
		Bus:       membership.NewMem(),
		BatchSize: 3,
	})

	if result.Master.Kind != OK {
		t.Fatalf("master outcome = %+v, want OK", result.Master)
	}
	mo := result.Mirrors["m1"]
	if mo.Kind != MirrorOK {
		t.Fatalf("mirror outcome = %+v, want MirrorOK", mo)
	}
	if len(mo.AckMap) != 1 || mo.AckMap[0].MsgID != "tail" {
		t.Fatalf("AckMap = %+v, want exactly one entry for tail", mo.AckMap)
	}
	if mirrorBQ.Depth() != masterBQ.Depth() {
		t.Fatalf("mirror depth = %d, want %d (master depth after the round)", mirrorBQ.Depth(), masterBQ.Depth())
	}
}

func TestRunRoundZipsPriorityQueueAckMap(t *testing.T) {
	masterBQ := memqueue.NewPriority()
	unacked := []bq.PublishRecord{
		{Msg: bq.Msg{ID: "hi-1"}, Props: bq.Props{Priority: 9}},
		{Msg: bq.Msg{ID: "hi-2"}, Props: bq.Props{Priority: 9}},
		{Msg: bq.Msg{ID: "lo-1"}, Props: bq.Props{Priority: 1}},
	}
	masterBQ.BatchPublishDelivered(unacked)

	mirrorBQ := memqueue.NewPriority()
	mirrorBQ.BatchPublish([]bq.PublishRecord{{Msg: bq.Msg{ID: "placeholder"}, Props: bq.Props{Priority: 0}}})

	result := RunRound(context.Background(), RoundConfig{
		MasterBQ:  masterBQ,
		Mirrors:   []MirrorParticipant{{ID: "m1", BQ: mirrorBQ}},
		Bus:       membership.NewMem(),
		BatchSize: 16,
	})

	if result.Master.Kind != OK {
		t.Fatalf("master outcome = %+v, want OK", result.Master)
	}
	mo := result.Mirrors["m1"]
	if mo.Kind != MirrorOK {
		t.Fatalf("mirror outcome = %+v, want MirrorOK", mo)
	}
	if len(mo.AckMap) != len(unacked) {
		t.Fatalf("len(AckMap) = %d, want %d", len(mo.AckMap), len(unacked))
	}
	seen := make(map[bq.MsgID]bool, len(mo.AckMap))
	for _, entry := range mo.AckMap {
		seen[entry.MsgID] = true
	}
	for _, rec := range unacked {
		if !seen[rec.Msg.ID] {
			t.Fatalf("AckMap missing entry for %s", rec.Msg.ID)
		}
	}
}
