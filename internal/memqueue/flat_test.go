package memqueue

import (
	"testing"

	"github.com/relaymq/relaymq/pkg/bq"
)

func TestFlatFoldPreservesPublishOrder(t *testing.T) {
	f := NewFlat()
	f.BatchPublish([]bq.PublishRecord{
		{Msg: bq.Msg{ID: "1"}},
		{Msg: bq.Msg{ID: "2"}},
		{Msg: bq.Msg{ID: "3"}},
	})

	var seen []bq.MsgID
	f.Fold(func(rec bq.Record, curr, length int) (bool, bq.FoldOutcome) {
		seen = append(seen, rec.Msg.ID)
		return true, bq.FoldOutcome{}
	})

	want := []bq.MsgID{"1", "2", "3"}
	for i, id := range want {
		if seen[i] != id {
			t.Fatalf("seen[%d] = %s, want %s", i, seen[i], id)
		}
	}
}

func TestFlatBatchPublishDeliveredReturnsOneHandlePerRecord(t *testing.T) {
	f := NewFlat()
	handles := f.BatchPublishDelivered([]bq.PublishRecord{
		{Msg: bq.Msg{ID: "1"}},
		{Msg: bq.Msg{ID: "2"}},
	})
	if handles.Grouped() {
		t.Fatal("flat queue must not return the grouped ack-handle shape")
	}
	if len(handles.Flat) != 2 {
		t.Fatalf("len(handles.Flat) = %d, want 2", len(handles.Flat))
	}
	if handles.Flat[0] == handles.Flat[1] {
		t.Fatal("expected distinct ack tags per record")
	}
}

func TestFlatPurgeKeepsOnlyUnacked(t *testing.T) {
	f := NewFlat()
	f.BatchPublish([]bq.PublishRecord{{Msg: bq.Msg{ID: "regular"}}})
	f.BatchPublishDelivered([]bq.PublishRecord{{Msg: bq.Msg{ID: "unacked"}}})

	removed := f.Purge()
	if removed != 1 {
		t.Fatalf("Purge removed %d, want 1", removed)
	}
	if f.Depth() != 1 {
		t.Fatalf("Depth after Purge = %d, want 1", f.Depth())
	}

	f.PurgeAcks()
	if f.Depth() != 0 {
		t.Fatalf("Depth after PurgeAcks = %d, want 0", f.Depth())
	}
}
