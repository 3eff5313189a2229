// Package memqueue provides in-memory bq.BQ implementations used as the
// reference backing queue in tests and in the cmd/syncmon, cmd/inspect
// demos. Flat mirrors a plain FIFO queue; Priority (priority.go) mirrors
// a priority-bucketed queue, to exercise both ack-handle shapes named
// in §4.5.
package memqueue

import (
	"sync"
	"time"

	"github.com/relaymq/relaymq/pkg/bq"
)

// entry is one message held by Flat, along with its delivery class.
type entry struct {
	msg     bq.Msg
	props   bq.Props
	unacked bool
}

// Flat is a FIFO backing queue returning integer ack handles, one per
// record, in publish order — the "flat queue" shape of §4.5.
type Flat struct {
	mu       sync.Mutex
	messages []entry
	nextTag  int64
}

func NewFlat() *Flat { return &Flat{} }

func (f *Flat) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *Flat) Fold(fn bq.FoldFunc) bq.FoldOutcome {
	f.mu.Lock()
	snapshot := make([]entry, len(f.messages))
	copy(snapshot, f.messages)
	f.mu.Unlock()

	length := len(snapshot)
	for i, e := range snapshot {
		rec := bq.Record{Msg: e.msg, Props: e.props, Unacked: e.unacked}
		cont, stop := fn(rec, i+1, length)
		if !cont {
			return stop
		}
	}
	return bq.FoldOutcome{Kind: bq.FoldOK}
}

func (f *Flat) Purge() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	removed := 0
	for _, e := range f.messages {
		if e.unacked {
			kept = append(kept, e)
			continue
		}
		removed++
	}
	f.messages = kept
	return removed
}

func (f *Flat) PurgeAcks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, e := range f.messages {
		if !e.unacked {
			kept = append(kept, e)
		}
	}
	f.messages = kept
}

func (f *Flat) BatchPublish(batch []bq.PublishRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range batch {
		f.messages = append(f.messages, entry{msg: r.Msg, props: r.Props, unacked: false})
	}
}

func (f *Flat) BatchPublishDelivered(batch []bq.PublishRecord) bq.AckHandles {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles := make([]int64, 0, len(batch))
	for _, r := range batch {
		f.nextTag++
		handles = append(handles, f.nextTag)
		f.messages = append(f.messages, entry{msg: r.Msg, props: r.Props, unacked: true})
	}
	return bq.AckHandles{Flat: handles}
}

// PartitionPublishDeliveredBatch on a flat queue never groups: the
// whole batch is one partition, keyed on the sentinel priority 0.
func (f *Flat) PartitionPublishDeliveredBatch(batch []bq.PublishRecord) map[uint8][]bq.PublishRecord {
	return map[uint8][]bq.PublishRecord{0: batch}
}

func (f *Flat) Invoke(fn func()) {
	if fn != nil {
		fn()
	}
}

func (f *Flat) SetRAMDurationTarget(_ time.Duration) {}

func (f *Flat) DeleteAndTerminate(_ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
}
