package memqueue

import (
	"sort"
	"sync"
	"time"

	"github.com/relaymq/relaymq/pkg/bq"
)

// Priority is a backing queue that buckets messages by bq.Props.Priority
// and returns BatchPublishDelivered handles grouped per bucket — the
// "priority queue" shape of §4.5. Within a bucket, FIFO order holds.
type Priority struct {
	mu      sync.Mutex
	buckets map[uint8][]entry
	nextTag int64
}

func NewPriority() *Priority {
	return &Priority{buckets: make(map[uint8][]entry)}
}

func (p *Priority) sortedPriorities() []uint8 {
	ps := make([]uint8, 0, len(p.buckets))
	for pr := range p.buckets {
		ps = append(ps, pr)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] > ps[j] }) // higher priority first
	return ps
}

func (p *Priority) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

func (p *Priority) Fold(fn bq.FoldFunc) bq.FoldOutcome {
	p.mu.Lock()
	ps := p.sortedPriorities()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	snapshot := make([]entry, 0, n)
	for _, pr := range ps {
		snapshot = append(snapshot, p.buckets[pr]...)
	}
	p.mu.Unlock()

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

func (p *Priority) Purge() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for pr, b := range p.buckets {
		kept := b[:0]
		for _, e := range b {
			if e.unacked {
				kept = append(kept, e)
				continue
			}
			removed++
		}
		p.buckets[pr] = kept
	}
	return removed
}

func (p *Priority) PurgeAcks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pr, b := range p.buckets {
		kept := b[:0]
		for _, e := range b {
			if !e.unacked {
				kept = append(kept, e)
			}
		}
		p.buckets[pr] = kept
	}
}

func (p *Priority) BatchPublish(batch []bq.PublishRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range batch {
		pr := r.Props.Priority
		p.buckets[pr] = append(p.buckets[pr], entry{msg: r.Msg, props: r.Props, unacked: false})
	}
}

// BatchPublishDelivered groups the incoming batch by priority and
// returns handles keyed the same way — the grouped ack-handle shape.
func (p *Priority) BatchPublishDelivered(batch []bq.PublishRecord) bq.AckHandles {
	p.mu.Lock()
	defer p.mu.Unlock()
	byPriority := make(map[uint8][]int64)
	for _, r := range batch {
		pr := r.Props.Priority
		p.nextTag++
		byPriority[pr] = append(byPriority[pr], p.nextTag)
		p.buckets[pr] = append(p.buckets[pr], entry{msg: r.Msg, props: r.Props, unacked: true})
	}
	return bq.AckHandles{ByPriority: byPriority}
}

func (p *Priority) PartitionPublishDeliveredBatch(batch []bq.PublishRecord) map[uint8][]bq.PublishRecord {
	out := make(map[uint8][]bq.PublishRecord)
	for _, r := range batch {
		out[r.Props.Priority] = append(out[r.Props.Priority], r)
	}
	return out
}

func (p *Priority) Invoke(fn func()) {
	if fn != nil {
		fn()
	}
}

func (p *Priority) SetRAMDurationTarget(_ time.Duration) {}

func (p *Priority) DeleteAndTerminate(_ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = make(map[uint8][]entry)
}
