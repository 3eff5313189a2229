package mirrorsync

import (
	"fmt"
	"sort"

	"github.com/relaymq/relaymq/pkg/bq"
)

// zipAckTags implements §4.5: the two ack-handle shapes a backing
// queue can return from BatchPublishDelivered must be zipped back onto
// message ids differently, discriminated at runtime.
func zipAckTags(target bq.BQ, batch []bq.PublishRecord, handles bq.AckHandles) (AckMap, error) {
	if handles.Grouped() {
		return zipGrouped(target, batch, handles)
	}
	return zipFlat(batch, handles)
}

// zipFlat handles the integer-handle (flat queue) shape: handles line
// up element-wise with the outgoing batch.
func zipFlat(batch []bq.PublishRecord, handles bq.AckHandles) (AckMap, error) {
	if len(handles.Flat) != len(batch) {
		return nil, fmt.Errorf("mirrorsync: flat ack handles (%d) do not match batch (%d)", len(handles.Flat), len(batch))
	}
	out := make(AckMap, 0, len(batch))
	for i, rec := range batch {
		out = append(out, AckEntry{MsgID: rec.Msg.ID, AckTag: handles.Flat[i]})
	}
	return out, nil
}

// zipGrouped handles the non-integer (priority queue) shape: handles
// are grouped by priority, so the original batch is re-partitioned the
// same way via the backing queue's own partition helper and each group
// is zipped pairwise with its matching handle group.
func zipGrouped(target bq.BQ, batch []bq.PublishRecord, handles bq.AckHandles) (AckMap, error) {
	byPriority := target.PartitionPublishDeliveredBatch(batch)

	priorities := make([]uint8, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })

	var out AckMap
	for _, p := range priorities {
		recs := byPriority[p]
		tags := handles.ByPriority[p]
		if len(tags) != len(recs) {
			return nil, fmt.Errorf("mirrorsync: priority %d ack handles (%d) do not match records (%d)", p, len(tags), len(recs))
		}
		for i, rec := range recs {
			out = append(out, AckEntry{MsgID: rec.Msg.ID, AckTag: tags[i]})
		}
	}
	return out, nil
}
