package mirrorsync

import "github.com/relaymq/relaymq/pkg/bq"

// applyBatch implements §4.4: the mirror partitions an incoming batch
// consecutively by Unacked (never by scatter, so within-partition
// publish order matches the queue's original order) and applies each
// partition through the matching backing-queue fast path. It returns
// the AckEntry values produced by any ack-tracked partitions, ready to
// append to the mirror's AckMap.
func applyBatch(target bq.BQ, batch []bq.Record) (AckMap, error) {
	var acks AckMap
	i := 0
	for i < len(batch) {
		unacked := batch[i].Unacked
		j := i + 1
		for j < len(batch) && batch[j].Unacked == unacked {
			j++
		}
		partition := batch[i:j]
		if unacked {
			entries, err := applyAckTrackedPartition(target, partition)
			if err != nil {
				return acks, err
			}
			acks = append(acks, entries...)
		} else {
			applyRegularPartition(target, partition)
		}
		i = j
	}
	return acks, nil
}

// applyRegularPartition publishes a run of regular messages. Every
// record is rewritten with delivered=true and needs_confirming cleared
// — the publisher confirm was already handled by the master (§4.4.2).
func applyRegularPartition(target bq.BQ, partition []bq.Record) {
	out := make([]bq.PublishRecord, 0, len(partition))
	for _, rec := range partition {
		props := rec.Props
		props.Delivered = true
		props.NeedsConfirming = false
		out = append(out, bq.PublishRecord{Msg: rec.Msg, Props: props})
	}
	target.BatchPublish(out)
}

// applyAckTrackedPartition publishes a run of ack-tracked messages via
// the delivered fast path and zips the returned ack handles back onto
// message ids per §4.5.
func applyAckTrackedPartition(target bq.BQ, partition []bq.Record) (AckMap, error) {
	out := make([]bq.PublishRecord, 0, len(partition))
	for _, rec := range partition {
		out = append(out, bq.PublishRecord{Msg: rec.Msg, Props: rec.Props})
	}
	handles := target.BatchPublishDelivered(out)
	return zipAckTags(target, out, handles)
}
