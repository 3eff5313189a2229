// Package bq describes the backing-queue capability that a mirror-sync
// round is spliced into. The backing queue itself — the durable storage
// and delivery engine behind a queue master or mirror — lives outside
// this module; bq only names the operations the sync core calls.
package bq

import "time"

// MsgID identifies a message independent of its delivery state.
type MsgID string

// Msg is the immutable identifier+payload pair carried by a message.
type Msg struct {
	ID      MsgID
	Payload []byte
}

// Props carries per-message delivery metadata.
type Props struct {
	Priority        uint8
	NeedsConfirming bool
	Delivered       bool
	Headers         map[string]string
}

// Record is a single message observed while folding the backing queue,
// tagged with whether the master was holding it delivered-but-unacked.
type Record struct {
	Msg     Msg
	Props   Props
	Unacked bool
}

// PublishRecord is what gets handed to BatchPublish / BatchPublishDelivered.
type PublishRecord struct {
	Msg   Msg
	Props Props
}

// FoldOutcomeKind classifies how a Fold ended.
type FoldOutcomeKind int

const (
	FoldOK FoldOutcomeKind = iota
	FoldShutdown
	FoldSyncDied
)

func (k FoldOutcomeKind) String() string {
	switch k {
	case FoldOK:
		return "ok"
	case FoldShutdown:
		return "shutdown"
	case FoldSyncDied:
		return "sync_died"
	default:
		return "unknown"
	}
}

// FoldOutcome is returned by Fold once the queue snapshot is exhausted
// or the caller's FoldFunc asked to stop early.
type FoldOutcome struct {
	Kind   FoldOutcomeKind
	Reason string
}

// FoldFunc is invoked once per record in the queue snapshot, in queue
// order. It returns whether folding should continue, and — if not —
// the outcome to report to the caller of Fold.
type FoldFunc func(rec Record, curr, length int) (cont bool, stop FoldOutcome)

// AckHandles is the result of BatchPublishDelivered. Exactly one of the
// two shapes is populated, discriminated at runtime per §4.5: a flat
// queue returns one ack handle per record in order; a priority queue
// returns handles grouped by priority.
type AckHandles struct {
	Flat       []int64
	ByPriority map[uint8][]int64
}

// Grouped reports whether the non-integer (priority-grouped) shape was used.
func (h AckHandles) Grouped() bool { return h.ByPriority != nil }

// BQ is the capability interface consumed by the sync core. A concrete
// backing queue (master-side or mirror-side) implements it; this
// package only names the contract (§6.1 of the design).
type BQ interface {
	// Depth reports the queue's current message count.
	Depth() int

	// Fold iterates a point-in-time snapshot of the queue in order,
	// invoking fn once per record. It returns the terminal FoldOutcome.
	Fold(fn FoldFunc) FoldOutcome

	// Purge drops all regular (non-ack-tracked) messages, returning
	// how many were removed.
	Purge() int

	// PurgeAcks drops all ack-tracked (delivered-but-unacked) messages.
	PurgeAcks()

	// BatchPublish enqueues regular messages. Every record must carry
	// the same Unacked classification by construction of the caller.
	BatchPublish(batch []PublishRecord)

	// BatchPublishDelivered enqueues messages in the delivered-but-
	// unacked state and returns an ack handle per message.
	BatchPublishDelivered(batch []PublishRecord) AckHandles

	// PartitionPublishDeliveredBatch re-groups a batch by priority,
	// mirroring how a priority-queue implementation groups its
	// BatchPublishDelivered return value. Flat queues return a single
	// group.
	PartitionPublishDeliveredBatch(batch []PublishRecord) map[uint8][]PublishRecord

	// Invoke runs an arbitrary administrative hook against the queue.
	Invoke(fn func())

	// SetRAMDurationTarget applies a new ram-duration budget.
	SetRAMDurationTarget(d time.Duration)

	// DeleteAndTerminate tears the backing queue down irrecoverably.
	DeleteAndTerminate(reason string)
}
