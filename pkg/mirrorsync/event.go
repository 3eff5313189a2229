package mirrorsync

import "time"

// EventType enumerates the observable moments of a sync round, the
// way pkg/node/event.go enumerates node-level moments. cmd/syncmon
// renders these; nothing in the core depends on a consumer existing.
type EventType string

const (
	EventRoundReady    EventType = "round_ready"
	EventBatchSent     EventType = "batch_sent"
	EventStats         EventType = "stats"
	EventMirrorReady   EventType = "mirror_ready"
	EventMirrorDenied  EventType = "mirror_denied"
	EventMirrorDown    EventType = "mirror_down"
	EventCreditBlocked EventType = "credit_blocked"
	EventCreditBump    EventType = "credit_bump"
	EventRoundDone     EventType = "round_done"
	EventWarn          EventType = "warn"
)

// Event is one observable moment of a round.
type Event struct {
	Time   time.Time
	Ref    Ref
	Type   EventType
	Fields map[string]any
}

// EventSink receives best-effort Event notifications. Publish never
// blocks the sender: a full or nil sink just drops the event, mirroring
// Node.emit.
type EventSink chan<- Event

func publish(sink EventSink, ref Ref, t EventType, fields map[string]any) {
	if sink == nil {
		return
	}
	select {
	case sink <- Event{Time: time.Now(), Ref: ref, Type: t, Fields: fields}:
	default:
	}
}

// StatsFunc is the EmitStats/HandleInfo hook of §6.4: invoked with the
// running count of messages handed to the syncer this round.
type StatsFunc func(syncing int)

// LogFunc is the log hook of §6.4, called on every stats emission.
type LogFunc func(syncing int)
