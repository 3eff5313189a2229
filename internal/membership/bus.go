// Package membership implements the "membership bus" of §6.2: a
// broadcast channel used to kick off a sync round such that the
// sync_start announcement is ordered after every previously broadcast
// message from the same sender. This module owns two implementations:
// Mem (in-process, for tests, a mutex-guarded in-memory switch) and a
// libp2p-backed one for real deployments (libp2p.go).
package membership

import (
	"github.com/relaymq/relaymq/pkg/roundref"
)

// MirrorID identifies a sync-round candidate mirror on the bus.
type MirrorID string

// Bus broadcasts sync_start(Ref) to a set of candidate mirrors with
// FIFO ordering relative to any prior broadcast from this sender.
type Bus interface {
	// BroadcastSyncStart announces the start of a round to every
	// listed mirror. It must not return before the announcement is
	// enqueued behind all of this sender's earlier broadcasts.
	BroadcastSyncStart(ref roundref.Ref, mirrors []MirrorID) error
}
