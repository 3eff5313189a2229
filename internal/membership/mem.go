package membership

import (
	"fmt"
	"sync"

	"github.com/relaymq/relaymq/pkg/roundref"
)

// Mem is an in-process membership bus for tests and single-host
// deployments, grounded in the same mutex-guarded-map shape as
// pkg/transport.Switch and the fanout discipline of pkg/eventbus.Bus.
// Holding the lock across the whole broadcast is what gives
// BroadcastSyncStart its FIFO-behind-prior-broadcasts guarantee: two
// calls from the same *Mem never interleave their per-mirror sends.
type Mem struct {
	mu      sync.Mutex
	inboxes map[MirrorID]chan roundref.Ref
}

func NewMem() *Mem {
	return &Mem{inboxes: make(map[MirrorID]chan roundref.Ref)}
}

// Listen registers a mirror and returns the channel it will receive
// sync_start announcements on. Must be called before any broadcast
// that should reach this mirror.
func (m *Mem) Listen(id MirrorID) <-chan roundref.Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan roundref.Ref, 4)
	m.inboxes[id] = ch
	return ch
}

// Unlisten removes a mirror from the bus, e.g. once it has voted.
func (m *Mem) Unlisten(id MirrorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inboxes, id)
}

func (m *Mem) BroadcastSyncStart(ref roundref.Ref, mirrors []MirrorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []MirrorID
	for _, id := range mirrors {
		ch, ok := m.inboxes[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		select {
		case ch <- ref:
		default:
			// Mirror's mailbox is saturated; treat as unreachable for
			// this round rather than blocking the whole broadcast.
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("membership: %d mirror(s) unreachable: %v", len(missing), missing)
	}
	return nil
}
