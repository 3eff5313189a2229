// Package creditflow implements the bidirectional token-bucket
// backpressure the design notes (§9 of SPEC_FULL.md) call out as a
// separate capability: Send/Ack/Blocked/HandleBump/PeerDown. The
// Syncer charges one credit per mirror per forwarded batch and parks
// in a dedicated wait state whenever any peer reports blocked.
package creditflow

import "sync"

// Peer identifies a credit-flow counterparty (a mirror, from the
// syncer's point of view).
type Peer string

// Manager tracks an outstanding-credit counter per peer. A peer is
// "blocked" once its counter reaches zero; it is unblocked again by Ack
// (the peer acknowledging a batch) or HandleBump (a bump_credit message).
type Manager struct {
	mu      sync.Mutex
	initial int
	credits map[Peer]int
}

// NewManager creates a Manager seeding every peer at the given
// initial credit window when it is first observed.
func NewManager(initialCredit int) *Manager {
	if initialCredit <= 0 {
		initialCredit = 1
	}
	return &Manager{initial: initialCredit, credits: make(map[Peer]int)}
}

// Track registers a peer at the initial credit window if not already known.
func (m *Manager) Track(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credits[p]; !ok {
		m.credits[p] = m.initial
	}
}

// Send charges one credit for a forwarded batch. Call only when
// Blocked() is false; Send does not itself check blocking so callers
// can charge multiple peers in one pass and inspect Blocked afterward.
func (m *Manager) Send(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credits[p] > 0 {
		m.credits[p]--
	}
}

// Ack restores one credit for a peer, e.g. when a mirror acknowledges
// an absorbed batch.
func (m *Manager) Ack(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[p]++
}

// HandleBump is the message-shaped counterpart of Ack, for call sites
// that receive a bump as an opaque event rather than a direct peer ack.
func (m *Manager) HandleBump(p Peer, n int) {
	if n <= 0 {
		n = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[p] += n
}

// PeerDown drops all bookkeeping for a peer that is no longer live.
func (m *Manager) PeerDown(p Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credits, p)
}

// Blocked reports whether any currently-tracked peer has exhausted its
// credit window. The syncer must stop forwarding batches while true.
func (m *Manager) Blocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credits {
		if c <= 0 {
			return true
		}
	}
	return false
}

// BlockedPeers returns the peers currently out of credit.
func (m *Manager) BlockedPeers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Peer
	for p, c := range m.credits {
		if c <= 0 {
			out = append(out, p)
		}
	}
	return out
}

// Peers returns every currently-tracked peer.
func (m *Manager) Peers() []Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Peer, 0, len(m.credits))
	for p := range m.credits {
		out = append(out, p)
	}
	return out
}

// Credit reports a peer's current outstanding credit, for observability.
func (m *Manager) Credit(p Peer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credits[p]
}
