package creditflow

import "testing"

func TestTrackSeedsInitialCredit(t *testing.T) {
	m := NewManager(3)
	m.Track("a")
	if got := m.Credit("a"); got != 3 {
		t.Fatalf("Credit(a) = %d, want 3", got)
	}
	// Re-tracking an already-known peer must not reset its counter.
	m.Send("a")
	m.Track("a")
	if got := m.Credit("a"); got != 2 {
		t.Fatalf("Credit(a) after re-Track = %d, want 2", got)
	}
}

func TestBlockedReflectsAnyExhaustedPeer(t *testing.T) {
	m := NewManager(1)
	m.Track("a")
	m.Track("b")
	if m.Blocked() {
		t.Fatal("fresh manager reported blocked")
	}
	m.Send("a")
	if !m.Blocked() {
		t.Fatal("expected blocked once a peer reaches zero credit")
	}
	peers := m.BlockedPeers()
	if len(peers) != 1 || peers[0] != "a" {
		t.Fatalf("BlockedPeers = %v, want [a]", peers)
	}
}

func TestAckAndHandleBumpRestoreCredit(t *testing.T) {
	m := NewManager(1)
	m.Track("a")
	m.Send("a")
	if !m.Blocked() {
		t.Fatal("expected blocked after exhausting the only credit")
	}
	m.Ack("a")
	if m.Blocked() {
		t.Fatal("expected unblocked after Ack restored credit")
	}

	m.Send("a")
	m.HandleBump("a", 0) // non-positive bump must still restore at least one credit
	if m.Credit("a") != 1 {
		t.Fatalf("Credit(a) after zero-bump = %d, want 1", m.Credit("a"))
	}
}

func TestPeerDownDropsBookkeeping(t *testing.T) {
	m := NewManager(1)
	m.Track("a")
	m.Track("b")
	m.Send("a")
	m.PeerDown("a")
	if m.Blocked() {
		t.Fatal("expected unblocked once the only exhausted peer went down")
	}
	peers := m.Peers()
	if len(peers) != 1 || peers[0] != "b" {
		t.Fatalf("Peers = %v, want [b]", peers)
	}
}
