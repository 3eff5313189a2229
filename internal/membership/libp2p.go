package membership

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	p2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/relaymq/relaymq/pkg/roundref"
)

// syncStartProtocol is the stream protocol used to deliver sync_start
// announcements, a dedicated protocol id in the same style as a simple
// echo-stream demo protocol.
const syncStartProtocol = "/relaymq/sync-start/1.0.0"

// P2P broadcasts sync_start(Ref) over real libp2p streams — one per
// candidate mirror, opened and written sequentially under mu so this
// sender's announcements keep FIFO order the way §6.2 requires.
type P2P struct {
	mu   sync.Mutex
	host host.Host

	peersMu sync.RWMutex
	peers   map[MirrorID]peer.AddrInfo
}

// NewP2P starts a libp2p host listening on listenAddr (a multiaddr
// string, e.g. "/ip4/0.0.0.0/tcp/0").
func NewP2P(listenAddr string) (*P2P, error) {
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.RSA, 2048, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("membership: generate host key: %w", err)
	}
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.Identity(priv),
		libp2p.DisableRelay(),
	)
	if err != nil {
		return nil, fmt.Errorf("membership: start host: %w", err)
	}
	return &P2P{host: h, peers: make(map[MirrorID]peer.AddrInfo)}, nil
}

// AddMirror registers a candidate mirror's dialable multiaddr so
// BroadcastSyncStart can reach it.
func (n *P2P) AddMirror(id MirrorID, multiaddr string) error {
	maddr, err := ma.NewMultiaddr(multiaddr)
	if err != nil {
		return fmt.Errorf("membership: bad multiaddr for %s: %w", id, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("membership: bad peer addr for %s: %w", id, err)
	}
	n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
	n.peersMu.Lock()
	n.peers[id] = *info
	n.peersMu.Unlock()
	return nil
}

// HandleSyncStart installs a stream handler that decodes incoming
// sync_start announcements and hands the Ref to onStart.
func (n *P2P) HandleSyncStart(onStart func(roundref.Ref)) {
	n.host.SetStreamHandler(syncStartProtocol, func(s p2pnetwork.Stream) {
		defer s.Close()
		var buf [16]byte
		if _, err := io.ReadFull(s, buf[:]); err != nil {
			s.Reset()
			return
		}
		var ref roundref.Ref
		copy(ref[:], buf[:])
		onStart(ref)
	})
}

func (n *P2P) BroadcastSyncStart(ref roundref.Ref, mirrors []MirrorID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var firstErr error
	for _, id := range mirrors {
		n.peersMu.RLock()
		info, ok := n.peers[id]
		n.peersMu.RUnlock()
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("membership: unknown mirror %s", id)
			}
			continue
		}
		if err := n.sendOne(info, ref); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *P2P) sendOne(info peer.AddrInfo, ref roundref.Ref) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := n.host.NewStream(ctx, info.ID, syncStartProtocol)
	if err != nil {
		return fmt.Errorf("membership: dial %s: %w", info.ID, err)
	}
	defer stream.Close()

	var buf [16]byte
	copy(buf[:], ref[:])
	if _, err := stream.Write(buf[:]); err != nil {
		return fmt.Errorf("membership: send sync_start to %s: %w", info.ID, err)
	}
	return nil
}

func (n *P2P) Close() error { return n.host.Close() }
