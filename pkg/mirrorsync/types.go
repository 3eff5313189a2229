// Package mirrorsync implements the master/syncer/mirror synchronization
// core described in SPEC_FULL.md: bringing a freshly joined or promoted
// queue mirror up to date with the authoritative master without
// disrupting live traffic, without reordering messages, and while
// respecting bidirectional flow control.
//
// The three roles map onto three goroutines communicating over typed
// channels, following the shape pkg/node uses for its own recv/send
// loops: each actor drains a small set of inbound channels (protocol
// traffic carried as small tagged message enums) with select.
package mirrorsync

import (
	"github.com/relaymq/relaymq/internal/membership"
	"github.com/relaymq/relaymq/pkg/bq"
	"github.com/relaymq/relaymq/pkg/roundref"
)

// Ref is the round token tagging every message of one sync round.
type Ref = roundref.Ref

// MirrorID identifies a candidate mirror for one round.
type MirrorID = membership.MirrorID

// AckEntry is one (msg_id, ack_tag) pair recorded in a mirror's ack-map.
type AckEntry struct {
	MsgID  bq.MsgID
	AckTag int64
}

// AckMap is the ordered sequence of AckEntry a mirror accumulates
// across a round; §3 invariant 4 requires one entry per ack-tracked
// message the master held.
type AckMap []AckEntry

// masterToSyncerKind tags the message a master sends its syncer.
type masterToSyncerKind int

const (
	toSyncerMsgs masterToSyncerKind = iota
	toSyncerDone
)

// masterToSyncer is the master->syncer message enum (§4.1/§4.2).
type masterToSyncer struct {
	kind  masterToSyncerKind
	ref   Ref
	batch []bq.Record // populated for toSyncerMsgs
}

// syncerToMasterKind tags the message a syncer sends its master.
type syncerToMasterKind int

const (
	toMasterReady syncerToMasterKind = iota
	toMasterNext
)

type syncerToMaster struct {
	kind syncerToMasterKind
	ref  Ref
}

// syncerToMirrorKind tags a syncer->mirror broadcast.
type syncerToMirrorKind int

const (
	toMirrorSyncMsgs syncerToMirrorKind = iota
	toMirrorSyncComplete
)

type syncerToMirror struct {
	kind  syncerToMirrorKind
	ref   Ref
	batch []bq.Record
}

// mirrorToSyncerKind tags a mirror->syncer message.
type mirrorToSyncerKind int

const (
	fromMirrorSyncReady mirrorToSyncerKind = iota
	fromMirrorSyncDeny
	fromMirrorAck
	fromMirrorBumpCredit
)

type mirrorToSyncer struct {
	kind   mirrorToSyncerKind
	ref    Ref
	mirror MirrorID
	n      int // for bump_credit
}

// CancelRequest is the synchronous external-cancel call of §6.3. The
// caller sends a CancelRequest and blocks on Done, which the master
// closes only after the syncer has been fully stopped — mirroring the
// "linked" stop-then-reply discipline of §5.
type CancelRequest struct {
	Done chan struct{}
}
