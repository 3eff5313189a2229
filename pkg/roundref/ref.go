// Package roundref defines the round token (Ref) that tags every
// message of one mirror-sync round. A fresh Ref is minted per round;
// stale messages carrying any other Ref are ignored by construction
// (callers compare with ==, never reuse one across rounds).
package roundref

import "github.com/google/uuid"

// Ref is an opaque, globally-unique correlator for one sync round.
type Ref uuid.UUID

// New mints a fresh round token.
func New() Ref { return Ref(uuid.New()) }

func (r Ref) String() string { return uuid.UUID(r).String() }

// Zero is the unset token; no real round ever carries it.
var Zero Ref
