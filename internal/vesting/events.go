package vesting

import (
	"math/big"
	"time"

	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

// ClaimedEvent records one successful payout.
type ClaimedEvent struct {
	Claimant     addr.Address
	Amount       *big.Int
	Distribution int
	Round        int
	FullyClaimed bool
	At           time.Time
}

// PauseEvent records a pause-state transition of one distribution.
type PauseEvent struct {
	Distribution int
	At           time.Time
}

// RootEvent records a one-time Merkle root assignment.
type RootEvent struct {
	Distribution int
	Old, New     merkle.Hash
	At           time.Time
}

// Sink receives engine events after the corresponding state change has
// committed. Implementations must not block the claim path; slow delivery
// belongs in a goroutine behind the sink.
type Sink interface {
	Claimed(ev ClaimedEvent)
	DistributionPaused(ev PauseEvent)
	DistributionUnpaused(ev PauseEvent)
	MerkleRootUpdated(ev RootEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Claimed(ClaimedEvent)            {}
func (NopSink) DistributionPaused(PauseEvent)   {}
func (NopSink) DistributionUnpaused(PauseEvent) {}
func (NopSink) MerkleRootUpdated(RootEvent)     {}
