package vesting

import (
	"fmt"
	"math/big"
	"time"

	"github.com/merkledrop-io/merkledrop/internal/merkle"
)

// CliffMode selects how claims before the cliff deadline are treated.
// Deployed variants of this scheme disagree on the semantics, so the
// choice is an explicit configuration rather than a hard-coded guess.
type CliffMode string

const (
	// CliffHard rejects every claim before the cliff deadline.
	CliffHard CliffMode = "hard"
	// CliffSoft releases the TGE tranche before the cliff deadline and
	// starts the round schedule once the cliff passes.
	CliffSoft CliffMode = "soft"
)

// ParseCliffMode validates a configured cliff mode string.
func ParseCliffMode(s string) (CliffMode, error) {
	switch CliffMode(s) {
	case CliffHard, CliffSoft:
		return CliffMode(s), nil
	default:
		return "", fmt.Errorf("unknown cliff mode %q: expected %q or %q", s, CliffHard, CliffSoft)
	}
}

// Distribution is one vesting campaign: a Merkle commitment to its
// allow-list plus the cliff/round parameters of its release schedule.
type Distribution struct {
	Index         int         `json:"index"`
	MerkleRoot    merkle.Hash `json:"merkle_root"`
	CliffDeadline time.Time   `json:"cliff_deadline"`
	TGEPercent    int         `json:"tge_percent"`  // 0..100
	TotalRounds   int         `json:"total_rounds"` // >= 1, includes the TGE round
	Paused        bool        `json:"paused"`
}

// NewSchedule builds one Distribution per index from four equal-length
// parallel slices. Cliff deadlines are anchored at creation:
//
//	cliffDeadline = creation + cliffOffset*roundDuration
//
// A zero root is permitted; such a distribution accepts a one-time root
// assignment later and rejects claims until then.
func NewSchedule(
	creation time.Time,
	roundDuration time.Duration,
	roots []merkle.Hash,
	cliffOffsets []int,
	tgePercents []int,
	roundCounts []int,
) ([]*Distribution, error) {
	n := len(roots)
	if len(cliffOffsets) != n || len(tgePercents) != n || len(roundCounts) != n {
		return nil, fmt.Errorf("roots=%d cliff_offsets=%d tge_percents=%d round_counts=%d: %w",
			n, len(cliffOffsets), len(tgePercents), len(roundCounts), ErrLengthMismatch)
	}
	if roundDuration <= 0 {
		return nil, fmt.Errorf("round duration must be positive, got %s", roundDuration)
	}

	dists := make([]*Distribution, 0, n)
	for i := 0; i < n; i++ {
		if tgePercents[i] < 0 || tgePercents[i] > 100 {
			return nil, fmt.Errorf("distribution %d: tge percent %d outside [0,100]", i, tgePercents[i])
		}
		if roundCounts[i] < 1 {
			return nil, fmt.Errorf("distribution %d: total rounds %d, need at least 1", i, roundCounts[i])
		}
		if cliffOffsets[i] < 0 {
			return nil, fmt.Errorf("distribution %d: negative cliff offset %d", i, cliffOffsets[i])
		}

		dists = append(dists, &Distribution{
			Index:         i,
			MerkleRoot:    roots[i],
			CliffDeadline: creation.Add(time.Duration(cliffOffsets[i]) * roundDuration),
			TGEPercent:    tgePercents[i],
			TotalRounds:   roundCounts[i],
		})
	}
	return dists, nil
}

// currentRound maps a timestamp to the 1-based release round, clamped to
// [1, TotalRounds]. Callers have already resolved the cliff gate; before
// the deadline this returns 1.
func (d *Distribution) currentRound(now time.Time, roundDuration time.Duration) int {
	elapsed := now.Sub(d.CliffDeadline)
	if elapsed < 0 {
		return 1
	}
	r := int(elapsed/roundDuration) + 1
	if r > d.TotalRounds {
		return d.TotalRounds
	}
	return r
}

var hundred = big.NewInt(100)

// releasableAt returns the cumulative amount unlocked at the given round
// for a beneficiary with the given total entitlement.
//
// Round 1 unlocks floor(total*TGEPercent/100); each later round adds a
// fixed floor((total-tge)/(TotalRounds-1)) share. Integer division
// truncates, so the formula alone would strand up to TotalRounds-2 base
// units of rounding dust; the final round therefore releases the exact
// total instead of the formula value.
func (d *Distribution) releasableAt(round int, total *big.Int) *big.Int {
	if round >= d.TotalRounds {
		return new(big.Int).Set(total)
	}

	tge := new(big.Int).Mul(total, big.NewInt(int64(d.TGEPercent)))
	tge.Quo(tge, hundred)
	if round == 1 {
		return tge
	}

	vesting := new(big.Int).Sub(total, tge)
	perRound := vesting.Quo(vesting, big.NewInt(int64(d.TotalRounds-1)))
	step := new(big.Int).Mul(perRound, big.NewInt(int64(round-1)))
	return step.Add(step, tge)
}
