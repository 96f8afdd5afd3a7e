package vesting

import "math/big"

// ClaimRecord tracks one beneficiary's progress through one distribution.
// ClaimedSoFar is monotonically non-decreasing and never exceeds the
// entitlement proven for the pair; FullyClaimed is terminal.
type ClaimRecord struct {
	ClaimedSoFar *big.Int `json:"claimed_so_far"`
	FullyClaimed bool     `json:"fully_claimed"`
}

// zeroRecord is the implicit state of a beneficiary that has never claimed.
func zeroRecord() ClaimRecord {
	return ClaimRecord{ClaimedSoFar: new(big.Int)}
}

// clone returns an independent copy, so a staged update cannot alias the
// stored record.
func (r ClaimRecord) clone() ClaimRecord {
	return ClaimRecord{
		ClaimedSoFar: new(big.Int).Set(r.ClaimedSoFar),
		FullyClaimed: r.FullyClaimed,
	}
}
