package vesting

import "errors"

// Hard failures. Every one of these aborts the operation with no state
// change; none of them is retried internally.
var (
	// ErrLengthMismatch reports parallel input slices of differing lengths,
	// either at schedule construction or in a batch claim.
	ErrLengthMismatch = errors.New("parallel inputs have mismatched lengths")

	// ErrOutOfRange reports a distribution index outside the schedule.
	ErrOutOfRange = errors.New("distribution index out of range")

	// ErrPaused reports a claim against a paused distribution.
	ErrPaused = errors.New("distribution is paused")

	// ErrInvalidProof reports a failed Merkle membership check.
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrCliffNotOver reports a hard-cliff claim before the cliff deadline.
	ErrCliffNotOver = errors.New("cliff period not over")

	// ErrTransferFailed reports that the token ledger rejected the payout;
	// the claim's bookkeeping has been fully rolled back.
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrNotOwner reports an admin operation after ownership was renounced.
	ErrNotOwner = errors.New("owner role has been renounced")

	// ErrTokenNotSet reports a claim before the token ledger was wired.
	ErrTokenNotSet = errors.New("token ledger not configured")

	// ErrTokenAlreadySet reports a second SetToken call.
	ErrTokenAlreadySet = errors.New("token ledger already configured")

	// ErrRootAlreadySet reports a root assignment to a distribution whose
	// root is not the zero hash.
	ErrRootAlreadySet = errors.New("merkle root already set")
)

// ErrNothingToClaim is the expected, non-exceptional outcome of claiming
// when no new tranche has unlocked since the last claim. Callers should
// treat it as "come back later", not as a failure.
var ErrNothingToClaim = errors.New("nothing to claim yet")
