// Package token defines the fungible-token ledger the vesting engine pays
// out through, with in-memory and PostgreSQL implementations.
//
// The ledger is deliberately narrow: the claim engine only ever mints, and
// treats any mint error as a hard abort of the whole claim. Balance
// queries and burns exist for operations and for batch compensation; they
// are not part of the claim path's happy case.
package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

// ErrSupplyCapExceeded is returned by Mint when the configured supply cap
// would be crossed.
var ErrSupplyCapExceeded = errors.New("token supply cap exceeded")

// ErrInsufficientBalance is returned by Burn when the holder's balance is
// smaller than the burn amount.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// Ledger is the external token collaborator seen by the vesting engine.
type Ledger interface {
	// Mint credits amount to the holder. It must fail (not silently
	// truncate) when the supply cap or any backend constraint would be
	// violated; the caller rolls its own state back on error.
	Mint(ctx context.Context, to addr.Address, amount *big.Int) error

	// TotalMinted returns the net minted supply (mints minus burns).
	TotalMinted(ctx context.Context) (*big.Int, error)
}

// Burner is implemented by ledgers that can reverse a mint. The engine
// uses it to compensate already-applied transfers when a later entry of
// an all-or-nothing batch fails.
type Burner interface {
	Burn(ctx context.Context, from addr.Address, amount *big.Int) error
}
