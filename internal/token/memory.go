package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable balances across restarts.
type MemoryLedger struct {
	mu        sync.RWMutex
	balances  map[addr.Address]*big.Int
	minted    *big.Int
	supplyCap *big.Int // nil = unlimited
}

// NewMemoryLedger creates an empty MemoryLedger. supplyCap limits the net
// minted supply; pass nil for no cap.
func NewMemoryLedger(supplyCap *big.Int) *MemoryLedger {
	var cap *big.Int
	if supplyCap != nil {
		cap = new(big.Int).Set(supplyCap)
	}
	return &MemoryLedger{
		balances:  make(map[addr.Address]*big.Int),
		minted:    new(big.Int),
		supplyCap: cap,
	}
}

// Mint implements Ledger.
func (l *MemoryLedger) Mint(_ context.Context, to addr.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive, got %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := new(big.Int).Add(l.minted, amount)
	if l.supplyCap != nil && next.Cmp(l.supplyCap) > 0 {
		return fmt.Errorf("mint %s to %s: %w", amount, to, ErrSupplyCapExceeded)
	}

	bal, ok := l.balances[to]
	if !ok {
		bal = new(big.Int)
		l.balances[to] = bal
	}
	bal.Add(bal, amount)
	l.minted = next
	return nil
}

// Burn implements Burner.
func (l *MemoryLedger) Burn(_ context.Context, from addr.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from %s: %w", amount, from, ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	l.minted.Sub(l.minted, amount)
	return nil
}

// BalanceOf returns the holder's current balance.
func (l *MemoryLedger) BalanceOf(_ context.Context, holder addr.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[holder]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

// TotalMinted implements Ledger.
func (l *MemoryLedger) TotalMinted(_ context.Context) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.minted), nil
}
