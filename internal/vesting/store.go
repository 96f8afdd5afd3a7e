package vesting

import (
	"context"
	"math/big"
	"sync"

	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

// Store is the persistence interface for claim records, keyed by
// (beneficiary, distribution index). A never-seen key reads as the zero
// record; records are never deleted.
//
// Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	// Record returns the claim record for the key, or the zero record if
	// the beneficiary has never claimed under this distribution.
	Record(ctx context.Context, claimant addr.Address, distIdx int) (ClaimRecord, error)

	// PutRecord stores the record for the key, overwriting any previous
	// value. The engine also uses this to roll a record back after a
	// failed external transfer.
	PutRecord(ctx context.Context, claimant addr.Address, distIdx int, rec ClaimRecord) error

	// TotalClaimed sums ClaimedSoFar across all beneficiaries of one
	// distribution. Used by the drift auditor.
	TotalClaimed(ctx context.Context, distIdx int) (*big.Int, error)
}

type recordKey struct {
	claimant addr.Address
	distIdx  int
}

// MemoryStore is an in-memory, thread-safe Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]ClaimRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]ClaimRecord)}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, claimant addr.Address, distIdx int) (ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{claimant, distIdx}]
	if !ok {
		return zeroRecord(), nil
	}
	return rec.clone(), nil
}

// PutRecord implements Store.
func (s *MemoryStore) PutRecord(_ context.Context, claimant addr.Address, distIdx int, rec ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[recordKey{claimant, distIdx}] = rec.clone()
	return nil
}

// TotalClaimed implements Store.
func (s *MemoryStore) TotalClaimed(_ context.Context, distIdx int) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := new(big.Int)
	for key, rec := range s.records {
		if key.distIdx == distIdx {
			total.Add(total, rec.ClaimedSoFar)
		}
	}
	return total, nil
}
