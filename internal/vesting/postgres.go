package vesting

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"go.uber.org/zap"
)

// PostgresStore persists claim records to PostgreSQL. It implements Store.
//
// The engine serialises all mutations behind its own lock, so the store
// itself needs no row locking; each PutRecord is a single upsert.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, claimant addr.Address, distIdx int) (ClaimRecord, error) {
	var (
		claimedStr   string
		fullyClaimed bool
	)
	err := s.pool.QueryRow(ctx,
		`SELECT claimed_so_far::text, fully_claimed
		 FROM claim_records
		 WHERE claimant = $1 AND distribution_idx = $2`,
		claimant.String(), distIdx,
	).Scan(&claimedStr, &fullyClaimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return zeroRecord(), nil
	}
	if err != nil {
		return ClaimRecord{}, fmt.Errorf("query claim record: %w", err)
	}

	claimed, ok := new(big.Int).SetString(claimedStr, 10)
	if !ok {
		return ClaimRecord{}, fmt.Errorf("parse claimed amount %q", claimedStr)
	}
	return ClaimRecord{ClaimedSoFar: claimed, FullyClaimed: fullyClaimed}, nil
}

// PutRecord implements Store.
func (s *PostgresStore) PutRecord(ctx context.Context, claimant addr.Address, distIdx int, rec ClaimRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO claim_records (claimant, distribution_idx, claimed_so_far, fully_claimed, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5)
		 ON CONFLICT (claimant, distribution_idx) DO UPDATE
		 SET claimed_so_far = EXCLUDED.claimed_so_far,
		     fully_claimed  = EXCLUDED.fully_claimed,
		     updated_at     = EXCLUDED.updated_at`,
		claimant.String(), distIdx, rec.ClaimedSoFar.String(), rec.FullyClaimed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert claim record: %w", err)
	}

	s.logger.Debug("claim record stored",
		zap.String("claimant", claimant.String()),
		zap.Int("distribution", distIdx),
		zap.String("claimed_so_far", rec.ClaimedSoFar.String()),
		zap.Bool("fully_claimed", rec.FullyClaimed),
	)
	return nil
}

// TotalClaimed implements Store.
func (s *PostgresStore) TotalClaimed(ctx context.Context, distIdx int) (*big.Int, error) {
	var totalStr string
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(claimed_so_far), 0)::text
		 FROM claim_records WHERE distribution_idx = $1`,
		distIdx,
	).Scan(&totalStr); err != nil {
		return nil, fmt.Errorf("sum claimed amounts: %w", err)
	}

	total, ok := new(big.Int).SetString(totalStr, 10)
	if !ok {
		return nil, fmt.Errorf("parse claimed total %q", totalStr)
	}
	return total, nil
}
