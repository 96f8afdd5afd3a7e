package token

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to
// serialise concurrent balance mutations. The value is arbitrary but must
// be consistent across all service instances sharing the database.
const advisoryLockKey = int64(7_418_529_630)

// PostgresLedger persists token balances to PostgreSQL.
// It implements Ledger and Burner.
type PostgresLedger struct {
	pool      *pgxpool.Pool
	supplyCap *big.Int // nil = unlimited
	logger    *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given pool.
// supplyCap limits the net minted supply; pass nil for no cap.
func NewPostgresLedger(pool *pgxpool.Pool, supplyCap *big.Int, logger *zap.Logger) *PostgresLedger {
	var cap *big.Int
	if supplyCap != nil {
		cap = new(big.Int).Set(supplyCap)
	}
	return &PostgresLedger{pool: pool, supplyCap: cap, logger: logger}
}

// Mint implements Ledger. The cap check and the balance upsert run inside
// a single transaction guarded by an advisory lock, so two concurrent
// mints cannot both pass the cap check.
func (l *PostgresLedger) Mint(ctx context.Context, to addr.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive, got %s", amount)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if l.supplyCap != nil {
		var mintedStr string
		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(SUM(balance), 0)::text FROM token_balances",
		).Scan(&mintedStr); err != nil {
			return fmt.Errorf("read minted supply: %w", err)
		}
		minted, ok := new(big.Int).SetString(mintedStr, 10)
		if !ok {
			return fmt.Errorf("parse minted supply %q", mintedStr)
		}
		if minted.Add(minted, amount).Cmp(l.supplyCap) > 0 {
			return fmt.Errorf("mint %s to %s: %w", amount, to, ErrSupplyCapExceeded)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO token_balances (address, balance)
		 VALUES ($1, $2::numeric)
		 ON CONFLICT (address) DO UPDATE
		 SET balance = token_balances.balance + EXCLUDED.balance`,
		to.String(), amount.String(),
	); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mint tx: %w", err)
	}

	l.logger.Debug("minted",
		zap.String("to", to.String()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// Burn implements Burner.
func (l *PostgresLedger) Burn(ctx context.Context, from addr.Address, amount *big.Int) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE token_balances
		 SET balance = balance - $2::numeric
		 WHERE address = $1 AND balance >= $2::numeric`,
		from.String(), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("burn %s from %s: %w", amount, from, ErrInsufficientBalance)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit burn tx: %w", err)
	}
	return nil
}

// BalanceOf returns the holder's current balance.
func (l *PostgresLedger) BalanceOf(ctx context.Context, holder addr.Address) (*big.Int, error) {
	var balStr string
	if err := l.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(balance), 0)::text FROM token_balances WHERE address = $1",
		holder.String(),
	).Scan(&balStr); err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	bal, ok := new(big.Int).SetString(balStr, 10)
	if !ok {
		return nil, fmt.Errorf("parse balance %q", balStr)
	}
	return bal, nil
}

// TotalMinted implements Ledger.
func (l *PostgresLedger) TotalMinted(ctx context.Context) (*big.Int, error) {
	var mintedStr string
	if err := l.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(balance), 0)::text FROM token_balances",
	).Scan(&mintedStr); err != nil {
		return nil, fmt.Errorf("query minted supply: %w", err)
	}
	minted, ok := new(big.Int).SetString(mintedStr, 10)
	if !ok {
		return nil, fmt.Errorf("parse minted supply %q", mintedStr)
	}
	return minted, nil
}
