// Package audit implements the reconciliation sweep that cross-checks the
// claim-record store against the token ledger.
//
// The engine's rollback discipline should make the two agree at all times:
// the sum of ClaimedSoFar across every distribution equals the ledger's
// net minted supply. The auditor recomputes both sides on an interval and
// raises an alert when they diverge. A divergence means a rollback path
// failed halfway, for example a burn-less ledger after a batch abort, and
// needs operator attention.
package audit

import (
	"context"
	"math/big"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds auditor configuration.
type Config struct {
	SweepInterval time.Duration
	FailThreshold int // consecutive divergent sweeps before alerting
}

// ClaimTotaler sums recorded claims for one distribution.
// *vesting.MemoryStore and *vesting.PostgresStore satisfy this interface.
type ClaimTotaler interface {
	TotalClaimed(ctx context.Context, distIdx int) (*big.Int, error)
}

// MintTotaler reports the token ledger's net minted supply.
// Any token.Ledger satisfies this interface.
type MintTotaler interface {
	TotalMinted(ctx context.Context) (*big.Int, error)
}

// WebhookDispatchFunc is an optional callback for dispatching drift alerts.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// MetricsRecordFunc is an optional callback for recording sweep results.
type MetricsRecordFunc func(consistent bool)

// Auditor runs periodic claim-vs-mint reconciliation sweeps.
type Auditor struct {
	store         ClaimTotaler
	ledger        MintTotaler
	distributions int

	mu        sync.Mutex
	failCount int

	cfg       Config
	onWebhook WebhookDispatchFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Auditor over the given number of distributions.
func New(store ClaimTotaler, ledger MintTotaler, distributions int, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 2
	}
	return &Auditor{
		store:         store,
		ledger:        ledger,
		distributions: distributions,
		cfg:           cfg,
		logger:        logger,
	}
}

// SetWebhookDispatch configures the drift-alert webhook callback.
func (a *Auditor) SetWebhookDispatch(fn WebhookDispatchFunc) {
	a.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs the sweep loop until quit is signalled.
func (a *Auditor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SweepInterval-time.Second)
			a.Sweep(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// Sweep runs one reconciliation pass and returns whether the books agree.
func (a *Auditor) Sweep(ctx context.Context) bool {
	claimed := new(big.Int)
	for idx := 0; idx < a.distributions; idx++ {
		total, err := a.store.TotalClaimed(ctx, idx)
		if err != nil {
			a.logger.Error("audit: sum claims", zap.Int("distribution", idx), zap.Error(err))
			return true // inconclusive, not drift
		}
		claimed.Add(claimed, total)
	}

	minted, err := a.ledger.TotalMinted(ctx)
	if err != nil {
		a.logger.Error("audit: read minted supply", zap.Error(err))
		return true
	}

	consistent := claimed.Cmp(minted) == 0
	if a.onMetrics != nil {
		a.onMetrics(consistent)
	}

	a.mu.Lock()
	if consistent {
		if a.failCount >= a.cfg.FailThreshold {
			a.logger.Info("audit: books reconciled after drift")
		}
		a.failCount = 0
		a.mu.Unlock()
		return true
	}
	a.failCount++
	count := a.failCount
	a.mu.Unlock()

	a.logger.Warn("audit: claimed/minted divergence",
		zap.String("claimed_total", claimed.String()),
		zap.String("minted_total", minted.String()),
		zap.Int("consecutive", count),
	)

	// Alert exactly at the threshold, not on every divergent sweep.
	if count == a.cfg.FailThreshold && a.onWebhook != nil {
		a.onWebhook(ctx, "audit.drift_detected", map[string]string{
			"claimed_total": claimed.String(),
			"minted_total":  minted.String(),
		})
	}
	return false
}
