// Package vesting implements the claim-verification and vesting-accounting
// engine: a fixed schedule of Merkle-committed distributions, per-beneficiary
// claim records, and the cliff-plus-linear release math that decides how much
// each proven beneficiary may withdraw at any moment.
//
// Every state-mutating operation runs under a single engine lock: read
// record, compute, write record, invoke the token ledger, emit the event.
// When the token ledger rejects a payout the record write is rolled back,
// so no partial state is ever observable.
package vesting

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"go.uber.org/zap"
)

// Config holds the engine-wide schedule parameters.
type Config struct {
	// RoundDuration is the length of one vesting round.
	RoundDuration time.Duration

	// CliffMode selects hard or soft cliff semantics for all distributions.
	CliffMode CliffMode

	// RenounceOwnerOnSetToken irrevocably clears the admin capability the
	// moment the token ledger is wired via SetToken. One-way by design of
	// the deployment, not recoverable at runtime.
	RenounceOwnerOnSetToken bool

	// Now overrides the clock; nil means time.Now. Each operation samples
	// it exactly once and uses that instant throughout.
	Now func() time.Time
}

// ClaimRequest is one claim attempt: the beneficiary, its total committed
// entitlement, the Merkle proof for the (beneficiary, entitlement) leaf,
// and the distribution selector.
type ClaimRequest struct {
	Claimant     addr.Address
	Amount       *big.Int
	Proof        []merkle.Hash
	Distribution int
}

// ClaimResult reports a successful (possibly partial) payout.
type ClaimResult struct {
	Claimant     addr.Address `json:"claimant"`
	Distribution int          `json:"distribution"`
	Round        int          `json:"round"`
	Released     *big.Int     `json:"released"`
	ClaimedSoFar *big.Int     `json:"claimed_so_far"`
	FullyClaimed bool         `json:"fully_claimed"`
}

// Engine owns the distribution schedule and claim-record state machine.
type Engine struct {
	mu             sync.Mutex
	dists          []*Distribution
	store          Store
	token          token.Ledger // nil until SetToken
	sink           Sink
	logger         *zap.Logger
	cfg            Config
	ownerRenounced bool
}

// NewEngine creates an engine over the given schedule. tok may be nil when
// the token ledger is wired later via SetToken; claims fail with
// ErrTokenNotSet until then. sink may be nil to discard events.
func NewEngine(dists []*Distribution, store Store, tok token.Ledger, sink Sink, logger *zap.Logger, cfg Config) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CliffMode == "" {
		cfg.CliffMode = CliffHard
	}
	return &Engine{
		dists:  dists,
		store:  store,
		token:  tok,
		sink:   sink,
		logger: logger,
		cfg:    cfg,
	}
}

// plannedClaim is one fully evaluated claim, ready to apply.
type plannedClaim struct {
	req    ClaimRequest
	round  int
	delta  *big.Int
	oldRec ClaimRecord
	newRec ClaimRecord
}

// evaluate runs the admission checks and vesting math for one request
// against the given current record. Pure: no state is touched.
func (e *Engine) evaluate(req ClaimRequest, rec ClaimRecord, now time.Time) (plannedClaim, error) {
	var p plannedClaim

	if req.Distribution < 0 || req.Distribution >= len(e.dists) {
		return p, fmt.Errorf("distribution %d: %w", req.Distribution, ErrOutOfRange)
	}
	d := e.dists[req.Distribution]

	if d.Paused {
		return p, fmt.Errorf("distribution %d: %w", req.Distribution, ErrPaused)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return p, fmt.Errorf("entitlement must be positive")
	}
	// A leaf encodes the entitlement in 32 bytes; anything wider cannot be
	// a committed pair, so reject it before the leaf hash would choke.
	if req.Amount.BitLen() > 256 {
		return p, fmt.Errorf("claimant %s, distribution %d: entitlement exceeds 32 bytes: %w",
			req.Claimant, req.Distribution, ErrInvalidProof)
	}

	// Membership is the sole admission check: the committed
	// (address, amount) pair is trusted exactly as proven.
	if d.MerkleRoot.IsZero() {
		return p, fmt.Errorf("distribution %d has no merkle root: %w", req.Distribution, ErrInvalidProof)
	}
	leaf := merkle.LeafHash(req.Claimant, req.Amount)
	if !merkle.Verify(req.Proof, d.MerkleRoot, leaf) {
		return p, fmt.Errorf("claimant %s, distribution %d: %w", req.Claimant, req.Distribution, ErrInvalidProof)
	}

	var (
		round      int
		releasable *big.Int
	)
	if now.Before(d.CliffDeadline) {
		if e.cfg.CliffMode == CliffHard {
			return p, fmt.Errorf("distribution %d unlocks at %s: %w",
				req.Distribution, d.CliffDeadline.Format(time.RFC3339), ErrCliffNotOver)
		}
		// Soft cliff: only the TGE tranche is live before the deadline,
		// even for single-round distributions.
		round = 1
		releasable = new(big.Int).Mul(req.Amount, big.NewInt(int64(d.TGEPercent)))
		releasable.Quo(releasable, hundred)
	} else {
		round = d.currentRound(now, e.cfg.RoundDuration)
		releasable = d.releasableAt(round, req.Amount)
	}

	delta := new(big.Int).Sub(releasable, rec.ClaimedSoFar)
	if delta.Sign() <= 0 {
		return p, fmt.Errorf("claimant %s, distribution %d, round %d: %w",
			req.Claimant, req.Distribution, round, ErrNothingToClaim)
	}

	newRec := ClaimRecord{
		ClaimedSoFar: releasable,
		FullyClaimed: releasable.Cmp(req.Amount) >= 0,
	}
	return plannedClaim{
		req:    req,
		round:  round,
		delta:  delta,
		oldRec: rec,
		newRec: newRec,
	}, nil
}

// Claim verifies membership, computes the tranche releasable now, records
// it, and pays the delta out through the token ledger. A rejected transfer
// rolls the record back and surfaces ErrTransferFailed.
func (e *Engine) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token == nil {
		return nil, ErrTokenNotSet
	}
	now := e.cfg.Now()

	rec, err := e.store.Record(ctx, req.Claimant, req.Distribution)
	if err != nil {
		return nil, fmt.Errorf("load claim record: %w", err)
	}

	p, err := e.evaluate(req, rec, now)
	if err != nil {
		return nil, err
	}

	// Bookkeeping first, external call second: a failed mint rolls the
	// record back, so a re-entering callee never observes a half-claim.
	if err := e.store.PutRecord(ctx, req.Claimant, req.Distribution, p.newRec); err != nil {
		return nil, fmt.Errorf("store claim record: %w", err)
	}
	if err := e.token.Mint(ctx, req.Claimant, p.delta); err != nil {
		e.logger.Warn("mint rejected, rolling claim back",
			zap.String("claimant", req.Claimant.String()),
			zap.Int("distribution", req.Distribution),
			zap.String("amount", p.delta.String()),
			zap.Error(err),
		)
		if rbErr := e.store.PutRecord(ctx, req.Claimant, req.Distribution, p.oldRec); rbErr != nil {
			e.logger.Error("claim record rollback failed", zap.Error(rbErr))
		}
		return nil, fmt.Errorf("mint %s to %s: %w", p.delta, req.Claimant, ErrTransferFailed)
	}

	result := e.commit(p, now)
	return result, nil
}

// commit emits the event and log line for an applied claim and builds its
// result. Callers hold the engine lock and have already persisted state.
func (e *Engine) commit(p plannedClaim, now time.Time) *ClaimResult {
	e.sink.Claimed(ClaimedEvent{
		Claimant:     p.req.Claimant,
		Amount:       new(big.Int).Set(p.delta),
		Distribution: p.req.Distribution,
		Round:        p.round,
		FullyClaimed: p.newRec.FullyClaimed,
		At:           now,
	})
	e.logger.Info("claim released",
		zap.String("claimant", p.req.Claimant.String()),
		zap.Int("distribution", p.req.Distribution),
		zap.Int("round", p.round),
		zap.String("released", p.delta.String()),
		zap.Bool("fully_claimed", p.newRec.FullyClaimed),
	)
	return &ClaimResult{
		Claimant:     p.req.Claimant,
		Distribution: p.req.Distribution,
		Round:        p.round,
		Released:     new(big.Int).Set(p.delta),
		ClaimedSoFar: new(big.Int).Set(p.newRec.ClaimedSoFar),
		FullyClaimed: p.newRec.FullyClaimed,
	}
}

// BatchClaim applies the requests all-or-nothing: every entry is validated
// and its delta computed against staged records before any record write or
// transfer, so a single bad entry aborts the batch with no observable side
// effect. A transfer failure during apply rolls back every record write
// and burns back any already-applied mints.
func (e *Engine) BatchClaim(ctx context.Context, reqs []ClaimRequest) ([]*ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token == nil {
		return nil, ErrTokenNotSet
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	now := e.cfg.Now()
	batchID := uuid.New()

	// Phase 1: evaluate everything against a staged view, so repeated
	// (claimant, distribution) entries within one batch chain correctly.
	staged := make(map[recordKey]ClaimRecord)
	originals := make(map[recordKey]ClaimRecord)
	plans := make([]plannedClaim, 0, len(reqs))

	for i, req := range reqs {
		key := recordKey{req.Claimant, req.Distribution}
		rec, ok := staged[key]
		if !ok {
			loaded, err := e.store.Record(ctx, req.Claimant, req.Distribution)
			if err != nil {
				return nil, fmt.Errorf("batch entry %d: load claim record: %w", i, err)
			}
			rec = loaded
			originals[key] = loaded
		}

		p, err := e.evaluate(req, rec, now)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		staged[key] = p.newRec
		plans = append(plans, p)
	}

	// Phase 2: persist records.
	written := make([]recordKey, 0, len(plans))
	revert := func() {
		for _, key := range written {
			if err := e.store.PutRecord(ctx, key.claimant, key.distIdx, originals[key]); err != nil {
				e.logger.Error("batch rollback: record restore failed",
					zap.String("batch_id", batchID.String()),
					zap.String("claimant", key.claimant.String()),
					zap.Int("distribution", key.distIdx),
					zap.Error(err),
				)
			}
		}
	}

	for i, p := range plans {
		key := recordKey{p.req.Claimant, p.req.Distribution}
		if err := e.store.PutRecord(ctx, key.claimant, key.distIdx, p.newRec); err != nil {
			revert()
			return nil, fmt.Errorf("batch entry %d: store claim record: %w", i, err)
		}
		written = append(written, key)
	}

	// Phase 3: transfers. A rejection reverts the records and compensates
	// the mints already applied in this batch.
	for i, p := range plans {
		if err := e.token.Mint(ctx, p.req.Claimant, p.delta); err != nil {
			e.logger.Warn("batch mint rejected, rolling batch back",
				zap.String("batch_id", batchID.String()),
				zap.Int("entry", i),
				zap.Error(err),
			)
			revert()
			e.compensateMints(ctx, plans[:i])
			return nil, fmt.Errorf("batch entry %d: mint %s to %s: %w",
				i, p.delta, p.req.Claimant, ErrTransferFailed)
		}
	}

	results := make([]*ClaimResult, 0, len(plans))
	for _, p := range plans {
		results = append(results, e.commit(p, now))
	}
	e.logger.Info("batch claim applied",
		zap.String("batch_id", batchID.String()),
		zap.Int("entries", len(results)),
	)
	return results, nil
}

// compensateMints reverses the payouts of already-applied batch entries
// after a later entry failed. Requires the ledger to support burning;
// without it the inconsistency is logged as an error and left to the
// drift auditor.
func (e *Engine) compensateMints(ctx context.Context, applied []plannedClaim) {
	burner, ok := e.token.(token.Burner)
	if !ok {
		if len(applied) > 0 {
			e.logger.Error("token ledger cannot burn; batch compensation skipped",
				zap.Int("entries", len(applied)))
		}
		return
	}
	for _, p := range applied {
		if err := burner.Burn(ctx, p.req.Claimant, p.delta); err != nil {
			e.logger.Error("batch compensation burn failed",
				zap.String("claimant", p.req.Claimant.String()),
				zap.String("amount", p.delta.String()),
				zap.Error(err),
			)
		}
	}
}

// requireOwner gates admin operations once ownership has been renounced.
func (e *Engine) requireOwner() error {
	if e.ownerRenounced {
		return ErrNotOwner
	}
	return nil
}

// Pause gates all claims against the distribution. Pausing an already
// paused distribution is a no-op.
func (e *Engine) Pause(idx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(); err != nil {
		return err
	}
	if idx < 0 || idx >= len(e.dists) {
		return fmt.Errorf("distribution %d: %w", idx, ErrOutOfRange)
	}
	d := e.dists[idx]
	if d.Paused {
		return nil
	}
	d.Paused = true
	e.sink.DistributionPaused(PauseEvent{Distribution: idx, At: e.cfg.Now()})
	e.logger.Info("distribution paused", zap.Int("distribution", idx))
	return nil
}

// Unpause lifts the claim gate. Computed state is untouched: claims resume
// exactly where the records left off. Unpausing an active distribution is
// a no-op.
func (e *Engine) Unpause(idx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(); err != nil {
		return err
	}
	if idx < 0 || idx >= len(e.dists) {
		return fmt.Errorf("distribution %d: %w", idx, ErrOutOfRange)
	}
	d := e.dists[idx]
	if !d.Paused {
		return nil
	}
	d.Paused = false
	e.sink.DistributionUnpaused(PauseEvent{Distribution: idx, At: e.cfg.Now()})
	e.logger.Info("distribution unpaused", zap.Int("distribution", idx))
	return nil
}

// SetMerkleRoot assigns the allow-list commitment of a distribution that
// was created without one. The root is immutable once set.
func (e *Engine) SetMerkleRoot(idx int, root merkle.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(); err != nil {
		return err
	}
	if idx < 0 || idx >= len(e.dists) {
		return fmt.Errorf("distribution %d: %w", idx, ErrOutOfRange)
	}
	if root.IsZero() {
		return fmt.Errorf("refusing to set zero merkle root")
	}
	d := e.dists[idx]
	if !d.MerkleRoot.IsZero() {
		return fmt.Errorf("distribution %d: %w", idx, ErrRootAlreadySet)
	}

	old := d.MerkleRoot
	d.MerkleRoot = root
	e.sink.MerkleRootUpdated(RootEvent{Distribution: idx, Old: old, New: root, At: e.cfg.Now()})
	e.logger.Info("merkle root set",
		zap.Int("distribution", idx),
		zap.String("root", root.String()),
	)
	return nil
}

// SetToken wires the token ledger, once. With RenounceOwnerOnSetToken the
// admin capability is cleared in the same step and every later admin call
// fails with ErrNotOwner.
func (e *Engine) SetToken(tok token.Ledger) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(); err != nil {
		return err
	}
	if e.token != nil {
		return ErrTokenAlreadySet
	}
	e.token = tok

	if e.cfg.RenounceOwnerOnSetToken {
		e.ownerRenounced = true
		e.logger.Info("token ledger wired; owner role renounced")
	} else {
		e.logger.Info("token ledger wired")
	}
	return nil
}

// OwnerRenounced reports whether the admin capability has been cleared.
func (e *Engine) OwnerRenounced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerRenounced
}

// Distributions returns a snapshot of the schedule.
func (e *Engine) Distributions() []Distribution {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Distribution, len(e.dists))
	for i, d := range e.dists {
		out[i] = *d
	}
	return out
}

// Distribution returns a snapshot of one campaign.
func (e *Engine) Distribution(idx int) (Distribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx < 0 || idx >= len(e.dists) {
		return Distribution{}, fmt.Errorf("distribution %d: %w", idx, ErrOutOfRange)
	}
	return *e.dists[idx], nil
}

// Record returns the claim record for a (beneficiary, distribution) pair.
func (e *Engine) Record(ctx context.Context, claimant addr.Address, idx int) (ClaimRecord, error) {
	if idx < 0 || idx >= len(e.dists) {
		return ClaimRecord{}, fmt.Errorf("distribution %d: %w", idx, ErrOutOfRange)
	}
	return e.store.Record(ctx, claimant, idx)
}
