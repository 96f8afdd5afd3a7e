package audit

import (
	"context"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	totals map[int]*big.Int
}

func (f *fakeStore) TotalClaimed(_ context.Context, distIdx int) (*big.Int, error) {
	if t, ok := f.totals[distIdx]; ok {
		return new(big.Int).Set(t), nil
	}
	return new(big.Int), nil
}

type fakeLedger struct {
	minted *big.Int
}

func (f *fakeLedger) TotalMinted(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.minted), nil
}

func TestSweepConsistent(t *testing.T) {
	store := &fakeStore{totals: map[int]*big.Int{
		0: big.NewInt(400),
		1: big.NewInt(600),
	}}
	ledger := &fakeLedger{minted: big.NewInt(1000)}

	a := New(store, ledger, 2, Config{SweepInterval: time.Minute, FailThreshold: 1}, zap.NewNop())

	var alerts int
	a.SetWebhookDispatch(func(_ context.Context, _ string, _ map[string]string) { alerts++ })

	if !a.Sweep(context.Background()) {
		t.Fatal("expected consistent sweep")
	}
	if alerts != 0 {
		t.Fatalf("expected no alerts, got %d", alerts)
	}
}

func TestSweepDriftAlertsAtThreshold(t *testing.T) {
	store := &fakeStore{totals: map[int]*big.Int{0: big.NewInt(500)}}
	ledger := &fakeLedger{minted: big.NewInt(800)}

	a := New(store, ledger, 1, Config{SweepInterval: time.Minute, FailThreshold: 2}, zap.NewNop())

	var alerts int
	var gotPayload map[string]string
	a.SetWebhookDispatch(func(_ context.Context, eventType string, payload map[string]string) {
		if eventType != "audit.drift_detected" {
			t.Errorf("unexpected event type %q", eventType)
		}
		gotPayload = payload
		alerts++
	})

	var results []bool
	a.SetMetricsRecord(func(consistent bool) { results = append(results, consistent) })

	ctx := context.Background()

	// First divergent sweep: below threshold, no alert yet.
	if a.Sweep(ctx) {
		t.Fatal("expected divergent sweep")
	}
	if alerts != 0 {
		t.Fatalf("alert fired below threshold")
	}

	// Second divergent sweep hits the threshold.
	a.Sweep(ctx)
	if alerts != 1 {
		t.Fatalf("expected 1 alert, got %d", alerts)
	}
	if gotPayload["claimed_total"] != "500" || gotPayload["minted_total"] != "800" {
		t.Fatalf("unexpected payload %v", gotPayload)
	}

	// Further divergent sweeps do not re-alert.
	a.Sweep(ctx)
	if alerts != 1 {
		t.Fatalf("expected alert to fire once, got %d", alerts)
	}

	for _, r := range results {
		if r {
			t.Fatal("metrics recorded a consistent sweep during drift")
		}
	}
}

func TestSweepRecoveryResetsCounter(t *testing.T) {
	store := &fakeStore{totals: map[int]*big.Int{0: big.NewInt(500)}}
	ledger := &fakeLedger{minted: big.NewInt(800)}

	a := New(store, ledger, 1, Config{SweepInterval: time.Minute, FailThreshold: 2}, zap.NewNop())

	var alerts int
	a.SetWebhookDispatch(func(_ context.Context, _ string, _ map[string]string) { alerts++ })

	ctx := context.Background()
	a.Sweep(ctx)

	// Books reconcile before the threshold is reached.
	ledger.minted = big.NewInt(500)
	if !a.Sweep(ctx) {
		t.Fatal("expected consistent sweep after recovery")
	}

	// A single fresh divergence must not alert.
	ledger.minted = big.NewInt(900)
	a.Sweep(ctx)
	if alerts != 0 {
		t.Fatalf("expected no alerts, got %d", alerts)
	}
}
