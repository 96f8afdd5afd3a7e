package token_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

var (
	ctx   = context.Background()
	alice = addr.MustParse("0x00000000000000000000000000000000000000a1")
	bob   = addr.MustParse("0x00000000000000000000000000000000000000b2")
)

func TestMint_creditsBalance(t *testing.T) {
	l := token.NewMemoryLedger(nil)

	if err := l.Mint(ctx, alice, big.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	if err := l.Mint(ctx, alice, big.NewInt(250)); err != nil {
		t.Fatal(err)
	}

	bal, err := l.BalanceOf(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(big.NewInt(750)) != 0 {
		t.Errorf("balance: got %s, want 750", bal)
	}

	minted, _ := l.TotalMinted(ctx)
	if minted.Cmp(big.NewInt(750)) != 0 {
		t.Errorf("minted: got %s, want 750", minted)
	}
}

func TestMint_supplyCap(t *testing.T) {
	l := token.NewMemoryLedger(big.NewInt(1000))

	if err := l.Mint(ctx, alice, big.NewInt(900)); err != nil {
		t.Fatal(err)
	}

	err := l.Mint(ctx, bob, big.NewInt(200))
	if !errors.Is(err, token.ErrSupplyCapExceeded) {
		t.Fatalf("expected ErrSupplyCapExceeded, got %v", err)
	}

	// The failed mint must not move any state.
	bal, _ := l.BalanceOf(ctx, bob)
	if bal.Sign() != 0 {
		t.Errorf("bob balance after rejected mint: got %s, want 0", bal)
	}
	minted, _ := l.TotalMinted(ctx)
	if minted.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("minted after rejected mint: got %s, want 900", minted)
	}

	// Exactly reaching the cap is allowed.
	if err := l.Mint(ctx, bob, big.NewInt(100)); err != nil {
		t.Fatalf("mint up to cap: %v", err)
	}
}

func TestMint_rejectsNonPositive(t *testing.T) {
	l := token.NewMemoryLedger(nil)
	if err := l.Mint(ctx, alice, big.NewInt(0)); err == nil {
		t.Error("zero mint accepted")
	}
	if err := l.Mint(ctx, alice, big.NewInt(-5)); err == nil {
		t.Error("negative mint accepted")
	}
}

func TestBurn_reversesMint(t *testing.T) {
	l := token.NewMemoryLedger(nil)
	_ = l.Mint(ctx, alice, big.NewInt(300))

	if err := l.Burn(ctx, alice, big.NewInt(300)); err != nil {
		t.Fatal(err)
	}

	bal, _ := l.BalanceOf(ctx, alice)
	if bal.Sign() != 0 {
		t.Errorf("balance after burn: got %s, want 0", bal)
	}
	minted, _ := l.TotalMinted(ctx)
	if minted.Sign() != 0 {
		t.Errorf("minted after burn: got %s, want 0", minted)
	}

	if err := l.Burn(ctx, alice, big.NewInt(1)); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}
