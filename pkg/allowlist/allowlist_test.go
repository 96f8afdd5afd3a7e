package allowlist_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"github.com/merkledrop-io/merkledrop/pkg/allowlist"
)

const sampleCSV = `address,amount
0x1111111111111111111111111111111111111111,1000000
0x2222222222222222222222222222222222222222,250000
0x3333333333333333333333333333333333333333,7
`

func TestLoadAndProve(t *testing.T) {
	l, err := allowlist.Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}

	for _, e := range l.Entries() {
		proof, amount, err := l.Proof(e.Address)
		if err != nil {
			t.Fatalf("proof for %s: %v", e.Address, err)
		}
		if amount.Cmp(e.Amount) != 0 {
			t.Errorf("proof amount %s, want %s", amount, e.Amount)
		}
		leaf := merkle.LeafHash(e.Address, amount)
		if !merkle.Verify(proof, l.Root(), leaf) {
			t.Errorf("proof for %s does not verify against the root", e.Address)
		}
	}
}

func TestParseCSV_noHeader(t *testing.T) {
	entries, err := allowlist.ParseCSV(strings.NewReader(
		"0x1111111111111111111111111111111111111111,42\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected entries %v", entries)
	}
}

func TestParseCSV_rejectsDuplicates(t *testing.T) {
	_, err := allowlist.ParseCSV(strings.NewReader(
		"0x1111111111111111111111111111111111111111,1\n" +
			"0x1111111111111111111111111111111111111111,2\n"))
	if err == nil || !strings.Contains(err.Error(), "already listed") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestParseCSV_rejectsBadAmount(t *testing.T) {
	// 2^256 overflows the 32-byte leaf encoding.
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256).String()
	for _, amount := range []string{"0", "-5", "1.5", "abc", "", tooWide} {
		_, err := allowlist.ParseCSV(strings.NewReader(
			"0x1111111111111111111111111111111111111111," + amount + "\n"))
		if err == nil {
			t.Errorf("amount %q: expected error", amount)
		}
	}
}

func TestParseCSV_rejectsEmpty(t *testing.T) {
	if _, err := allowlist.ParseCSV(strings.NewReader("address,amount\n")); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestProof_unknownAddress(t *testing.T) {
	l, err := allowlist.Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	stranger := addr.MustParse("0x9999999999999999999999999999999999999999")
	if _, _, err := l.Proof(stranger); err == nil {
		t.Fatal("expected error for address off the list")
	}
}
