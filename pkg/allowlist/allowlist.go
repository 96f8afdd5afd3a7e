// Package allowlist parses beneficiary allow-lists and builds the Merkle
// commitment a distribution is anchored to.
//
// The interchange format is CSV, one "address,amount" row per beneficiary:
//
//	0x1111111111111111111111111111111111111111,1000000
//	0x2222222222222222222222222222222222222222,250000
//
// Amounts are decimal integers in the token's base unit. Leaf order is the
// row order of the file, and proofs are positional, so the operator must
// distribute proofs generated from the exact same file that produced the
// published root.
package allowlist

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
)

// Entry is one beneficiary row: an address and its total entitlement.
type Entry struct {
	Address addr.Address `json:"address"`
	Amount  *big.Int     `json:"amount"`
}

// Allowlist is a parsed beneficiary list together with its Merkle tree.
type Allowlist struct {
	entries []Entry
	tree    *merkle.Tree
	index   map[addr.Address]int
}

// ParseCSV reads "address,amount" rows. A header row starting with
// "address" is skipped. Duplicate addresses are rejected: one row per
// beneficiary per distribution.
func ParseCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var entries []Entry
	seen := make(map[addr.Address]int)

	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "address") {
			continue
		}

		a, err := addr.Parse(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, dup := seen[a]; dup {
			return nil, fmt.Errorf("line %d: address %s already listed on line %d", line, a, prev)
		}

		amount, ok := new(big.Int).SetString(strings.TrimSpace(record[1]), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("line %d: amount %q is not a positive decimal integer", line, record[1])
		}
		if amount.BitLen() > 256 {
			return nil, fmt.Errorf("line %d: amount %q does not fit the 32-byte leaf encoding", line, record[1])
		}

		seen[a] = line
		entries = append(entries, Entry{Address: a, Amount: amount})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("allow-list is empty")
	}
	return entries, nil
}

// New builds the Merkle commitment over the given entries.
func New(entries []Entry) (*Allowlist, error) {
	leaves := make([]merkle.Hash, len(entries))
	index := make(map[addr.Address]int, len(entries))
	for i, e := range entries {
		leaves[i] = merkle.LeafHash(e.Address, e.Amount)
		index[e.Address] = i
	}

	tree, err := merkle.NewTree(leaves)
	if err != nil {
		return nil, err
	}
	return &Allowlist{entries: entries, tree: tree, index: index}, nil
}

// Load parses CSV input and builds its commitment in one step.
func Load(r io.Reader) (*Allowlist, error) {
	entries, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return New(entries)
}

// Root returns the Merkle root to publish for the distribution.
func (l *Allowlist) Root() merkle.Hash {
	return l.tree.Root()
}

// Len returns the number of beneficiaries.
func (l *Allowlist) Len() int {
	return len(l.entries)
}

// Entries returns the parsed rows in leaf order.
func (l *Allowlist) Entries() []Entry {
	return l.entries
}

// Proof returns the inclusion proof and committed entitlement for one
// beneficiary.
func (l *Allowlist) Proof(beneficiary addr.Address) ([]merkle.Hash, *big.Int, error) {
	i, ok := l.index[beneficiary]
	if !ok {
		return nil, nil, fmt.Errorf("address %s is not on the allow-list", beneficiary)
	}
	proof, err := l.tree.Proof(i)
	if err != nil {
		return nil, nil, err
	}
	return proof, new(big.Int).Set(l.entries[i].Amount), nil
}
