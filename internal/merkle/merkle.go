// Package merkle implements the allow-list commitment scheme: Keccak-256
// Merkle trees with commutative pair hashing, plus inclusion-proof
// verification.
//
// The pair hash orders its two inputs as unsigned big-endian integers and
// hashes H(min ‖ max). Because the order is recomputed at every level, a
// proof carries only the sibling hashes and no position bits — half the
// size of a position-tagged scheme. Verifiers MUST apply the identical
// compare-then-concatenate rule or every valid proof is rejected.
//
// A leaf commits to one (beneficiary, entitlement) pair:
//
//	leaf = keccak256(address[20] ‖ amount[32, big-endian])
//
// This packed encoding is pinned here once; it is part of the commitment,
// not a per-call choice.
package merkle

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"golang.org/x/crypto/sha3"
)

// HashSize is the byte length of a tree node.
const HashSize = 32

// Hash is a 32-byte Keccak-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash. A distribution whose root is ZeroHash is
// considered unset and accepts a one-time root assignment.
var ZeroHash Hash

// ParseHash parses a 0x-prefixed or bare 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash

	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != HashSize*2 {
		return h, fmt.Errorf("hash %q: expected %d hex characters, got %d", s, HashSize*2, len(trimmed))
	}

	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return h, fmt.Errorf("hash %q: %w", s, err)
	}

	copy(h[:], raw)
	return h, nil
}

// MustParseHash is like ParseHash but panics on error.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// String renders the hash as 0x-prefixed lowercase hex.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// keccak256 computes the legacy (pre-NIST-padding) Keccak-256 digest of
// the concatenation of its inputs.
func keccak256(parts ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p) //nolint:errcheck // hash.Hash.Write never fails
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// less compares two hashes as unsigned big-endian integers.
func less(a, b Hash) bool {
	for i := 0; i < HashSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// hashPair combines two nodes with the commutative ordering rule:
// the numerically smaller hash is fed to Keccak first.
func hashPair(a, b Hash) Hash {
	if less(b, a) {
		a, b = b, a
	}
	return keccak256(a[:], b[:])
}

// LeafHash computes the commitment leaf for one allow-list entry.
// amount must be a non-negative integer below 2^256.
func LeafHash(beneficiary addr.Address, amount *big.Int) Hash {
	var buf [HashSize]byte
	amount.FillBytes(buf[:])
	return keccak256(beneficiary[:], buf[:])
}

// Verify folds proof over leaf with the commutative pair hash and reports
// whether the result equals root. It is pure and never returns an error:
// any mismatch — wrong root, corrupted sibling, flipped leaf bit — simply
// yields false.
func Verify(proof []Hash, root, leaf Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}
