// Package addr provides the 20-byte hex-encoded beneficiary address type
// used throughout merkledrop.
//
// Address format: 0x-prefixed, 40 hex characters (EVM-style):
//
//	0x1f9090aae28b8a3dceadf281b0f12828e676c326
//
// Parsing is case-insensitive; String always renders lowercase with the
// 0x prefix. The raw 20-byte form is what gets packed into Merkle leaves,
// so the width here is part of the commitment scheme and must not change.
package addr

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the byte length of an Address.
const Size = 20

// Address is a fixed-width 20-byte beneficiary identifier.
type Address [Size]byte

// Zero is the all-zero address. It is never a valid beneficiary.
var Zero Address

// Parse parses a 0x-prefixed 40-character hex string into an Address.
func Parse(s string) (Address, error) {
	var a Address

	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != Size*2 {
		return a, fmt.Errorf("address %q: expected %d hex characters, got %d", s, Size*2, len(trimmed))
	}

	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}

	copy(a[:], raw)
	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level declarations with known-good literals.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the address as 0x-prefixed lowercase hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the all-zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// Bytes returns the raw 20-byte form.
func (a Address) Bytes() []byte {
	return a[:]
}

// MarshalText implements encoding.TextMarshaler, so Address round-trips
// through JSON as its 0x-prefixed hex string.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
