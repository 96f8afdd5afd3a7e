package merkle

import (
	"errors"
	"fmt"
)

// ErrEmptyTree is returned when constructing a tree with no leaves.
var ErrEmptyTree = errors.New("merkle tree requires at least one leaf")

// Tree is an in-memory Merkle tree over a fixed leaf set. It exists to
// produce roots and proofs for an allow-list; verification needs only
// the free Verify function.
type Tree struct {
	// levels[0] is the leaf level; levels[len-1] holds the single root.
	levels [][]Hash
}

// NewTree builds a tree over the given leaves, in order. When a level has
// an odd node count the last node is paired with itself, which keeps the
// commutative proof shape consistent for any leaf count.
func NewTree(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	t := &Tree{levels: [][]Hash{level}}
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the leaf at index i, ordered from
// the leaf level upward. A single-leaf tree yields an empty proof.
func (t *Tree) Proof(i int) ([]Hash, error) {
	if i < 0 || i >= t.Len() {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", i, t.Len())
	}

	var proof []Hash
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			// Odd tail: the node was paired with itself.
			sibling = idx
		}
		proof = append(proof, level[sibling])
		idx /= 2
	}
	return proof, nil
}
