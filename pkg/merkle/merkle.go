// Package merkle builds a fixed-shape, domain-separated Merkle tree over
// a contiguous range of chain record hashes, and generates/verifies
// inclusion proofs against it.
//
// Two leaf-duplication rules exist side by side — batch and incremental —
// because their single-leaf roots differ. Every checkpoint records which
// one produced its root via a TreeShape tag; verifiers must use the
// matching builder.
package merkle

import (
	"crypto/sha256"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// TreeShape identifies which leaf-duplication rule produced a root.
type TreeShape string

const (
	ShapeBatch       TreeShape = "batch"
	ShapeIncremental TreeShape = "incremental"
)

const (
	leafPrefix     = 0x00
	internalPrefix = 0x01
)

// EmptyRoot is the well-defined root of a zero-leaf tree: SHA-256(0x00).
var EmptyRoot = sha256.Sum256([]byte{0x00})

// LeafHash computes the domain-separated leaf hash of x:
// SHA-256(0x00 || x).
func LeafHash(x []byte) Hash {
	buf := make([]byte, 0, 1+len(x))
	buf = append(buf, leafPrefix)
	buf = append(buf, x...)
	return sha256.Sum256(buf)
}

// InternalHash computes the domain-separated internal node hash of the
// left/right child pair: SHA-256(0x01 || a || b).
func InternalHash(a, b Hash) Hash {
	buf := make([]byte, 0, 1+len(a)+len(b))
	buf = append(buf, internalPrefix)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return sha256.Sum256(buf)
}

// Tree holds the levels of a built Merkle tree, leaves at level 0.
type Tree struct {
	Shape  TreeShape
	Levels [][]Hash // Levels[0] = leaf hashes (post-padding), Levels[last] = [root]
}

// Root returns the tree's root hash.
func (t *Tree) Root() Hash {
	if len(t.Levels) == 0 {
		return EmptyRoot
	}
	top := t.Levels[len(t.Levels)-1]
	return top[0]
}

// BuildBatch constructs a tree from raw leaf payloads (e.g. chain record
// hash bytes) using the batch builder's rule: for n==0, EmptyRoot; for
// n==1, the root IS the leaf hash (no padding/wrapper); otherwise pad to
// the next power of two by duplicating the last leaf.
func BuildBatch(leaves [][]byte) *Tree {
	hashes := make([]Hash, len(leaves))
	for i, l := range leaves {
		hashes[i] = LeafHash(l)
	}
	return buildFromLeafHashes(hashes, ShapeBatch)
}

func buildFromLeafHashes(hashes []Hash, shape TreeShape) *Tree {
	if len(hashes) == 0 {
		return &Tree{Shape: shape, Levels: nil}
	}
	if len(hashes) == 1 {
		return &Tree{Shape: shape, Levels: [][]Hash{{hashes[0]}}}
	}

	level := padToPowerOfTwo(hashes)
	levels := [][]Hash{level}
	for len(level) > 1 {
		level = nextLevel(level)
		levels = append(levels, level)
	}
	return &Tree{Shape: shape, Levels: levels}
}

func padToPowerOfTwo(hashes []Hash) []Hash {
	out := make([]Hash, len(hashes))
	copy(out, hashes)
	for !isPowerOfTwo(len(out)) {
		out = append(out, out[len(out)-1])
	}
	return out
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func nextLevel(level []Hash) []Hash {
	n := len(level)
	if n%2 != 0 {
		level = append(level, level[n-1])
		n++
	}
	out := make([]Hash, n/2)
	for i := 0; i < n; i += 2 {
		out[i/2] = InternalHash(level[i], level[i+1])
	}
	return out
}

// Proof is the inclusion proof for one leaf: sufficient siblings, listed
// bottom-up, to reconstruct the root.
type Proof struct {
	LeafIndex int
	LeafHash  Hash
	Siblings  []Sibling
	Root      Hash
	Shape     TreeShape
}

// Side identifies which side of the current hash a sibling sits on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Sibling is one step of a bottom-up inclusion proof.
type Sibling struct {
	Hash Hash
	Side Side
}

// ProofFor builds the inclusion proof for the leaf at index i in t.
func ProofFor(t *Tree, index int) (*Proof, error) {
	if len(t.Levels) == 0 {
		return nil, auditerr.New("merkle.ProofFor", auditerr.KindEmptyTree, errEmptyTree)
	}
	leafLevel := t.Levels[0]
	if index < 0 || index >= len(leafLevel) {
		return nil, auditerr.New("merkle.ProofFor", auditerr.KindLeafIndexRange, errLeafIndexRange)
	}

	proof := &Proof{
		LeafIndex: index,
		LeafHash:  leafLevel[index],
		Root:      t.Root(),
		Shape:     t.Shape,
	}

	if len(t.Levels) == 1 {
		// Single-leaf tree: zero siblings, verifier accepts iff leaf==root.
		return proof, nil
	}

	idx := index
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		var sib Sibling
		if idx%2 == 0 {
			sib = Sibling{Hash: nodes[idx+1], Side: SideRight}
		} else {
			sib = Sibling{Hash: nodes[idx-1], Side: SideLeft}
		}
		proof.Siblings = append(proof.Siblings, sib)
		idx /= 2
	}
	return proof, nil
}

// Verify walks proof bottom-up and reports whether the reconstructed
// root equals expectedRoot, using constant-time comparison.
func Verify(proof *Proof, expectedRoot Hash) bool {
	current := proof.LeafHash
	if len(proof.Siblings) == 0 {
		return constantTimeEqual(current, proof.Root) && constantTimeEqual(current, expectedRoot)
	}
	for _, sib := range proof.Siblings {
		switch sib.Side {
		case SideLeft:
			current = InternalHash(sib.Hash, current)
		case SideRight:
			current = InternalHash(current, sib.Hash)
		default:
			return false
		}
	}
	return constantTimeEqual(current, proof.Root) && constantTimeEqual(current, expectedRoot)
}

func constantTimeEqual(a, b Hash) bool {
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
