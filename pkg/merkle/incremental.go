package merkle

// IncrementalTree supports amortized O(log n) leaf addition. Its
// single-leaf root uses InternalHash(x, x) rather than the batch
// builder's bare leaf hash, to keep a consistent two-child shape at
// depth 1 — this makes IncrementalTree's root for n==1 deliberately
// different from BuildBatch's.
type IncrementalTree struct {
	leaves []Hash
}

// NewIncrementalTree creates an empty incremental tree.
func NewIncrementalTree() *IncrementalTree {
	return &IncrementalTree{}
}

// AddLeaf appends a new leaf payload and returns its leaf hash.
func (t *IncrementalTree) AddLeaf(x []byte) Hash {
	h := LeafHash(x)
	t.leaves = append(t.leaves, h)
	return h
}

// Len reports the number of leaves added so far.
func (t *IncrementalTree) Len() int { return len(t.leaves) }

// Snapshot freezes the current leaf set into a Tree using the
// incremental shape rule (single leaf -> InternalHash(x,x)).
func (t *IncrementalTree) Snapshot() *Tree {
	if len(t.leaves) == 0 {
		return &Tree{Shape: ShapeIncremental, Levels: nil}
	}
	if len(t.leaves) == 1 {
		// Duplicate the sole leaf so level 0 keeps the same two-child
		// shape every other level has; ProofFor then needs no special
		// case and naturally emits one right-side sibling equal to the
		// leaf itself.
		level := []Hash{t.leaves[0], t.leaves[0]}
		root := InternalHash(level[0], level[1])
		return &Tree{Shape: ShapeIncremental, Levels: [][]Hash{level, {root}}}
	}

	level := padToPowerOfTwo(t.leaves)
	levels := [][]Hash{level}
	for len(level) > 1 {
		level = nextLevel(level)
		levels = append(levels, level)
	}
	return &Tree{Shape: ShapeIncremental, Levels: levels}
}

// Root returns the current incremental root.
func (t *IncrementalTree) Root() Hash {
	return t.Snapshot().Root()
}
