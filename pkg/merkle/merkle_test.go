package merkle

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

func TestBuildBatch_EmptyLeafSet(t *testing.T) {
	tr := BuildBatch(nil)
	assert.Equal(t, EmptyRoot, tr.Root())
}

func TestBuildBatch_SingleLeaf_IsBareLeafHash(t *testing.T) {
	tr := BuildBatch([][]byte{[]byte("only")})
	assert.Equal(t, LeafHash([]byte("only")), tr.Root())
}

func TestIncrementalTree_SingleLeaf_DiffersFromBatch(t *testing.T) {
	batch := BuildBatch([][]byte{[]byte("only")})

	inc := NewIncrementalTree()
	inc.AddLeaf([]byte("only"))

	assert.NotEqual(t, batch.Root(), inc.Root(),
		"incremental single-leaf root must use InternalHash(x,x), not the bare leaf hash")
	assert.Equal(t, InternalHash(LeafHash([]byte("only")), LeafHash([]byte("only"))), inc.Root())
}

func TestIncrementalTree_SingleLeaf_ProofVerifies(t *testing.T) {
	inc := NewIncrementalTree()
	inc.AddLeaf([]byte("only"))
	tree := inc.Snapshot()

	proof, err := ProofFor(tree, 0)
	require.NoError(t, err)
	require.Len(t, proof.Siblings, 1)
	assert.Equal(t, SideRight, proof.Siblings[0].Side)
	assert.Equal(t, LeafHash([]byte("only")), proof.Siblings[0].Hash)
	assert.True(t, Verify(proof, tree.Root()))
}

func TestBuildBatch_OddLeafCount_DuplicatesLast(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tr := BuildBatch(leaves)

	padded := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("c")}
	want := BuildBatch(padded)

	// Both trees pad to 4 leaves; compare roots, not shape labels.
	assert.Equal(t, want.Root(), tr.Root())
}

func TestBuildBatch_PowerOfTwo_NoDuplication(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tr := BuildBatch(leaves)
	require.Len(t, tr.Levels[0], 4)
}

func TestProofFor_RoundTrip(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	tr := BuildBatch(leaves)

	for i := range leaves {
		proof, err := ProofFor(tr, i)
		require.NoError(t, err)
		assert.True(t, Verify(proof, tr.Root()), "leaf %d must verify against the tree root", i)
	}
}

func TestProofFor_EmptyTree(t *testing.T) {
	tr := BuildBatch(nil)
	_, err := ProofFor(tr, 0)
	require.Error(t, err)
	assert.Equal(t, auditerr.KindEmptyTree, auditerr.KindOf(err))
}

func TestProofFor_IndexOutOfRange(t *testing.T) {
	tr := BuildBatch([][]byte{[]byte("a"), []byte("b")})
	_, err := ProofFor(tr, 5)
	require.Error(t, err)
	assert.Equal(t, auditerr.KindLeafIndexRange, auditerr.KindOf(err))

	_, err = ProofFor(tr, -1)
	require.Error(t, err)
	assert.Equal(t, auditerr.KindLeafIndexRange, auditerr.KindOf(err))
}

func TestProofFor_SingleLeafTree(t *testing.T) {
	tr := BuildBatch([][]byte{[]byte("solo")})
	proof, err := ProofFor(tr, 0)
	require.NoError(t, err)
	assert.Empty(t, proof.Siblings)
	assert.True(t, Verify(proof, tr.Root()))
}

func TestVerify_DetectsTamperedLeaf(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tr := BuildBatch(leaves)
	proof, err := ProofFor(tr, 1)
	require.NoError(t, err)

	proof.LeafHash = LeafHash([]byte("tampered"))
	assert.False(t, Verify(proof, tr.Root()))
}

func TestVerify_DetectsTamperedSibling(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tr := BuildBatch(leaves)
	proof, err := ProofFor(tr, 1)
	require.NoError(t, err)
	require.NotEmpty(t, proof.Siblings)

	proof.Siblings[0].Hash = LeafHash([]byte("tampered"))
	assert.False(t, Verify(proof, tr.Root()))
}

func TestIncrementalTree_Snapshot_MatchesBatchShapeForMultipleLeaves(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}

	inc := NewIncrementalTree()
	for _, l := range leaves {
		inc.AddLeaf(l)
	}

	batch := BuildBatch(leaves)
	assert.Equal(t, batch.Root(), inc.Root(),
		"for n>1 both builders use the same padding/pairing rule")
}

func TestProofRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every leaf in a batch tree produces a verifying proof", prop.ForAll(
		func(values []string) bool {
			if len(values) == 0 {
				return true
			}
			leaves := make([][]byte, len(values))
			for i, v := range values {
				leaves[i] = []byte(v)
			}
			tr := BuildBatch(leaves)
			for i := range leaves {
				proof, err := ProofFor(tr, i)
				if err != nil {
					return false
				}
				if !Verify(proof, tr.Root()) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
