package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/checkpoint"
	"github.com/ledgerseal/auditcore/pkg/hashchain"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/payload"
	"github.com/ledgerseal/auditcore/pkg/signer"
)

// buildSealedChain appends n events to a fresh chain, seals them into a
// single checkpoint with key, and returns everything a verifier needs.
func buildSealedChain(t *testing.T, n int) (*hashchain.Chain, *checkpoint.Checkpoint, *signer.KeyRing, *signer.SigningKey) {
	t.Helper()
	chain, err := hashchain.New(hashchain.GenesisConfig{Version: "1", StartInstant: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	base := chain.Latest().Timestamp
	for i := 1; i <= n; i++ {
		_, err := chain.Append("event.x", payload.MustFrom(map[string]any{"i": i}), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	ring := signer.NewKeyRing(signer.AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	sealer := checkpoint.NewSealer(checkpoint.Config{TreeShape: merkle.ShapeBatch}, chain, ring, noopStore{}, nil, nil)
	cp, err := sealer.Seal(context.Background())
	require.NoError(t, err)

	return chain, cp, ring, key
}

type noopStore struct{}

func (noopStore) Store(ctx context.Context, key string, content []byte) error {
	return nil
}

func TestRecord_HappyPath(t *testing.T) {
	chain, cp, ring, key := buildSealedChain(t, 3)

	records, err := chain.Range(0, 3)
	require.NoError(t, err)
	tree := merkle.BuildBatch(leafInputs(records))
	proof, err := merkle.ProofFor(tree, 1)
	require.NoError(t, err)

	der, err := signer.MarshalPublicKeyDER(key.PublicKey())
	require.NoError(t, err)

	report := Record(Input{
		Record:     records[1],
		Proof:      proof,
		Checkpoint: cp,
		PublicKeys: map[string][]byte{cp.Signature.KeyID: der},
	})

	assert.True(t, report.Verified, "%+v", report.Checks)
	assert.Equal(t, 0, report.IssueCount)
	_ = ring
}

func TestRecord_TamperedRecordHashFails(t *testing.T) {
	chain, cp, ring, key := buildSealedChain(t, 3)
	records, err := chain.Range(0, 3)
	require.NoError(t, err)
	tree := merkle.BuildBatch(leafInputs(records))
	proof, err := merkle.ProofFor(tree, 1)
	require.NoError(t, err)

	tampered := records[1]
	tampered.EventType = "event.tampered"

	der, err := signer.MarshalPublicKeyDER(key.PublicKey())
	require.NoError(t, err)

	report := Record(Input{
		Record:     tampered,
		Proof:      proof,
		Checkpoint: cp,
		PublicKeys: map[string][]byte{cp.Signature.KeyID: der},
	})

	assert.False(t, report.Verified)
	assert.False(t, report.Checks[0].Pass)
	_ = ring
}

func TestRecord_UnknownKeyIDFails(t *testing.T) {
	chain, cp, _, _ := buildSealedChain(t, 3)
	records, err := chain.Range(0, 3)
	require.NoError(t, err)
	tree := merkle.BuildBatch(leafInputs(records))
	proof, err := merkle.ProofFor(tree, 0)
	require.NoError(t, err)

	report := Record(Input{
		Record:     records[0],
		Proof:      proof,
		Checkpoint: cp,
		PublicKeys: map[string][]byte{},
	})

	assert.False(t, report.Verified)
	var sigCheck *CheckResult
	for i := range report.Checks {
		if report.Checks[i].Name == "signature" {
			sigCheck = &report.Checks[i]
		}
	}
	require.NotNil(t, sigCheck)
	assert.False(t, sigCheck.Pass)
}

func TestRecord_WrongProofLeafFails(t *testing.T) {
	chain, cp, _, key := buildSealedChain(t, 3)
	records, err := chain.Range(0, 3)
	require.NoError(t, err)
	tree := merkle.BuildBatch(leafInputs(records))
	proofForOther, err := merkle.ProofFor(tree, 2)
	require.NoError(t, err)

	der, err := signer.MarshalPublicKeyDER(key.PublicKey())
	require.NoError(t, err)

	report := Record(Input{
		Record:     records[0],
		Proof:      proofForOther,
		Checkpoint: cp,
		PublicKeys: map[string][]byte{cp.Signature.KeyID: der},
	})

	assert.False(t, report.Verified)
}

func TestRecord_CheckpointContinuity(t *testing.T) {
	_, cp, _, _ := buildSealedChain(t, 1)
	root := cp.MerkleRoot
	prior := &checkpoint.Checkpoint{
		CheckpointID:  "ckpt-000000-x",
		MerkleRoot:    root,
		LastSequence:  0,
	}
	cp.PreviousCheckpointID = prior.CheckpointID
	cp.PreviousMerkleRoot = &root
	cp.FirstSequence = 1

	result := checkCheckpointContinuity(cp, prior)
	assert.True(t, result.Pass, result.Reason)
}

func TestRecord_CheckpointContinuityBrokenLink(t *testing.T) {
	_, cp, _, _ := buildSealedChain(t, 1)
	prior := &checkpoint.Checkpoint{CheckpointID: "ckpt-000000-x", LastSequence: 0}
	cp.PreviousCheckpointID = "ckpt-999999-wrong"

	result := checkCheckpointContinuity(cp, prior)
	assert.False(t, result.Pass)
}

func leafInputs(records []hashchain.Record) [][]byte {
	leaves := make([][]byte, len(records))
	for i, r := range records {
		h := r.Hash
		leaves[i] = h[:]
	}
	return leaves
}
