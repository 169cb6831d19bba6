package auditcore

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
	"github.com/ledgerseal/auditcore/pkg/storage/memstore"
)

func newTestEngine(t *testing.T) (*Engine, *signer.KeyRing, *signer.SigningKey) {
	t.Helper()
	ring := signer.NewKeyRing(signer.AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	store := memstore.New()

	e, err := New(Config{
		Genesis:    hashchain.GenesisConfig{Version: "1", StartInstant: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		Checkpoint: checkpoint.Config{TreeShape: merkle.ShapeBatch},
		Backoff:    DefaultBackoffPolicy,
	}, ring, store, nil, nil)
	require.NoError(t, err)
	return e, ring, key
}

func TestEngine_AppendAndSeal(t *testing.T) {
	e, _, key := newTestEngine(t)
	base := e.Latest().Timestamp

	for i := 1; i <= 3; i++ {
		_, err := e.Append("event.x", payload.MustFrom(map[string]any{"i": i}), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	cp, err := e.Seal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cp.FirstSequence)
	assert.Equal(t, uint64(3), cp.LastSequence)
	assert.Equal(t, uint64(4), cp.EventCount)

	der, err := signer.MarshalPublicKeyDER(key.PublicKey())
	require.NoError(t, err)

	report, err := e.Verify(2, cp, nil, map[string][]byte{cp.Signature.KeyID: der})
	require.NoError(t, err)
	assert.True(t, report.Verified, "%+v", report.Checks)
}

func TestEngine_SealTwiceOnlySealsNewRecords(t *testing.T) {
	e, _, _ := newTestEngine(t)
	base := e.Latest().Timestamp

	_, err := e.Append("event.x", payload.MustFrom(map[string]any{"i": 1}), base.Add(time.Second))
	require.NoError(t, err)

	first, err := e.Seal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.FirstSequence)
	assert.Equal(t, uint64(1), first.LastSequence)

	_, err = e.Append("event.x", payload.MustFrom(map[string]any{"i": 2}), base.Add(2*time.Second))
	require.NoError(t, err)

	second, err := e.Seal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.FirstSequence)
	assert.Equal(t, uint64(2), second.LastSequence)
	assert.Equal(t, first.CheckpointID, second.PreviousCheckpointID)
}

func TestEngine_SealWithNothingNewFails(t *testing.T) {
	e, _, _ := newTestEngine(t)
	base := e.Latest().Timestamp
	_, err := e.Append("event.x", payload.MustFrom(map[string]any{"i": 1}), base.Add(time.Second))
	require.NoError(t, err)

	_, err = e.Seal(context.Background())
	require.NoError(t, err)

	_, err = e.Seal(context.Background())
	require.Error(t, err)
}

func TestEngine_SubmitEvidenceAppendsEventWithLeafHash(t *testing.T) {
	e, _, _ := newTestEngine(t)

	ev := Evidence{
		ControlID:      "ctrl-1",
		ArtifactSHA256: "a" + string(make([]byte, 63)),
		Metadata:       payload.MustFrom(map[string]any{"scanner": "clamav"}),
		CollectedAt:    e.Latest().Timestamp.Add(time.Second),
	}
	rec, err := e.SubmitEvidence(ev)
	require.NoError(t, err)
	assert.Equal(t, EvidenceEventType, rec.EventType)

	m := rec.Payload.Map()
	assert.Equal(t, "ctrl-1", m["control_id"].String())
	assert.NotEmpty(t, m["leaf_hash"].String())
}

func TestEngine_ValidateDetectsTamperedPayload(t *testing.T) {
	e, _, _ := newTestEngine(t)
	base := e.Latest().Timestamp
	_, err := e.Append("event.x", payload.MustFrom(map[string]any{"i": 1}), base.Add(time.Second))
	require.NoError(t, err)

	records, err := e.Range(0, 1)
	require.NoError(t, err)

	tampered := records[1]
	tampered.Payload = payload.MustFrom(map[string]any{"i": 999})
	records[1] = tampered

	result := e.Validate(records)
	assert.False(t, result.OK)
	assert.Equal(t, uint64(1), result.FailedSequence)
}

func TestComputeBackoff_DeterministicAcrossCalls(t *testing.T) {
	params := BackoffParams{ChainID: "chain-1", AttemptIndex: 2}
	d1 := ComputeBackoff(params, DefaultBackoffPolicy)
	d2 := ComputeBackoff(params, DefaultBackoffPolicy)
	assert.Equal(t, d1, d2)
}

func TestComputeBackoff_GrowsWithAttemptIndexUntilCap(t *testing.T) {
	policy := BackoffPolicy{BaseMs: 100, MaxMs: 1000, MaxJitterMs: 0, MaxAttempts: 10}
	d0 := ComputeBackoff(BackoffParams{ChainID: "c", AttemptIndex: 0}, policy)
	d3 := ComputeBackoff(BackoffParams{ChainID: "c", AttemptIndex: 3}, policy)
	d10 := ComputeBackoff(BackoffParams{ChainID: "c", AttemptIndex: 10}, policy)

	assert.Equal(t, 100*time.Millisecond, d0)
	assert.Equal(t, 800*time.Millisecond, d3)
	assert.Equal(t, 1000*time.Millisecond, d10)
}
