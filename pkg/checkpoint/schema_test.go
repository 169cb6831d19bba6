package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/signer"
)

func testSignature(t *testing.T) *signer.Signature {
	t.Helper()
	ring := buildRing(t)
	sig, err := ring.Sign([]byte("sign-me"))
	require.NoError(t, err)
	return sig
}

func TestValidateWireJSON_AcceptsWellFormedCheckpoint(t *testing.T) {
	cp := &Checkpoint{
		SchemaVersion:    SchemaVersion,
		CheckpointNumber: 1,
		FirstSequence:    0,
		LastSequence:     1,
		EventCount:       2,
		TreeShape:        "batch",
	}
	cp.MerkleRoot[0] = 0xab
	cp.Signature = testSignature(t)
	cp.CheckpointID = "ckpt-000001-test"

	wire, err := MarshalWire(cp)
	require.NoError(t, err)
	assert.NoError(t, ValidateWireJSON(wire))
}

func TestValidateWireJSON_RejectsMissingSignature(t *testing.T) {
	badDoc := []byte(`{
		"schema_version": "1.0.0",
		"checkpoint_number": 1,
		"period_start": "2026-01-01T00:00:00Z",
		"period_end": "2026-01-01T01:00:00Z",
		"first_sequence": 0,
		"last_sequence": 1,
		"event_count": 2,
		"merkle_root": "ab00000000000000000000000000000000000000000000000000000000000000",
		"tree_shape": "batch"
	}`)
	err := ValidateWireJSON(badDoc)
	require.Error(t, err)
}

func TestValidateWireJSON_RejectsMalformedMerkleRoot(t *testing.T) {
	badDoc := []byte(`{
		"schema_version": "1.0.0",
		"checkpoint_number": 1,
		"period_start": "2026-01-01T00:00:00Z",
		"period_end": "2026-01-01T01:00:00Z",
		"first_sequence": 0,
		"last_sequence": 1,
		"event_count": 2,
		"merkle_root": "not-hex",
		"tree_shape": "batch",
		"signature": {"algorithm": "ECDSA-P256-SHA256", "key_id": "k1", "bytes": "YWJj", "signed_at": "2026-01-01T01:00:00Z"}
	}`)
	err := ValidateWireJSON(badDoc)
	require.Error(t, err)
}
