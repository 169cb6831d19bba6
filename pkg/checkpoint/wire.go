package checkpoint

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/signer"
)

type wireSignature struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
	Bytes     string `json:"bytes"`
	SignedAt  string `json:"signed_at"`
}

type wireCheckpoint struct {
	SchemaVersion        string         `json:"schema_version"`
	CheckpointNumber     uint64         `json:"checkpoint_number"`
	PeriodStart          string         `json:"period_start"`
	PeriodEnd            string         `json:"period_end"`
	FirstSequence        uint64         `json:"first_sequence"`
	LastSequence         uint64         `json:"last_sequence"`
	EventCount           uint64         `json:"event_count"`
	MerkleRoot           string         `json:"merkle_root"`
	TreeShape            string         `json:"tree_shape"`
	PreviousCheckpointID *string       `json:"previous_checkpoint_id"`
	PreviousMerkleRoot   *string       `json:"previous_merkle_root"`
	Signature            wireSignature `json:"signature"`
}

// MarshalWire serializes cp to the canonical wire form stored at its
// WORM storage key.
func MarshalWire(cp *Checkpoint) ([]byte, error) {
	w := wireCheckpoint{
		SchemaVersion:    cp.SchemaVersion,
		CheckpointNumber: cp.CheckpointNumber,
		PeriodStart:      cp.PeriodStart.UTC().Format(time.RFC3339),
		PeriodEnd:        cp.PeriodEnd.UTC().Format(time.RFC3339),
		FirstSequence:    cp.FirstSequence,
		LastSequence:     cp.LastSequence,
		EventCount:       cp.EventCount,
		MerkleRoot:       hex.EncodeToString(cp.MerkleRoot[:]),
		TreeShape:        string(cp.TreeShape),
		Signature: wireSignature{
			Algorithm: string(cp.Signature.Algorithm),
			KeyID:     cp.Signature.KeyID,
			Bytes:     base64.StdEncoding.EncodeToString(cp.Signature.Bytes),
			SignedAt:  cp.Signature.SignedAt.UTC().Format(time.RFC3339),
		},
	}
	if cp.PreviousCheckpointID != "" {
		w.PreviousCheckpointID = &cp.PreviousCheckpointID
	}
	if cp.PreviousMerkleRoot != nil {
		root := hex.EncodeToString(cp.PreviousMerkleRoot[:])
		w.PreviousMerkleRoot = &root
	}

	return json.Marshal(w)
}

// UnmarshalWire parses the canonical wire form back into a Checkpoint,
// verifying the schema_version is compatible with SchemaVersion before
// trusting the remaining fields.
func UnmarshalWire(data []byte) (*Checkpoint, error) {
	var w wireCheckpoint
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}

	if err := CheckSchemaCompatible(w.SchemaVersion); err != nil {
		return nil, err
	}

	root, err := decodeRoot(w.MerkleRoot)
	if err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}

	periodStart, err := time.Parse(time.RFC3339, w.PeriodStart)
	if err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}
	periodEnd, err := time.Parse(time.RFC3339, w.PeriodEnd)
	if err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(w.Signature.Bytes)
	if err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}
	signedAt, err := time.Parse(time.RFC3339, w.Signature.SignedAt)
	if err != nil {
		return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
	}

	cp := &Checkpoint{
		SchemaVersion:    w.SchemaVersion,
		CheckpointNumber: w.CheckpointNumber,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		FirstSequence:    w.FirstSequence,
		LastSequence:     w.LastSequence,
		EventCount:       w.EventCount,
		MerkleRoot:       root,
		TreeShape:        merkle.TreeShape(w.TreeShape),
	}
	if w.PreviousCheckpointID != nil {
		cp.PreviousCheckpointID = *w.PreviousCheckpointID
	}
	if w.PreviousMerkleRoot != nil {
		prevRoot, err := decodeRoot(*w.PreviousMerkleRoot)
		if err != nil {
			return nil, auditerr.New("checkpoint.UnmarshalWire", auditerr.KindCanonicalization, err)
		}
		cp.PreviousMerkleRoot = &prevRoot
	}
	cp.Signature = &signer.Signature{
		Bytes:     sigBytes,
		KeyID:     w.Signature.KeyID,
		Algorithm: signer.Algorithm(w.Signature.Algorithm),
		SignedAt:  signedAt,
	}

	return cp, nil
}

func decodeRoot(hexStr string) (merkle.Hash, error) {
	var h merkle.Hash
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// CheckSchemaCompatible reports whether a stored checkpoint's schema
// version is compatible with the version this module writes: same major
// version, using semver range matching so a verifier built against a
// newer/older minor version does not silently misparse an incompatible
// wire format.
func CheckSchemaCompatible(version string) error {
	stored, err := semver.NewVersion(version)
	if err != nil {
		return auditerr.New("checkpoint.CheckSchemaCompatible", auditerr.KindCanonicalization, err)
	}
	constraint, err := semver.NewConstraint("^" + semver.MustParse(SchemaVersion).String())
	if err != nil {
		return auditerr.New("checkpoint.CheckSchemaCompatible", auditerr.KindCanonicalization, err)
	}
	if !constraint.Check(stored) {
		return auditerr.New("checkpoint.CheckSchemaCompatible", auditerr.KindCanonicalization, errIncompatibleSchema)
	}
	return nil
}
