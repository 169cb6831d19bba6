// Package verify performs offline, stateless verification of a single
// audit record against a checkpoint and a public key.
//
// It has zero server, storage, or network dependency: every check
// operates on values the caller already has in hand (a record, a proof,
// a checkpoint, a public key, and optionally the prior checkpoint in the
// chain). It trusts only the cryptographic primitives (ECDSA, SHA-256,
// JCS) and the wire formats those packages define — never the process
// that produced them.
package verify

import (
	"fmt"
	"time"

	"github.com/ledgerseal/auditcore/pkg/checkpoint"
	"github.com/ledgerseal/auditcore/pkg/hashchain"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/signer"
)

// CheckResult is the outcome of one verification step.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Report is the structured output of Record verification.
type Report struct {
	Verified   bool          `json:"verified"`
	Timestamp  time.Time     `json:"timestamp"`
	Checks     []CheckResult `json:"checks"`
	Summary    string        `json:"summary"`
	IssueCount int           `json:"issue_count"`
}

// Input bundles everything a caller must supply to verify a single
// record. PriorCheckpoint is optional; when present, step 5 (checkpoint
// chain continuity) runs.
type Input struct {
	Record          hashchain.Record
	Proof           *merkle.Proof
	Checkpoint      *checkpoint.Checkpoint
	PublicKeys      map[string][]byte     // key_id -> PKIX DER-encoded public key
	PriorCheckpoint *checkpoint.Checkpoint // nil if this is the first checkpoint
}

// Record runs the five-step verification contract against in.
func Record(in Input) *Report {
	report := &Report{Timestamp: time.Now().UTC(), Checks: make([]CheckResult, 0, 5)}

	report.add(checkRecordHash(in.Record))
	report.add(checkLeafHash(in.Record, in.Proof))
	report.add(checkProofRoot(in.Proof, in.Checkpoint))
	report.add(checkSignature(in.Checkpoint, in.PublicKeys))
	if in.PriorCheckpoint != nil {
		report.add(checkCheckpointContinuity(in.Checkpoint, in.PriorCheckpoint))
	}

	failed := 0
	for _, c := range report.Checks {
		if !c.Pass {
			failed++
		}
	}
	report.IssueCount = failed
	report.Verified = failed == 0
	if failed > 0 {
		report.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", failed, len(report.Checks))
	} else {
		report.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(report.Checks), len(report.Checks))
	}
	return report
}

func (r *Report) add(c CheckResult) { r.Checks = append(r.Checks, c) }

// checkRecordHash is step 1: recompute the record's hash from its
// fields and compare constant-time with the claimed hash.
func checkRecordHash(rec hashchain.Record) CheckResult {
	recomputed, err := hashchain.RecordHash(rec)
	if err != nil {
		return CheckResult{Name: "record_hash", Pass: false, Reason: fmt.Sprintf("recompute failed: %v", err)}
	}
	if !constantTimeEqual32(recomputed, rec.Hash) {
		return CheckResult{Name: "record_hash", Pass: false, Reason: "recomputed hash does not match claimed record hash"}
	}
	return CheckResult{Name: "record_hash", Pass: true, Detail: "record hash matches preimage"}
}

// checkLeafHash is step 2: recompute leaf_hash(record.hash) and confirm
// it equals the proof's claimed leaf hash.
func checkLeafHash(rec hashchain.Record, proof *merkle.Proof) CheckResult {
	if proof == nil {
		return CheckResult{Name: "leaf_hash", Pass: false, Reason: "no proof supplied"}
	}
	leaf := merkle.LeafHash(rec.Hash[:])
	if leaf != proof.LeafHash {
		return CheckResult{Name: "leaf_hash", Pass: false, Reason: "leaf hash of record does not match proof.leaf_hash"}
	}
	return CheckResult{Name: "leaf_hash", Pass: true, Detail: "leaf hash matches proof"}
}

// checkProofRoot is step 3: walk the proof's siblings bottom-up and
// compare the derived root with the checkpoint's merkle_root.
func checkProofRoot(proof *merkle.Proof, cp *checkpoint.Checkpoint) CheckResult {
	if proof == nil || cp == nil {
		return CheckResult{Name: "proof_root", Pass: false, Reason: "missing proof or checkpoint"}
	}
	if !merkle.Verify(proof, cp.MerkleRoot) {
		return CheckResult{Name: "proof_root", Pass: false, Reason: "proof does not resolve to checkpoint.merkle_root"}
	}
	return CheckResult{Name: "proof_root", Pass: true, Detail: "proof resolves to checkpoint root"}
}

// checkSignature is step 4: recompute the checkpoint's canonical
// signing bytes and verify the signature with the public key whose
// key_id matches.
func checkSignature(cp *checkpoint.Checkpoint, keys map[string][]byte) CheckResult {
	if cp == nil || cp.Signature == nil {
		return CheckResult{Name: "signature", Pass: false, Reason: "missing checkpoint or signature"}
	}
	keyDER, ok := keys[cp.Signature.KeyID]
	if !ok {
		return CheckResult{Name: "signature", Pass: false, Reason: fmt.Sprintf("no public key supplied for key_id %q", cp.Signature.KeyID)}
	}
	pub, err := signer.ParsePublicKeyDER(keyDER)
	if err != nil {
		return CheckResult{Name: "signature", Pass: false, Reason: fmt.Sprintf("malformed public key: %v", err)}
	}

	signingBytes := checkpoint.CanonicalSigningBytes(cp)
	verdict := signer.VerifyWithPublicKey(signingBytes, cp.Signature, pub)
	if !verdict.Valid {
		reason := "signature does not verify against supplied public key"
		if verdict.Err != nil {
			reason = verdict.Err.Error()
		}
		return CheckResult{Name: "signature", Pass: false, Reason: reason}
	}
	return CheckResult{Name: "signature", Pass: true, Detail: fmt.Sprintf("signature verified with key_id %s", cp.Signature.KeyID)}
}

// checkCheckpointContinuity is step 5: confirm the link to the prior
// checkpoint and that the sequence ranges are contiguous and
// non-overlapping.
func checkCheckpointContinuity(cp, prior *checkpoint.Checkpoint) CheckResult {
	if cp.PreviousCheckpointID != prior.CheckpointID {
		return CheckResult{Name: "checkpoint_continuity", Pass: false, Reason: "previous_checkpoint_id does not match prior checkpoint's id"}
	}
	if cp.PreviousMerkleRoot == nil || *cp.PreviousMerkleRoot != prior.MerkleRoot {
		return CheckResult{Name: "checkpoint_continuity", Pass: false, Reason: "previous_merkle_root does not match prior checkpoint's root"}
	}
	if cp.FirstSequence != prior.LastSequence+1 {
		return CheckResult{Name: "checkpoint_continuity", Pass: false, Reason: "sequence ranges are not contiguous"}
	}
	return CheckResult{Name: "checkpoint_continuity", Pass: true, Detail: "checkpoint links correctly to prior checkpoint"}
}

func constantTimeEqual32(a, b [32]byte) bool {
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
