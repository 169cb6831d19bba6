package auditcore

import (
	"fmt"

	"github.com/ledgerseal/auditcore/pkg/checkpoint"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/verify"
)

// Verify builds the inclusion proof for sequence against cp's sealed
// range (reading records straight from this Engine's chain) and runs the
// full stateless verification contract. priorCheckpoint is optional;
// when supplied, checkpoint chain continuity is also checked.
func (e *Engine) Verify(sequence uint64, cp *checkpoint.Checkpoint, priorCheckpoint *checkpoint.Checkpoint, publicKeys map[string][]byte) (*verify.Report, error) {
	if sequence < cp.FirstSequence || sequence > cp.LastSequence {
		return nil, fmt.Errorf("auditcore: sequence %d is outside checkpoint range [%d,%d]", sequence, cp.FirstSequence, cp.LastSequence)
	}

	records, err := e.chain.Range(cp.FirstSequence, cp.LastSequence)
	if err != nil {
		return nil, err
	}

	tree := MerkleTreeFor(records, cp.TreeShape)
	index := int(sequence - cp.FirstSequence)
	proof, err := merkle.ProofFor(tree, index)
	if err != nil {
		return nil, err
	}

	rec, err := e.chain.Get(sequence)
	if err != nil {
		return nil, err
	}

	report := verify.Record(verify.Input{
		Record:          rec,
		Proof:           proof,
		Checkpoint:      cp,
		PublicKeys:      publicKeys,
		PriorCheckpoint: priorCheckpoint,
	})
	return report, nil
}
