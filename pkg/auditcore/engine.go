// Package auditcore wires the canonicalizer, hash chain, Merkle
// builder, signer, checkpoint sealer, storage, and verifier into a
// single Engine: the entry point a caller uses to append events, submit
// evidence, seal checkpoints on a schedule, and verify a record.
package auditcore

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/checkpoint"
	"github.com/ledgerseal/auditcore/pkg/hashchain"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/payload"
	"github.com/ledgerseal/auditcore/pkg/signer"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

// Engine glues every component into one object a caller constructs once
// per chain.
type Engine struct {
	chain   *hashchain.Chain
	ring    *signer.KeyRing
	store   storage.Store
	sealer  *checkpoint.Sealer
	backoff BackoffPolicy
}

// Config parameterizes an Engine.
type Config struct {
	Genesis    hashchain.GenesisConfig
	Checkpoint checkpoint.Config
	Backoff    BackoffPolicy
}

// New creates an Engine with a fresh chain, given key ring, store, and
// locker. prior is the identity of the most recently sealed checkpoint,
// or nil if none exists yet.
func New(cfg Config, ring *signer.KeyRing, store storage.Store, locker checkpoint.Locker, prior *checkpoint.Identity) (*Engine, error) {
	chain, err := hashchain.New(cfg.Genesis)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		chain:   chain,
		ring:    ring,
		store:   store,
		backoff: cfg.Backoff,
	}
	e.sealer = checkpoint.NewSealer(cfg.Checkpoint, chain, ring, checkpointStoreAdapter{store}, locker, prior)
	return e, nil
}

// Append canonicalizes p and binds it into the chain as the next record.
func (e *Engine) Append(eventType string, p payload.Value, at time.Time) (hashchain.Record, error) {
	return e.chain.Append(eventType, p, at)
}

// Get returns the record at sequence.
func (e *Engine) Get(sequence uint64) (hashchain.Record, error) {
	return e.chain.Get(sequence)
}

// Range returns records in [start, end].
func (e *Engine) Range(start, end uint64) ([]hashchain.Record, error) {
	return e.chain.Range(start, end)
}

// Latest returns the most recently appended record.
func (e *Engine) Latest() hashchain.Record {
	return e.chain.Latest()
}

// Validate replays a record slice through the chain's internal
// consistency checks (sequence, previous-hash linkage, hash
// recomputation).
func (e *Engine) Validate(records []hashchain.Record) hashchain.ValidationResult {
	return hashchain.Validate(records)
}

// Seal runs the sealer once, retrying storage failures with
// exponential backoff and deterministic jitter up to the configured
// attempt ceiling. A non-retryable error (e.g. EmptyRange, NoActiveKey)
// returns immediately.
func (e *Engine) Seal(ctx context.Context) (*checkpoint.Checkpoint, error) {
	var lastErr error
	for attempt := 0; attempt < e.backoff.maxAttempts(); attempt++ {
		cp, err := e.sealer.Seal(ctx)
		if err == nil {
			return cp, nil
		}
		lastErr = err
		if !auditerr.Retryable(err) {
			return nil, err
		}

		delay := ComputeBackoff(BackoffParams{ChainID: e.chainID(), AttemptIndex: attempt}, e.backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// chainID identifies the chain by its genesis record's hash, which is
// the same across restarts for the same genesis configuration.
func (e *Engine) chainID() string {
	genesis, err := e.chain.Get(0)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(genesis.Hash[:])
}

// checkpointStoreAdapter narrows a storage.Store to the minimal
// checkpoint.Store interface the Sealer depends on.
type checkpointStoreAdapter struct {
	store storage.Store
}

func (a checkpointStoreAdapter) Store(ctx context.Context, key string, content []byte) error {
	_, err := a.store.Store(ctx, key, content, storage.StoreOptions{ContentType: "application/json"})
	return err
}

// MerkleTreeFor builds the Merkle tree over a sequence range using the
// same shape the sealer is configured with, for callers assembling an
// inclusion proof outside of a seal operation (e.g. a verification CLI
// reading directly from the chain).
func MerkleTreeFor(records []hashchain.Record, shape merkle.TreeShape) *merkle.Tree {
	leaves := make([][]byte, len(records))
	for i, r := range records {
		h := r.Hash
		leaves[i] = h[:]
	}
	if shape == merkle.ShapeIncremental {
		inc := merkle.NewIncrementalTree()
		for _, l := range leaves {
			inc.AddLeaf(l)
		}
		return inc.Snapshot()
	}
	return merkle.BuildBatch(leaves)
}
