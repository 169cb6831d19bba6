// Package checkpoint seals a contiguous range of hash chain records into
// a signed, chained summary object and persists it to immutable storage.
package checkpoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/hashchain"
	"github.com/ledgerseal/auditcore/pkg/merkle"
	"github.com/ledgerseal/auditcore/pkg/signer"
)

// SchemaVersion is the semver string stamped into every checkpoint this
// module produces.
const SchemaVersion = "1.0.0"

// Checkpoint is the immutable, signed summary of a sequence range.
type Checkpoint struct {
	SchemaVersion        string
	CheckpointNumber     uint64
	PeriodStart          time.Time
	PeriodEnd            time.Time
	FirstSequence        uint64
	LastSequence         uint64
	EventCount           uint64
	MerkleRoot           merkle.Hash
	TreeShape            merkle.TreeShape
	PreviousCheckpointID string // "" iff this is the first checkpoint
	PreviousMerkleRoot   *merkle.Hash
	Signature            *signer.Signature
	CheckpointID         string
}

// Identity is the durable record a sealer needs to link the next
// checkpoint to this one.
type Identity struct {
	CheckpointID string
	MerkleRoot   merkle.Hash
	Number       uint64
	LastSequence uint64
	StorageKey   string
}

// Locker serializes sealing across processes/goroutines. Production
// deployments backed by a shared store pass a cross-process
// implementation (see redislock); single-process deployments can use an
// in-process mutex implementation.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Store is the minimal subset of the immutable storage abstraction a
// sealer needs. pkg/auditcore adapts a storage.Store to it.
type Store interface {
	Store(ctx context.Context, key string, content []byte) error
}

// Chain is the minimal subset of hashchain.Chain a sealer needs.
type Chain interface {
	Range(start, end uint64) ([]hashchain.Record, error)
	Latest() hashchain.Record
}

// Config parameterizes a Sealer. RetentionDays and RetentionMode are
// carried in the config only: Seal does not pass them to the Store, so
// stored checkpoints get no retention setting from the Sealer.
type Config struct {
	TreeShape     merkle.TreeShape
	Interval      time.Duration
	MaxUnsealed   uint64
	RetentionDays int
	RetentionMode string // "compliance" | "governance"
}

// Sealer runs the checkpoint sealing algorithm against a chain, signer,
// and store.
type Sealer struct {
	cfg      Config
	chain    Chain
	ring     *signer.KeyRing
	store    Store
	locker   Locker
	lastSeen *Identity
	nextNum  uint64
	lastSeal time.Time
}

// NewSealer creates a Sealer. prior, if non-nil, is the identity of the
// most recently sealed checkpoint (nil if none exists yet).
func NewSealer(cfg Config, chain Chain, ring *signer.KeyRing, store Store, locker Locker, prior *Identity) *Sealer {
	s := &Sealer{cfg: cfg, chain: chain, ring: ring, store: store, locker: locker, lastSeen: prior}
	if prior != nil {
		s.nextNum = prior.Number + 1
	}
	return s
}

// ShouldSeal reports whether a trigger condition (interval elapsed,
// unsealed count exceeded) currently holds. Explicit seal requests skip
// this check and call Seal directly.
func (s *Sealer) ShouldSeal(now time.Time) bool {
	if s.cfg.Interval > 0 && now.Sub(s.lastSeal) >= s.cfg.Interval {
		return true
	}
	if s.cfg.MaxUnsealed > 0 {
		first := s.firstUnsealedSequence()
		latest := s.chain.Latest().Sequence
		if latest >= first && latest-first+1 >= s.cfg.MaxUnsealed {
			return true
		}
	}
	return false
}

func (s *Sealer) firstUnsealedSequence() uint64 {
	if s.lastSeen == nil {
		return 0
	}
	return s.lastSeen.LastSequence + 1
}

// Seal runs the full sealing algorithm: determine range, build the
// Merkle tree, sign, serialize, store, and link to the prior checkpoint.
// Returns (nil, EmptyRange) if there is nothing new to seal.
func (s *Sealer) Seal(ctx context.Context) (*Checkpoint, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return nil, auditerr.New("checkpoint.Seal", auditerr.KindConnectionFailed, err)
		}
		defer unlock()
	}

	first := s.firstUnsealedSequence()
	last := s.chain.Latest().Sequence

	if s.lastSeen != nil && last < first {
		return nil, auditerr.New("checkpoint.Seal", auditerr.KindEmptyRange, errEmptyRange)
	}

	records, err := s.chain.Range(first, last)
	if err != nil {
		return nil, auditerr.New("checkpoint.Seal", auditerr.KindEmptyRange, err)
	}
	if len(records) == 0 {
		return nil, auditerr.New("checkpoint.Seal", auditerr.KindEmptyRange, errEmptyRange)
	}

	leaves := make([][]byte, len(records))
	for i, r := range records {
		h := r.Hash
		leaves[i] = h[:]
	}

	tree := merkle.BuildBatch(leaves)
	if s.cfg.TreeShape == merkle.ShapeIncremental {
		inc := merkle.NewIncrementalTree()
		for _, l := range leaves {
			inc.AddLeaf(l)
		}
		tree = inc.Snapshot()
	}

	now := time.Now().UTC()
	cp := &Checkpoint{
		SchemaVersion:    SchemaVersion,
		CheckpointNumber: s.nextNum,
		PeriodStart:      records[0].Timestamp,
		PeriodEnd:        records[len(records)-1].Timestamp,
		FirstSequence:    first,
		LastSequence:     last,
		EventCount:       uint64(len(records)),
		MerkleRoot:       tree.Root(),
		TreeShape:        tree.Shape,
	}
	if s.lastSeen != nil {
		cp.PreviousCheckpointID = s.lastSeen.CheckpointID
		root := s.lastSeen.MerkleRoot
		cp.PreviousMerkleRoot = &root
	}

	signingBytes := CanonicalSigningBytes(cp)
	sig, err := s.ring.Sign(signingBytes)
	if err != nil {
		if auditerr.Is(err, auditerr.KindNoActiveKey) {
			return nil, err
		}
		return nil, auditerr.New("checkpoint.Seal", auditerr.KindNoActiveKey, err)
	}
	cp.Signature = sig
	cp.CheckpointID = fmt.Sprintf("ckpt-%06d-%s", cp.CheckpointNumber, sig.KeyID)

	wire, err := MarshalWire(cp)
	if err != nil {
		return nil, auditerr.New("checkpoint.Seal", auditerr.KindCanonicalization, err)
	}
	if err := ValidateWireJSON(wire); err != nil {
		return nil, err
	}

	key := StorageKey(now, cp.CheckpointNumber)
	if err := s.store.Store(ctx, key, wire); err != nil {
		return nil, err
	}

	s.lastSeen = &Identity{
		CheckpointID: cp.CheckpointID,
		MerkleRoot:   cp.MerkleRoot,
		Number:       cp.CheckpointNumber,
		LastSequence: cp.LastSequence,
		StorageKey:   key,
	}
	s.nextNum++
	s.lastSeal = now

	return cp, nil
}

// StorageKey returns the date-partitioned storage key a checkpoint is
// stored at: checkpoints/<YYYY>/<MM>/<DD>/<checkpoint_number>.json.
func StorageKey(at time.Time, number uint64) string {
	at = at.UTC()
	return fmt.Sprintf("checkpoints/%04d/%02d/%02d/%d.json", at.Year(), at.Month(), at.Day(), number)
}

// CanonicalSigningBytes builds the newline-separated fixed-field byte
// string a checkpoint is signed over.
func CanonicalSigningBytes(cp *Checkpoint) []byte {
	prevID := "null"
	if cp.PreviousCheckpointID != "" {
		prevID = cp.PreviousCheckpointID
	}
	prevRoot := "null"
	if cp.PreviousMerkleRoot != nil {
		prevRoot = hex.EncodeToString(cp.PreviousMerkleRoot[:])
	}

	root := cp.MerkleRoot
	s := fmt.Sprintf(
		"checkpoint:%d\nperiod:%s/%s\nsequences:%d-%d\nevents:%d\nmerkle:%s\nprev_id:%s\nprev_root:%s",
		cp.CheckpointNumber,
		cp.PeriodStart.UTC().Format(time.RFC3339),
		cp.PeriodEnd.UTC().Format(time.RFC3339),
		cp.FirstSequence,
		cp.LastSequence,
		cp.EventCount,
		hex.EncodeToString(root[:]),
		prevID,
		prevRoot,
	)
	return []byte(s)
}
