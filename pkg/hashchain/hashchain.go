// Package hashchain implements an append-only, hash-linked sequence of
// records: every record's hash binds its sequence number, timestamp,
// event type, canonicalized payload, and the previous record's hash, so
// that altering or removing any record breaks the chain from that point
// forward.
package hashchain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/canonicalize"
	"github.com/ledgerseal/auditcore/pkg/payload"
)

// GenesisEventType is the event_type recorded on sequence 0.
const GenesisEventType = "system.genesis"

// Sentinel is the 32-byte zero previous_hash genesis records carry.
var Sentinel [32]byte

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Record is one hash-linked entry in a Chain.
type Record struct {
	RecordID     string
	Sequence     uint64
	Timestamp    time.Time
	EventType    string
	Payload      payload.Value
	PreviousHash [32]byte
	Hash         [32]byte
}

// GenesisConfig parameterizes chain creation.
type GenesisConfig struct {
	Version      string
	StartInstant time.Time
}

// Chain is a single-writer, multi-reader append-only hash chain.
type Chain struct {
	mu      sync.RWMutex
	records []Record
}

// New creates a chain with a single genesis record at sequence 0 whose
// previous_hash is the zero sentinel.
func New(cfg GenesisConfig) (*Chain, error) {
	genesisPayload := payload.Map(map[string]payload.Value{
		"version":       payload.String(cfg.Version),
		"start_instant": payload.String(cfg.StartInstant.UTC().Format(timestampLayout)),
	})

	rec := Record{
		RecordID:     uuid.NewString(),
		Sequence:     0,
		Timestamp:    cfg.StartInstant.UTC(),
		EventType:    GenesisEventType,
		Payload:      genesisPayload,
		PreviousHash: Sentinel,
	}

	hash, err := recordHash(rec)
	if err != nil {
		return nil, auditerr.New("hashchain.New", auditerr.KindCanonicalization, err)
	}
	rec.Hash = hash

	return &Chain{records: []Record{rec}}, nil
}

// Append assigns sequence = latest.sequence + 1, links previous_hash to
// the current head, computes the record hash, and returns the new
// record. If ts is the zero Value, time.Now().UTC() is used.
func (c *Chain) Append(eventType string, p payload.Value, ts time.Time) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest := c.records[len(c.records)-1]
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	if ts.Before(latest.Timestamp) {
		return Record{}, auditerr.New("hashchain.Append", auditerr.KindInvalidTimestamp,
			fmt.Errorf("timestamp %s precedes latest record timestamp %s", ts, latest.Timestamp)).
			WithSeq(latest.Sequence + 1)
	}

	rec := Record{
		RecordID:     uuid.NewString(),
		Sequence:     latest.Sequence + 1,
		Timestamp:    ts,
		EventType:    eventType,
		Payload:      p,
		PreviousHash: latest.Hash,
	}

	hash, err := recordHash(rec)
	if err != nil {
		return Record{}, auditerr.New("hashchain.Append", auditerr.KindCanonicalization, err).WithSeq(rec.Sequence)
	}
	rec.Hash = hash

	c.records = append(c.records, rec)
	return rec, nil
}

// Get returns the record at sequence, if present.
func (c *Chain) Get(sequence uint64) (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sequence >= uint64(len(c.records)) {
		return Record{}, auditerr.New("hashchain.Get", auditerr.KindNotFound,
			fmt.Errorf("no record at sequence %d", sequence)).WithSeq(sequence)
	}
	return c.records[sequence], nil
}

// Range returns records with sequence in [start, end], inclusive.
func (c *Chain) Range(start, end uint64) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if end < start || end >= uint64(len(c.records)) {
		return nil, auditerr.New("hashchain.Range", auditerr.KindLeafIndexRange,
			fmt.Errorf("range [%d,%d] out of bounds for chain of length %d", start, end, len(c.records)))
	}
	out := make([]Record, end-start+1)
	copy(out, c.records[start:end+1])
	return out, nil
}

// Latest returns the most recently appended record.
func (c *Chain) Latest() Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[len(c.records)-1]
}

// Len reports the number of records in the chain, including genesis.
func (c *Chain) Len() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.records))
}

// ValidationResult reports the outcome of Validate.
type ValidationResult struct {
	OK             bool
	FailedSequence uint64
	ExpectedHash   [32]byte
	ActualHash     [32]byte
	Err            error
}

// Validate recomputes each record's hash and checks linkage to the
// previous record, sequence density, and (if records[0] is a genesis
// record) the sentinel. It returns the first failing sequence and both
// hashes involved.
func Validate(records []Record) ValidationResult {
	if len(records) == 0 {
		return ValidationResult{OK: true}
	}

	first := records[0]
	if first.Sequence == 0 {
		if !constantTimeEqual(first.PreviousHash, Sentinel) {
			return ValidationResult{
				OK:             false,
				FailedSequence: 0,
				ExpectedHash:   Sentinel,
				ActualHash:     first.PreviousHash,
				Err:            auditerr.New("hashchain.Validate", auditerr.KindInvalidGenesis, errInvalidGenesis).WithSeq(0),
			}
		}
	}

	var prev *Record
	for i := range records {
		rec := records[i]

		if prev != nil {
			if rec.Sequence != prev.Sequence+1 {
				return ValidationResult{
					OK:             false,
					FailedSequence: rec.Sequence,
					Err:            auditerr.New("hashchain.Validate", auditerr.KindSequenceGap, errSequenceGap).WithSeq(rec.Sequence),
				}
			}
			if !constantTimeEqual(rec.PreviousHash, prev.Hash) {
				return ValidationResult{
					OK:             false,
					FailedSequence: rec.Sequence,
					ExpectedHash:   prev.Hash,
					ActualHash:     rec.PreviousHash,
					Err:            auditerr.New("hashchain.Validate", auditerr.KindInvalidPreviousHash, errInvalidPreviousHash).WithSeq(rec.Sequence),
				}
			}
		}

		want, err := recordHash(rec)
		if err != nil {
			return ValidationResult{
				OK:             false,
				FailedSequence: rec.Sequence,
				Err:            auditerr.New("hashchain.Validate", auditerr.KindCanonicalization, err).WithSeq(rec.Sequence),
			}
		}
		if !constantTimeEqual(want, rec.Hash) {
			return ValidationResult{
				OK:             false,
				FailedSequence: rec.Sequence,
				ExpectedHash:   want,
				ActualHash:     rec.Hash,
				Err:            auditerr.New("hashchain.Validate", auditerr.KindHashMismatch, errHashMismatch).WithSeq(rec.Sequence),
			}
		}

		r := rec
		prev = &r
	}

	return ValidationResult{OK: true}
}

func recordHash(rec Record) ([32]byte, error) {
	return RecordHash(rec)
}

// RecordHash recomputes a record's hash from its fields using the
// chain's preimage format (sequence|timestamp|event_type|canonical
// payload|previous_hash). It is exported so a verifier can recompute a
// claimed hash without holding a live Chain.
func RecordHash(rec Record) ([32]byte, error) {
	canon, err := canonicalize.JCS(rec.Payload)
	if err != nil {
		return [32]byte{}, err
	}

	preimage := strconv.FormatUint(rec.Sequence, 10) + "|" +
		rec.Timestamp.UTC().Format(timestampLayout) + "|" +
		rec.EventType + "|" +
		string(canon) + "|" +
		hex.EncodeToString(rec.PreviousHash[:])

	return sha256Sum([]byte(preimage)), nil
}
