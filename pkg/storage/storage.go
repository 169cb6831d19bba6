// Package storage defines the provider-agnostic immutable object storage
// abstraction checkpoints and public-key records are written to, and the
// capability descriptor callers use to judge whether a given provider
// actually delivers WORM guarantees.
package storage

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

// Capabilities describes what a storage provider actually guarantees.
// SupportsRetention and EnforcesRetention are deliberately distinct:
// a provider can track a retention policy (SupportsRetention) without
// any principal being physically prevented from deleting the object
// before it expires (EnforcesRetention) — only compliance-mode object
// lock variants set both.
type Capabilities struct {
	ProviderName      string
	SupportsWORM      bool
	SupportsLegalHold bool
	SupportsRetention bool
	EnforcesRetention bool
	MaxObjectSize     int64
}

// RetentionMode distinguishes a hard compliance lock from an
// above-the-storage-layer governance policy.
type RetentionMode string

const (
	RetentionCompliance RetentionMode = "compliance"
	RetentionGovernance RetentionMode = "governance"
)

// Retention parameterizes a store call's retention request.
type Retention struct {
	Days int
	Mode RetentionMode
}

// StoreOptions are optional parameters to Store.
type StoreOptions struct {
	Retention   *Retention
	ContentType string
	Metadata    map[string]string
}

// StoredObject is the metadata record returned after a successful Store.
type StoredObject struct {
	Key         string
	ContentHash [32]byte
	Size        int64
	StoredAt    time.Time
	Retention   *Retention
	LegalHold   bool
}

// RetrievedObject is the payload and metadata returned by Retrieve.
type RetrievedObject struct {
	Data     []byte
	Metadata map[string]string
}

// Store is the provider-agnostic immutable object storage contract.
// Implementations live in sibling packages (s3store, gcsstore,
// sqlitestore, pgstore, memstore).
type Store interface {
	// Store writes data at key exactly once. Repeating an existing key
	// fails with auditerr.KindAlreadyExists.
	Store(ctx context.Context, key string, data []byte, opts StoreOptions) (*StoredObject, error)

	// Retrieve fetches data and metadata at key, failing with
	// auditerr.KindNotFound if absent.
	Retrieve(ctx context.Context, key string) (*RetrievedObject, error)

	// VerifyIntegrity re-reads key and recomputes its SHA-256, comparing
	// constant-time against the hash recorded at Store time.
	VerifyIntegrity(ctx context.Context, key string) (bool, error)

	// Exists reports whether key has been stored.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns up to limit keys with the given prefix (all keys if
	// prefix is empty). limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	// ApplyLegalHold and RemoveLegalHold fail with
	// auditerr.KindNotSupported if Capabilities().SupportsLegalHold is
	// false.
	ApplyLegalHold(ctx context.Context, key string) error
	RemoveLegalHold(ctx context.Context, key string) error

	// HealthCheck reports whether the provider is currently reachable.
	HealthCheck(ctx context.Context) error

	// Capabilities reports what this provider guarantees.
	Capabilities() Capabilities
}

// ContentHash computes the SHA-256 digest Store records for data.
func ContentHash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqual compares two content hashes without leaking timing
// information about where they first differ.
func ConstantTimeEqual(a, b [32]byte) bool {
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// NotSupported builds the standard NOT_SUPPORTED error a provider
// returns from a capability it does not implement.
func NotSupported(op string) error {
	return auditerr.New(op, auditerr.KindNotSupported, errCapabilityNotSupported)
}
