// Package auditerr centralizes the tagged error-kind taxonomy used across
// the audit core, instead of re-implementing ad hoc error classification
// at every call site.
package auditerr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error classification. Callers should
// branch on Kind (via errors.As into *Error), never on error strings.
type Kind string

const (
	// Input errors: caller's fault, surfaced directly.
	KindCanonicalization Kind = "CANONICALIZATION_ERROR"
	KindInvalidTimestamp Kind = "INVALID_TIMESTAMP"
	KindUnknownKeyID     Kind = "UNKNOWN_KEY_ID"
	KindLeafIndexRange   Kind = "LEAF_INDEX_OUT_OF_RANGE"

	// Integrity errors: system-detected corruption, never auto-remediated.
	KindHashMismatch        Kind = "HASH_MISMATCH"
	KindInvalidPreviousHash Kind = "INVALID_PREVIOUS_HASH"
	KindSequenceGap         Kind = "SEQUENCE_GAP"
	KindInvalidGenesis      Kind = "INVALID_GENESIS"
	KindProofMismatch       Kind = "PROOF_MISMATCH"
	KindSignatureInvalid    Kind = "SIGNATURE_VERIFICATION_FAILED"
	KindIntegrityFailed     Kind = "INTEGRITY_FAILED"
	KindMalformedProof      Kind = "MALFORMED_PROOF"
	KindEmptyTree           Kind = "EMPTY_TREE"

	// State errors.
	KindNoActiveKey   Kind = "NO_ACTIVE_KEY"
	KindRevokedKey    Kind = "REVOKED_KEY"
	KindAlreadyExists Kind = "ALREADY_EXISTS"
	KindNotFound      Kind = "NOT_FOUND"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindUnknown       Kind = "UNKNOWN"

	// Capability errors.
	KindNotSupported Kind = "NOT_SUPPORTED"

	// Transient errors: retry with backoff.
	KindConnectionFailed Kind = "CONNECTION_FAILED"
	KindStorageFailure   Kind = "STORAGE_FAILURE"

	// Policy errors: surfaced, never overridden by the core.
	KindRetentionActive  Kind = "RETENTION_ACTIVE"
	KindLegalHoldActive  Kind = "LEGAL_HOLD_ACTIVE"

	// Sealer-specific.
	KindEmptyRange         Kind = "EMPTY_RANGE"
	KindUnsupportedAlgo    Kind = "UNSUPPORTED_ALGORITHM"
)

// Error is the tagged error type every public operation in the core
// returns on failure. It wraps an underlying error (often from a
// provider SDK) and attaches a stable Kind plus the operation name.
type Error struct {
	Kind Kind
	Op   string // e.g. "hashchain.Append", "storage.Store"
	Seq  *uint64 // affected sequence number, if applicable
	Err  error
}

func (e *Error) Error() string {
	if e.Seq != nil {
		return fmt.Sprintf("%s: %s (sequence %d): %v", e.Op, e.Kind, *e.Seq, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithSeq attaches the affected sequence number for audit logging.
func (e *Error) WithSeq(seq uint64) *Error {
	e.Seq = &seq
	return e
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Retryable reports whether the error kind is safe to retry with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConnectionFailed, KindStorageFailure:
		return true
	default:
		return false
	}
}
