package auditcore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffParams identifies a single seal retry attempt for deterministic
// jitter computation.
type BackoffParams struct {
	ChainID      string
	AttemptIndex int
}

// BackoffPolicy parameterizes exponential backoff with deterministic
// jitter around retried Seal attempts.
type BackoffPolicy struct {
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
	MaxAttempts int
}

// DefaultBackoffPolicy is a conservative policy for sealing against a
// storage backend that is expected to recover within seconds.
var DefaultBackoffPolicy = BackoffPolicy{
	BaseMs:      200,
	MaxMs:       10_000,
	MaxJitterMs: 250,
	MaxAttempts: 5,
}

func (p BackoffPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// ComputeBackoff returns the delay before retrying a failed Seal,
// exponential in the attempt index and capped at MaxMs, plus
// deterministic jitter derived from the chain identity and attempt
// index so the same failing sequence retries on the same schedule
// across process restarts.
func ComputeBackoff(params BackoffParams, policy BackoffPolicy) time.Duration {
	factor := int64(1)
	if params.AttemptIndex > 0 {
		if params.AttemptIndex > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << params.AttemptIndex
		}
	}

	baseDelay := policy.BaseMs * factor
	if policy.MaxMs > 0 && baseDelay > policy.MaxMs {
		baseDelay = policy.MaxMs
	}

	jitter := computeDeterministicJitter(params, policy)
	return time.Duration(baseDelay+jitter) * time.Millisecond
}

func computeDeterministicJitter(params BackoffParams, policy BackoffPolicy) int64 {
	if policy.MaxJitterMs == 0 {
		return 0
	}

	seed := fmt.Sprintf("%s:%d", params.ChainID, params.AttemptIndex)
	hash := sha256.Sum256([]byte(seed))
	jitterBasis := binary.BigEndian.Uint64(hash[:8])

	return int64(jitterBasis % uint64(policy.MaxJitterMs)) //nolint:gosec // MaxJitterMs is always positive
}
