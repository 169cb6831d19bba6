// Package auditconfig loads the runtime configuration an auditcore
// deployment needs: environment variables select the signing algorithm
// and sealing thresholds (the storage provider is selected separately,
// by pkg/storage/factory from its own variables); an optional YAML policy
// file supplies the sealer schedule and retention policy per
// jurisdiction.
package auditconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/ledgerseal/auditcore/pkg/signer"
)

// Config holds the environment-derived settings an Engine is
// constructed from.
type Config struct {
	GenesisVersion string
	KeyAlgorithm   signer.Algorithm
	KeyTTL         time.Duration

	SealInterval    time.Duration
	SealMaxUnsealed uint64

	BackoffBaseMs      int64
	BackoffMaxMs       int64
	BackoffMaxJitterMs int64
	BackoffMaxAttempts int
}

// Load reads configuration from environment variables, falling back to
// conservative defaults for anything unset.
func Load() *Config {
	return &Config{
		GenesisVersion: envString("AUDITCORE_GENESIS_VERSION", "1"),
		KeyAlgorithm:   signer.Algorithm(envString("AUDITCORE_KEY_ALGORITHM", string(signer.AlgorithmP256SHA256))),
		KeyTTL:         envDuration("AUDITCORE_KEY_TTL", 90*24*time.Hour),

		SealInterval:    envDuration("AUDITCORE_SEAL_INTERVAL", 5*time.Minute),
		SealMaxUnsealed: envUint("AUDITCORE_SEAL_MAX_UNSEALED", 1000),

		BackoffBaseMs:      envInt64("AUDITCORE_BACKOFF_BASE_MS", 200),
		BackoffMaxMs:       envInt64("AUDITCORE_BACKOFF_MAX_MS", 10_000),
		BackoffMaxJitterMs: envInt64("AUDITCORE_BACKOFF_MAX_JITTER_MS", 250),
		BackoffMaxAttempts: int(envInt64("AUDITCORE_BACKOFF_MAX_ATTEMPTS", 5)),
	}
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64(name string, fallback int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envUint(name string, fallback uint64) uint64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
