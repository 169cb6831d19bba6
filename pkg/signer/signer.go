// Package signer manages ECDSA signing keys and produces/verifies
// detached signatures over arbitrary byte strings, with single-active-key
// rotation semantics: exactly one key is active at a time, and retired
// keys remain valid for verification by key ID.
package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

// Algorithm identifies a curve/hash pairing. The encoding chosen for a
// given Algorithm (DER) is stable across the repository.
type Algorithm string

const (
	AlgorithmP256SHA256 Algorithm = "ECDSA-P256-SHA256"
	AlgorithmP384SHA384 Algorithm = "ECDSA-P384-SHA384"
)

// KeyStatus tracks a key's lifecycle position.
type KeyStatus string

const (
	StatusActive  KeyStatus = "active"
	StatusRotated KeyStatus = "rotated"
	StatusRevoked KeyStatus = "revoked"
	StatusExpired KeyStatus = "expired"
)

// SigningKey is one ECDSA key managed by a KeyRing.
type SigningKey struct {
	KeyID     string
	Algorithm Algorithm
	Status    KeyStatus
	Private   *ecdsa.PrivateKey
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PublicKey returns the exported public material for this key.
func (k *SigningKey) PublicKey() *ecdsa.PublicKey {
	return &k.Private.PublicKey
}

// Signature is a detached signature over some byte string.
type Signature struct {
	Bytes     []byte
	KeyID     string
	Algorithm Algorithm
	SignedAt  time.Time
}

// Verdict is the outcome of a verify operation.
type Verdict struct {
	Valid bool
	KeyID string
	Err   error
}

// KeyRing manages a set of SigningKeys with a single-active-key
// invariant: generate_key/rotate_key retire any previously active key to
// StatusRotated before activating the new one.
type KeyRing struct {
	mu          sync.RWMutex
	keys        map[string]*SigningKey
	activeKeyID string
	defaultAlgo Algorithm
	defaultTTL  time.Duration
}

// NewKeyRing creates an empty KeyRing. defaultAlgo and defaultTTL are
// used by GenerateKey when not overridden.
func NewKeyRing(defaultAlgo Algorithm, defaultTTL time.Duration) *KeyRing {
	return &KeyRing{
		keys:        make(map[string]*SigningKey),
		defaultAlgo: defaultAlgo,
		defaultTTL:  defaultTTL,
	}
}

func curveFor(algo Algorithm) (elliptic.Curve, error) {
	switch algo {
	case AlgorithmP256SHA256:
		return elliptic.P256(), nil
	case AlgorithmP384SHA384:
		return elliptic.P384(), nil
	default:
		return nil, auditerr.New("signer.curveFor", auditerr.KindUnsupportedAlgo, errUnsupportedAlgorithm)
	}
}

// GenerateKey creates a new key using the KeyRing's default algorithm,
// sets it active, and retires any previously active key to StatusRotated.
func (r *KeyRing) GenerateKey() (*SigningKey, error) {
	return r.generateKey(r.defaultAlgo)
}

// GenerateKeyWithAlgorithm is GenerateKey with an explicit algorithm.
func (r *KeyRing) GenerateKeyWithAlgorithm(algo Algorithm) (*SigningKey, error) {
	return r.generateKey(algo)
}

func (r *KeyRing) generateKey(algo Algorithm) (*SigningKey, error) {
	curve, err := curveFor(algo)
	if err != nil {
		return nil, err
	}

	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, auditerr.New("signer.GenerateKey", auditerr.KindStorageFailure, err)
	}

	now := time.Now().UTC()
	key := &SigningKey{
		KeyID:     uuid.NewString(),
		Algorithm: algo,
		Status:    StatusActive,
		Private:   priv,
		CreatedAt: now,
		ExpiresAt: now.Add(r.defaultTTL),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeKeyID != "" {
		if prev, ok := r.keys[r.activeKeyID]; ok && prev.Status == StatusActive {
			prev.Status = StatusRotated
		}
	}
	r.keys[key.KeyID] = key
	r.activeKeyID = key.KeyID
	return key, nil
}

// RotateKey is an alias for GenerateKey: rotation is just generating a
// new active key with the ring's default algorithm.
func (r *KeyRing) RotateKey() (*SigningKey, error) {
	return r.GenerateKey()
}

// RevokeKey marks key as revoked. A revoked key can no longer sign, and
// if it was active the ring is left with no active key.
func (r *KeyRing) RevokeKey(keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[keyID]
	if !ok {
		return auditerr.New("signer.RevokeKey", auditerr.KindUnknownKeyID, errUnknownKeyID)
	}
	key.Status = StatusRevoked
	if r.activeKeyID == keyID {
		r.activeKeyID = ""
	}
	return nil
}

// NeedsRotation reports whether there is no active key, or the active
// key's expiry has passed.
func (r *KeyRing) NeedsRotation() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.activeKeyID == "" {
		return true
	}
	key, ok := r.keys[r.activeKeyID]
	if !ok {
		return true
	}
	return !time.Now().UTC().Before(key.ExpiresAt)
}

// Sign signs data with the active key.
func (r *KeyRing) Sign(data []byte) (*Signature, error) {
	r.mu.RLock()
	activeID := r.activeKeyID
	r.mu.RUnlock()

	if activeID == "" {
		return nil, auditerr.New("signer.Sign", auditerr.KindNoActiveKey, errNoActiveKey)
	}
	return r.SignWith(activeID, data)
}

// SignWith signs data with a specific key, bypassing active-key
// selection. Fails if keyID is unknown or revoked.
func (r *KeyRing) SignWith(keyID string, data []byte) (*Signature, error) {
	r.mu.RLock()
	key, ok := r.keys[keyID]
	r.mu.RUnlock()

	if !ok {
		return nil, auditerr.New("signer.SignWith", auditerr.KindUnknownKeyID, errUnknownKeyID)
	}
	if key.Status == StatusRevoked {
		return nil, auditerr.New("signer.SignWith", auditerr.KindRevokedKey, errRevokedKey)
	}

	digest, err := digestFor(key.Algorithm, data)
	if err != nil {
		return nil, err
	}

	der, err := ecdsa.SignASN1(rand.Reader, key.Private, digest)
	if err != nil {
		return nil, auditerr.New("signer.SignWith", auditerr.KindStorageFailure, err)
	}

	return &Signature{
		Bytes:     der,
		KeyID:     key.KeyID,
		Algorithm: key.Algorithm,
		SignedAt:  time.Now().UTC(),
	}, nil
}

// Verify checks sig against data using the key recorded in the ring.
func (r *KeyRing) Verify(data []byte, sig *Signature) Verdict {
	r.mu.RLock()
	key, ok := r.keys[sig.KeyID]
	r.mu.RUnlock()

	if !ok {
		return Verdict{Valid: false, KeyID: sig.KeyID, Err: auditerr.New("signer.Verify", auditerr.KindUnknownKeyID, errUnknownKeyID)}
	}
	return VerifyWithPublicKey(data, sig, key.PublicKey())
}

// VerifyWithPublicKey verifies sig against data using only a public key,
// enabling verification by parties who never see the private material.
func VerifyWithPublicKey(data []byte, sig *Signature, pub *ecdsa.PublicKey) Verdict {
	digest, err := digestFor(sig.Algorithm, data)
	if err != nil {
		return Verdict{Valid: false, KeyID: sig.KeyID, Err: err}
	}

	ok := ecdsa.VerifyASN1(pub, digest, sig.Bytes)
	if !ok {
		return Verdict{
			Valid: false,
			KeyID: sig.KeyID,
			Err:   auditerr.New("signer.VerifyWithPublicKey", auditerr.KindSignatureInvalid, errSignatureInvalid),
		}
	}
	return Verdict{Valid: true, KeyID: sig.KeyID}
}

// ExportPublicKeys returns the public material of every key in the ring,
// keyed by key ID. Private material never leaves the ring.
func (r *KeyRing) ExportPublicKeys() map[string]*ecdsa.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*ecdsa.PublicKey, len(r.keys))
	for id, k := range r.keys {
		out[id] = k.PublicKey()
	}
	return out
}

func digestFor(algo Algorithm, data []byte) ([]byte, error) {
	switch algo {
	case AlgorithmP256SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case AlgorithmP384SHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	default:
		return nil, auditerr.New("signer.digestFor", auditerr.KindUnsupportedAlgo, errUnsupportedAlgorithm)
	}
}

// MarshalPublicKeyDER encodes pub as a PKIX DER public key, the stable
// wire form public keys are exported and persisted in.
func MarshalPublicKeyDER(pub *ecdsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePublicKeyDER decodes a PKIX DER public key produced by
// MarshalPublicKeyDER.
func ParsePublicKeyDER(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errNotECDSAKey
	}
	return ecPub, nil
}
