package signer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// persistedKey is the on-disk representation of one SigningKey. The
// private key DER is AES-256-GCM encrypted under a key derived from the
// keystore master secret via HKDF-SHA256.
type persistedKey struct {
	KeyID          string    `json:"key_id"`
	Algorithm      Algorithm `json:"algorithm"`
	Status         KeyStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	EncryptedDERB64 string   `json:"encrypted_der_b64"`
}

type persistedKeystore struct {
	ActiveKeyID string         `json:"active_key_id"`
	Keys        []persistedKey `json:"keys"`
}

// LocalKeyManager is a file-backed KeyRing whose private key material is
// encrypted at rest. A single master secret (e.g. loaded from an
// environment variable or a mounted secret file) derives the AES key via
// HKDF; the keystore file itself carries no secret material in the clear.
type LocalKeyManager struct {
	mu     sync.Mutex
	path   string
	aesKey [32]byte
	ring   *KeyRing
}

// NewLocalKeyManager loads (or creates) a file-backed keystore at path,
// deriving its encryption key from masterSecret via HKDF-SHA256 with the
// fixed info string "auditcore-signer-keystore".
func NewLocalKeyManager(path string, masterSecret []byte, defaultAlgo Algorithm, defaultTTL time.Duration) (*LocalKeyManager, error) {
	aesKey, err := deriveKeystoreKey(masterSecret)
	if err != nil {
		return nil, err
	}

	m := &LocalKeyManager{
		path:   path,
		aesKey: aesKey,
		ring:   NewKeyRing(defaultAlgo, defaultTTL),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("signer: create keystore dir: %w", err)
		}
		if err := m.persist(); err != nil {
			return nil, err
		}
		return m, nil
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Ring returns the underlying KeyRing for sign/verify/rotate operations.
// Mutations made directly on the returned ring (GenerateKey, RotateKey,
// RevokeKey) are not written to disk; LocalKeyManager.GenerateKey and
// LocalKeyManager.RevokeKey persist the keystore after mutating it.
func (m *LocalKeyManager) Ring() *KeyRing {
	return m.ring
}

// GenerateKey generates a new active key and persists the keystore.
func (m *LocalKeyManager) GenerateKey() (*SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.ring.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return key, nil
}

// RevokeKey revokes keyID and persists the keystore.
func (m *LocalKeyManager) RevokeKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ring.RevokeKey(keyID); err != nil {
		return err
	}
	return m.persist()
}

func (m *LocalKeyManager) persist() error {
	m.ring.mu.RLock()
	keys := make([]persistedKey, 0, len(m.ring.keys))
	for _, k := range m.ring.keys {
		der, err := x509.MarshalECPrivateKey(k.Private)
		if err != nil {
			m.ring.mu.RUnlock()
			return fmt.Errorf("signer: marshal private key %s: %w", k.KeyID, err)
		}
		enc, err := aesGCMEncrypt(m.aesKey[:], der)
		if err != nil {
			m.ring.mu.RUnlock()
			return err
		}
		keys = append(keys, persistedKey{
			KeyID:           k.KeyID,
			Algorithm:       k.Algorithm,
			Status:          k.Status,
			CreatedAt:       k.CreatedAt,
			ExpiresAt:       k.ExpiresAt,
			EncryptedDERB64: base64.StdEncoding.EncodeToString(enc),
		})
	}
	activeID := m.ring.activeKeyID
	m.ring.mu.RUnlock()

	store := persistedKeystore{ActiveKeyID: activeID, Keys: keys}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("signer: marshal keystore: %w", err)
	}
	return os.WriteFile(m.path, data, 0600)
}

func (m *LocalKeyManager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("signer: read keystore: %w", err)
	}

	var store persistedKeystore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("signer: parse keystore: %w", err)
	}

	m.ring.mu.Lock()
	defer m.ring.mu.Unlock()

	for _, pk := range store.Keys {
		enc, err := base64.StdEncoding.DecodeString(pk.EncryptedDERB64)
		if err != nil {
			return fmt.Errorf("signer: decode key %s: %w", pk.KeyID, err)
		}
		der, err := aesGCMDecrypt(m.aesKey[:], enc)
		if err != nil {
			return fmt.Errorf("signer: decrypt key %s: %w", pk.KeyID, err)
		}
		priv, err := x509.ParseECPrivateKey(der)
		if err != nil {
			return fmt.Errorf("signer: parse key %s: %w", pk.KeyID, err)
		}

		m.ring.keys[pk.KeyID] = &SigningKey{
			KeyID:     pk.KeyID,
			Algorithm: pk.Algorithm,
			Status:    pk.Status,
			Private:   priv,
			CreatedAt: pk.CreatedAt,
			ExpiresAt: pk.ExpiresAt,
		}
	}
	m.ring.activeKeyID = store.ActiveKeyID
	return nil
}

func deriveKeystoreKey(masterSecret []byte) ([32]byte, error) {
	var out [32]byte
	kdf := hkdf.New(sha256.New, masterSecret, nil, []byte("auditcore-signer-keystore"))
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("signer: derive keystore key: %w", err)
	}
	return out, nil
}

func aesGCMEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("signer: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("signer: gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("signer: nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func aesGCMDecrypt(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("signer: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("signer: gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("signer: ciphertext too short")
	}
	nonce, ct := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}
