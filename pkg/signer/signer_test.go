package signer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

func TestKeyRing_GenerateKeyRotatesPreviousActive(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)

	first, err := ring.GenerateKey()
	require.NoError(t, err)
	assert.Equal(t, StatusActive, first.Status)

	second, err := ring.GenerateKey()
	require.NoError(t, err)
	assert.Equal(t, StatusActive, second.Status)
	assert.Equal(t, StatusRotated, ring.keys[first.KeyID].Status)
}

func TestKeyRing_SignAndVerify(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	_, err := ring.GenerateKey()
	require.NoError(t, err)

	data := []byte("evidence payload")
	sig, err := ring.Sign(data)
	require.NoError(t, err)

	verdict := ring.Verify(data, sig)
	assert.True(t, verdict.Valid)
}

func TestKeyRing_Sign_NoActiveKeyFails(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	_, err := ring.Sign([]byte("x"))
	require.Error(t, err)
	assert.Equal(t, auditerr.KindNoActiveKey, auditerr.KindOf(err))
}

func TestKeyRing_SignWith_RevokedKeyFails(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, ring.RevokeKey(key.KeyID))

	_, err = ring.SignWith(key.KeyID, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, auditerr.KindRevokedKey, auditerr.KindOf(err))
}

func TestKeyRing_RevokeActiveKeyClearsActive(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, ring.RevokeKey(key.KeyID))

	assert.True(t, ring.NeedsRotation())
	_, err = ring.Sign([]byte("x"))
	require.Error(t, err)
	assert.Equal(t, auditerr.KindNoActiveKey, auditerr.KindOf(err))
}

func TestKeyRing_OldSignatureVerifiesAfterRotation(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	oldKey, err := ring.GenerateKey()
	require.NoError(t, err)

	data := []byte("pre-rotation evidence")
	sig, err := ring.SignWith(oldKey.KeyID, data)
	require.NoError(t, err)

	_, err = ring.GenerateKey()
	require.NoError(t, err)

	verdict := ring.Verify(data, sig)
	assert.True(t, verdict.Valid, "signatures made by a rotated-out key must still verify")
}

func TestKeyRing_NeedsRotation_WhenExpired(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, -time.Hour)
	_, err := ring.GenerateKey()
	require.NoError(t, err)
	assert.True(t, ring.NeedsRotation())
}

func TestVerifyWithPublicKey_UnknownSignerHasOnlyPublicMaterial(t *testing.T) {
	ring := NewKeyRing(AlgorithmP384SHA384, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	data := []byte("evidence")
	sig, err := ring.Sign(data)
	require.NoError(t, err)

	verdict := VerifyWithPublicKey(data, sig, key.PublicKey())
	assert.True(t, verdict.Valid)
}

func TestVerify_TamperedDataFails(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	sig, err := ring.Sign([]byte("original"))
	require.NoError(t, err)

	verdict := VerifyWithPublicKey([]byte("tampered"), sig, key.PublicKey())
	assert.False(t, verdict.Valid)
	assert.Equal(t, auditerr.KindSignatureInvalid, auditerr.KindOf(verdict.Err))
}

func TestExportPublicKeys_NeverExposesPrivateMaterial(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	exported := ring.ExportPublicKeys()
	require.Contains(t, exported, key.KeyID)
	assert.Equal(t, key.PublicKey(), exported[key.KeyID])
}

func TestMarshalParsePublicKeyDER_RoundTrip(t *testing.T) {
	ring := NewKeyRing(AlgorithmP256SHA256, time.Hour)
	key, err := ring.GenerateKey()
	require.NoError(t, err)

	der, err := MarshalPublicKeyDER(key.PublicKey())
	require.NoError(t, err)

	parsed, err := ParsePublicKeyDER(der)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed)
}

func TestLocalKeyManager_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")
	secret := []byte("test-master-secret-do-not-use-in-prod")

	m1, err := NewLocalKeyManager(path, secret, AlgorithmP256SHA256, time.Hour)
	require.NoError(t, err)
	key, err := m1.GenerateKey()
	require.NoError(t, err)

	data := []byte("sealed checkpoint bytes")
	sig, err := m1.Ring().Sign(data)
	require.NoError(t, err)

	m2, err := NewLocalKeyManager(path, secret, AlgorithmP256SHA256, time.Hour)
	require.NoError(t, err)

	verdict := m2.Ring().Verify(data, sig)
	assert.True(t, verdict.Valid)
	assert.Equal(t, key.KeyID, m2.Ring().keys[key.KeyID].KeyID)
}

func TestLocalKeyManager_WrongSecretFailsToDecrypt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")

	m1, err := NewLocalKeyManager(path, []byte("secret-one"), AlgorithmP256SHA256, time.Hour)
	require.NoError(t, err)
	_, err = m1.GenerateKey()
	require.NoError(t, err)

	_, err = NewLocalKeyManager(path, []byte("secret-two"), AlgorithmP256SHA256, time.Hour)
	require.Error(t, err)
}

func TestLocalKeyManager_KeystoreFileHasRestrictedPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")
	m, err := NewLocalKeyManager(path, []byte("secret"), AlgorithmP256SHA256, time.Hour)
	require.NoError(t, err)
	_, err = m.GenerateKey()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
