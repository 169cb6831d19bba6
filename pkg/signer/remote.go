package signer

import (
	"context"
	"time"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
)

// RemoteSigner delegates signing to an external key-management service;
// the private key material never enters process memory. Implementations
// wrap a provider SDK client (e.g. a cloud KMS asymmetric-sign API).
type RemoteSigner interface {
	// SignRemote signs data under keyID and returns the DER signature
	// bytes along with the algorithm the remote key actually used.
	SignRemote(ctx context.Context, keyID string, data []byte) (der []byte, algo Algorithm, err error)

	// PublicKeyRemote fetches the DER-encoded public key for keyID.
	PublicKeyRemote(ctx context.Context, keyID string) (der []byte, err error)
}

// DelegatingKeyRing signs through a RemoteSigner instead of holding
// private key material locally. It offers context-taking Sign and
// SignWith methods only; verification is done with VerifyWithPublicKey
// against the remote key's public key.
type DelegatingKeyRing struct {
	remote         RemoteSigner
	activeKeyID    string
	algorithmByKey map[string]Algorithm
}

// NewDelegatingKeyRing wraps remote, with activeKeyID as the key used by
// Sign.
func NewDelegatingKeyRing(remote RemoteSigner, activeKeyID string) *DelegatingKeyRing {
	return &DelegatingKeyRing{
		remote:         remote,
		activeKeyID:    activeKeyID,
		algorithmByKey: make(map[string]Algorithm),
	}
}

// Sign delegates to the configured active remote key.
func (d *DelegatingKeyRing) Sign(ctx context.Context, data []byte) (*Signature, error) {
	return d.SignWith(ctx, d.activeKeyID, data)
}

// SignWith delegates to a specific remote key.
func (d *DelegatingKeyRing) SignWith(ctx context.Context, keyID string, data []byte) (*Signature, error) {
	der, algo, err := d.remote.SignRemote(ctx, keyID, data)
	if err != nil {
		return nil, auditerr.New("signer.DelegatingKeyRing.SignWith", auditerr.KindConnectionFailed, err)
	}
	d.algorithmByKey[keyID] = algo
	return &Signature{Bytes: der, KeyID: keyID, Algorithm: algo, SignedAt: time.Now().UTC()}, nil
}
