package signer

import "errors"

var (
	errUnsupportedAlgorithm = errors.New("signer: unsupported algorithm")
	errNoActiveKey          = errors.New("signer: no active key")
	errUnknownKeyID         = errors.New("signer: unknown key id")
	errRevokedKey           = errors.New("signer: key is revoked")
	errSignatureInvalid     = errors.New("signer: signature verification failed")
	errNotECDSAKey          = errors.New("signer: decoded public key is not ECDSA")
)
