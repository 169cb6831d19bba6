package hashchain

import "errors"

var (
	errInvalidGenesis      = errors.New("hashchain: genesis record previous_hash is not the zero sentinel")
	errSequenceGap         = errors.New("hashchain: sequence is not contiguous with previous record")
	errInvalidPreviousHash = errors.New("hashchain: previous_hash does not match previous record's hash")
	errHashMismatch        = errors.New("hashchain: recomputed hash does not match stored hash")
)
