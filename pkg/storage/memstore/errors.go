package memstore

import "errors"

var (
	errAlreadyExists = errors.New("memstore: key already exists")
	errNotFound      = errors.New("memstore: key not found")
)
