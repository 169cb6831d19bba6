package pgstore

import "errors"

var errKeyNotFound = errors.New("pgstore: key not found")
