package sqlitestore

import "errors"

var errKeyNotFound = errors.New("sqlitestore: key not found")
