package merkle

import "errors"

var (
	errEmptyTree      = errors.New("merkle: tree has no leaves")
	errLeafIndexRange = errors.New("merkle: leaf index out of range")
)
