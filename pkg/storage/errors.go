package storage

import "errors"

var errCapabilityNotSupported = errors.New("storage: capability not supported by this provider")
