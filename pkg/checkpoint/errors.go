package checkpoint

import "errors"

var (
	errEmptyRange         = errors.New("checkpoint: sequence range is empty, nothing to seal")
	errIncompatibleSchema = errors.New("checkpoint: stored schema_version is incompatible with this module's schema")
)
