//go:build !gcp

package factory

import (
	"context"
	"fmt"

	"github.com/ledgerseal/auditcore/pkg/storage"
)

func newGCSFromEnv(ctx context.Context) (storage.Store, error) {
	return nil, fmt.Errorf("storage/factory: GCS storage is not enabled in this build (use -tags gcp)")
}
