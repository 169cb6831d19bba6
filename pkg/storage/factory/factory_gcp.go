//go:build gcp

package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/ledgerseal/auditcore/pkg/storage"
	"github.com/ledgerseal/auditcore/pkg/storage/gcsstore"
)

func newGCSFromEnv(ctx context.Context) (storage.Store, error) {
	bucket := os.Getenv("AUDITCORE_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("storage/factory: AUDITCORE_GCS_BUCKET is required for GCS storage")
	}
	return gcsstore.New(ctx, gcsstore.Config{
		Bucket: bucket,
		Prefix: os.Getenv("AUDITCORE_GCS_PREFIX"),
	})
}
