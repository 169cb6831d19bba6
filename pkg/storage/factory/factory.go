// Package factory selects and constructs a storage.Store from
// environment variables, the way the teacher's artifact store factory
// selects between filesystem, S3, and GCS backends.
package factory

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/ledgerseal/auditcore/pkg/storage"
	"github.com/ledgerseal/auditcore/pkg/storage/memstore"
	"github.com/ledgerseal/auditcore/pkg/storage/pgstore"
	"github.com/ledgerseal/auditcore/pkg/storage/s3store"
	"github.com/ledgerseal/auditcore/pkg/storage/sqlitestore"
)

// ProviderType selects a storage.Store backend.
type ProviderType string

const (
	ProviderMemory   ProviderType = "memory"
	ProviderSQLite   ProviderType = "sqlite"
	ProviderPostgres ProviderType = "postgres"
	ProviderS3       ProviderType = "s3"
	ProviderGCS      ProviderType = "gcs"
)

// NewFromEnv builds a storage.Store from environment variables.
//
// Environment variables:
//   - AUDITCORE_STORAGE_PROVIDER: "memory" (default), "sqlite", "postgres", "s3", or "gcs"
//
// For sqlite:
//   - AUDITCORE_SQLITE_PATH (default "auditcore.db")
//
// For postgres:
//   - AUDITCORE_POSTGRES_DSN (required)
//
// For s3:
//   - AUDITCORE_S3_BUCKET (required)
//   - AUDITCORE_S3_REGION (default "us-east-1")
//   - AUDITCORE_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - AUDITCORE_S3_PREFIX (optional)
//   - AUDITCORE_S3_COMPLIANCE_MODE ("true" for Object Lock compliance mode)
//
// For gcs (requires building with -tags gcp):
//   - AUDITCORE_GCS_BUCKET (required)
//   - AUDITCORE_GCS_PREFIX (optional)
func NewFromEnv(ctx context.Context) (storage.Store, error) {
	provider := ProviderType(os.Getenv("AUDITCORE_STORAGE_PROVIDER"))
	if provider == "" {
		provider = ProviderMemory
	}

	switch provider {
	case ProviderMemory:
		return memstore.New(), nil
	case ProviderSQLite:
		return newSQLiteFromEnv()
	case ProviderPostgres:
		return newPostgresFromEnv()
	case ProviderS3:
		return newS3FromEnv(ctx)
	case ProviderGCS:
		return newGCSFromEnv(ctx)
	default:
		return nil, fmt.Errorf("storage/factory: unsupported provider %q", provider)
	}
}

func newSQLiteFromEnv() (storage.Store, error) {
	path := os.Getenv("AUDITCORE_SQLITE_PATH")
	if path == "" {
		path = "auditcore.db"
	}
	return sqlitestore.Open(path)
}

func newPostgresFromEnv() (storage.Store, error) {
	dsn := os.Getenv("AUDITCORE_POSTGRES_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("storage/factory: AUDITCORE_POSTGRES_DSN is required for postgres storage")
	}
	return pgstore.Open(dsn)
}

func newS3FromEnv(ctx context.Context) (storage.Store, error) {
	bucket := os.Getenv("AUDITCORE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("storage/factory: AUDITCORE_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("AUDITCORE_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	return s3store.New(ctx, s3store.Config{
		Bucket:         bucket,
		Region:         region,
		Endpoint:       os.Getenv("AUDITCORE_S3_ENDPOINT"),
		Prefix:         os.Getenv("AUDITCORE_S3_PREFIX"),
		ComplianceMode: envBool("AUDITCORE_S3_COMPLIANCE_MODE"),
	})
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
