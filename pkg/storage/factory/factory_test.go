package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_DefaultsToMemory(t *testing.T) {
	t.Setenv("AUDITCORE_STORAGE_PROVIDER", "")

	s, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Capabilities().ProviderName)
}

func TestNewFromEnv_Sqlite(t *testing.T) {
	t.Setenv("AUDITCORE_STORAGE_PROVIDER", "sqlite")
	t.Setenv("AUDITCORE_SQLITE_PATH", "file::memory:?cache=shared")

	s, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Capabilities().ProviderName)
}

func TestNewFromEnv_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("AUDITCORE_STORAGE_PROVIDER", "postgres")
	t.Setenv("AUDITCORE_POSTGRES_DSN", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
}

func TestNewFromEnv_S3RequiresBucket(t *testing.T) {
	t.Setenv("AUDITCORE_STORAGE_PROVIDER", "s3")
	t.Setenv("AUDITCORE_S3_BUCKET", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
}

func TestNewFromEnv_UnsupportedProvider(t *testing.T) {
	t.Setenv("AUDITCORE_STORAGE_PROVIDER", "tape-drive")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
}
