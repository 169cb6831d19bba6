package sqlitestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		// best-effort close; nothing to assert on
	})
	return s
}

func TestStore_WriteOnceFailsOnRepeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "k1", []byte("data"), storage.StoreOptions{})
	require.NoError(t, err)

	_, err = s.Store(ctx, "k1", []byte("data2"), storage.StoreOptions{})
	require.Error(t, err)
	assert.Equal(t, auditerr.KindAlreadyExists, auditerr.KindOf(err))
}

func TestStore_RetrieveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "k1", []byte("payload-bytes"), storage.StoreOptions{
		Metadata: map[string]string{"content-type": "application/json"},
	})
	require.NoError(t, err)

	got, err := s.Retrieve(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload-bytes"), got.Data)
	assert.Equal(t, "application/json", got.Metadata["content-type"])
}

func TestStore_RetrieveMissingFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Retrieve(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, auditerr.KindNotFound, auditerr.KindOf(err))
}

func TestStore_VerifyIntegrity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "k1", []byte("data"), storage.StoreOptions{})
	require.NoError(t, err)

	ok, err := s.VerifyIntegrity(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ListByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, storeOK(s, ctx, "checkpoints/2026/01/01/0.json"))
	require.NoError(t, storeOK(s, ctx, "checkpoints/2026/01/02/1.json"))
	require.NoError(t, storeOK(s, ctx, "keys/active.json"))

	keys, err := s.List(ctx, "checkpoints/", 0)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestStore_LegalHoldRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, storeOK(s, ctx, "k1"))

	require.NoError(t, s.ApplyLegalHold(ctx, "k1"))
	require.NoError(t, s.RemoveLegalHold(ctx, "k1"))
}

func TestStore_LegalHoldMissingKeyFails(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyLegalHold(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, auditerr.KindNotFound, auditerr.KindOf(err))
}

func TestStore_Capabilities_TracksButDoesNotEnforceRetention(t *testing.T) {
	s := newTestStore(t)
	caps := s.Capabilities()
	assert.False(t, caps.SupportsWORM)
	assert.True(t, caps.SupportsRetention)
	assert.False(t, caps.EnforcesRetention)
}

func TestStore_HealthCheck(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))
}

func storeOK(s *Store, ctx context.Context, key string) error {
	_, err := s.Store(ctx, key, []byte("x"), storage.StoreOptions{})
	return err
}
