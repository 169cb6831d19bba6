package hashchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/payload"
)

func testGenesis(t *testing.T) *Chain {
	t.Helper()
	c, err := New(GenesisConfig{Version: "1", StartInstant: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	return c
}

func TestNew_GenesisSentinel(t *testing.T) {
	c := testGenesis(t)
	g := c.Latest()
	assert.Equal(t, uint64(0), g.Sequence)
	assert.Equal(t, GenesisEventType, g.EventType)
	assert.Equal(t, Sentinel, g.PreviousHash)
}

func TestAppend_LinksToHead(t *testing.T) {
	c := testGenesis(t)
	g := c.Latest()

	ts := g.Timestamp.Add(time.Second)
	rec, err := c.Append("event.one", payload.MustFrom(map[string]any{"a": 1}), ts)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), rec.Sequence)
	assert.Equal(t, g.Hash, rec.PreviousHash)
}

func TestAppend_RejectsNonMonotonicTimestamp(t *testing.T) {
	c := testGenesis(t)
	g := c.Latest()

	_, err := c.Append("event.one", payload.MustFrom(map[string]any{}), g.Timestamp.Add(-time.Second))
	require.Error(t, err)
	assert.Equal(t, auditerr.KindInvalidTimestamp, auditerr.KindOf(err))
}

func TestAppend_UsesNowWhenTimestampZero(t *testing.T) {
	c := testGenesis(t)
	rec, err := c.Append("event.one", payload.MustFrom(map[string]any{}), time.Time{})
	require.NoError(t, err)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestGetRangeLatest(t *testing.T) {
	c := testGenesis(t)
	base := c.Latest().Timestamp
	for i := 1; i <= 3; i++ {
		_, err := c.Append("event.x", payload.MustFrom(map[string]any{"i": i}), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	rec, err := c.Get(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Sequence)

	rng, err := c.Range(1, 3)
	require.NoError(t, err)
	assert.Len(t, rng, 3)

	assert.Equal(t, uint64(3), c.Latest().Sequence)

	_, err = c.Get(99)
	require.Error(t, err)
	assert.Equal(t, auditerr.KindNotFound, auditerr.KindOf(err))
}

func appendChain(t *testing.T, n int) []Record {
	t.Helper()
	c := testGenesis(t)
	base := c.Latest().Timestamp
	for i := 1; i <= n; i++ {
		_, err := c.Append("event.x", payload.MustFrom(map[string]any{"i": i}), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	all, err := c.Range(0, uint64(n))
	require.NoError(t, err)
	return all
}

func TestValidate_HappyPath(t *testing.T) {
	records := appendChain(t, 5)
	res := Validate(records)
	assert.True(t, res.OK)
}

func TestValidate_DetectsMidChainTamper(t *testing.T) {
	records := appendChain(t, 5)
	records[2].Payload = payload.MustFrom(map[string]any{"tampered": true})

	res := Validate(records)
	require.False(t, res.OK)
	assert.Equal(t, uint64(2), res.FailedSequence)
	assert.Equal(t, auditerr.KindHashMismatch, auditerr.KindOf(res.Err))
}

func TestValidate_DetectsBrokenLink(t *testing.T) {
	records := appendChain(t, 5)
	records[3].PreviousHash = [32]byte{0xff}

	res := Validate(records)
	require.False(t, res.OK)
	assert.Equal(t, uint64(3), res.FailedSequence)
	assert.Equal(t, auditerr.KindInvalidPreviousHash, auditerr.KindOf(res.Err))
}

func TestValidate_DetectsSequenceGap(t *testing.T) {
	records := appendChain(t, 5)
	records = append(records[:3], records[4:]...)

	res := Validate(records)
	require.False(t, res.OK)
	assert.Equal(t, auditerr.KindSequenceGap, auditerr.KindOf(res.Err))
}

func TestValidate_DetectsInvalidGenesisSentinel(t *testing.T) {
	records := appendChain(t, 1)
	records[0].PreviousHash = [32]byte{0x01}

	res := Validate(records)
	require.False(t, res.OK)
	assert.Equal(t, auditerr.KindInvalidGenesis, auditerr.KindOf(res.Err))
}

func TestValidate_EmptySliceIsOK(t *testing.T) {
	res := Validate(nil)
	assert.True(t, res.OK)
}
