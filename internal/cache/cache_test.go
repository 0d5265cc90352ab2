package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestKey_Deterministic(t *testing.T) {
	t.Parallel()

	req := map[string]any{"from": "A", "to": "B", "mode": "truck"}
	k1, err := RequestKey("get_route", req)
	require.NoError(t, err)

	// Same logical request, different map construction order.
	k2, err := RequestKey("get_route", map[string]any{"mode": "truck", "to": "B", "from": "A"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	// Different operation or payload changes the key.
	k3, _ := RequestKey("get_eta", req)
	assert.NotEqual(t, k1, k3)
	k4, _ := RequestKey("get_route", map[string]any{"from": "A", "to": "C", "mode": "truck"})
	assert.NotEqual(t, k1, k4)
}

func TestMemoryStore_SetGetTTL(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Hour))

	val, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)

	_, found, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_Expiry(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	base := time.Now()
	m.nowFunc = func() time.Time { return base }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	m.nowFunc = func() time.Time { return base.Add(2 * time.Minute) }
	_, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired entry is a miss")

	n, err := m.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_Overwrite(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("old"), time.Hour))
	require.NoError(t, m.Set(ctx, "k", []byte("new"), time.Hour))

	val, found, _ := m.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("new"), val)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "route:abc", []byte(`{"eta":42}`), time.Hour))

	val, found, err := s.Get(ctx, "route:abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"eta":42}`, string(val))

	// Upsert replaces the value.
	require.NoError(t, s.Set(ctx, "route:abc", []byte(`{"eta":50}`), time.Hour))
	val, _, _ = s.Get(ctx, "route:abc")
	assert.JSONEq(t, `{"eta":50}`, string(val))
}

func TestSQLiteStore_ExpiredEntryIsMiss(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), -time.Minute))

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
