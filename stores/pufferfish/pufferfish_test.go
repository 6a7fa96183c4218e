package pufferfish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(ulogger.New("test"), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get(model.Hash{1})
	assert.False(t, ok)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	key := model.Hash{2}
	require.NoError(t, s.Put(key, []byte("scratch-state")))

	v, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("scratch-state"), v)
}

func TestGetServesFromCacheWithoutTouchingDurableStoreTwice(t *testing.T) {
	s := newTestStore(t)
	key := model.Hash{3}
	require.NoError(t, s.Put(key, []byte("v1")))
	require.NoError(t, s.kv.Delete(key.Bytes()))

	v1, ok := s.Get(key)
	require.True(t, ok)
	v2, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, v1, v2)
}
