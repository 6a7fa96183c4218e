package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/ulogger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(ulogger.New("test"), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))

	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestHasReflectsPresence(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	ok, err = s.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	require.NoError(t, s.Delete([]byte("k")))

	_, err := s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchWriteIsAtomic(t *testing.T) {
	s := newTestStore(t)
	batch := NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	require.NoError(t, s.Write(batch))

	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = s.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestBatchDeleteStagesRemoval(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))

	batch := NewBatch()
	batch.Delete([]byte("k"))
	require.NoError(t, s.Write(batch))

	_, err := s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIterateVisitsOnlyMatchingPrefixAndCanStopEarly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set([]byte("p:1"), []byte("a")))
	require.NoError(t, s.Set([]byte("p:2"), []byte("b")))
	require.NoError(t, s.Set([]byte("q:1"), []byte("c")))

	var seen []string
	err := s.Iterate([]byte("p:"), func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p:1", "p:2"}, seen)

	var first []string
	err = s.Iterate([]byte("p:"), func(key, value []byte) bool {
		first = append(first, string(key))
		return false
	})
	require.NoError(t, err)
	assert.Len(t, first, 1)
}
