package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr-pandabear/pandanode/model"
)

type fakeCache struct {
	store map[model.Hash][]byte
	hits  int
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[model.Hash][]byte{}} }

func (c *fakeCache) Get(h model.Hash) ([]byte, bool) {
	v, ok := c.store[h]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *fakeCache) Put(h model.Hash, state []byte) error {
	c.store[h] = state
	return nil
}

func TestPufferfishPowHashDeterministic(t *testing.T) {
	p := Pufferfish{Base: Default{}, Cache: newFakeCache()}
	h1 := p.PowHash([]byte("header-bytes"))
	h2 := p.PowHash([]byte("header-bytes"))
	assert.Equal(t, h1, h2)
}

func TestPufferfishPowHashDiffersFromBase(t *testing.T) {
	base := Default{}
	p := Pufferfish{Base: base, Cache: newFakeCache()}

	header := []byte("some-header")
	assert.NotEqual(t, base.PowHash(header), p.PowHash(header))
}

func TestPufferfishPowHashUsesCacheOnSecondCall(t *testing.T) {
	cache := newFakeCache()
	p := Pufferfish{Base: Default{}, Cache: cache}

	header := []byte("cached-header")
	first := p.PowHash(header)
	assert.Equal(t, 0, cache.hits)

	second := p.PowHash(header)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first, second)
}

func TestPufferfishContentHashDelegatesToBase(t *testing.T) {
	base := Default{}
	p := Pufferfish{Base: base, Cache: nil}
	assert.Equal(t, base.ContentHash([]byte("x")), p.ContentHash([]byte("x")))
}

func TestPufferfishWorksWithNilCache(t *testing.T) {
	p := Pufferfish{Base: Default{}}
	assert.NotPanics(t, func() { p.PowHash([]byte("no-cache")) })
}
