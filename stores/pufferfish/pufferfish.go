// Package pufferfish caches intermediate state for the Pufferfish
// proof-of-work hash (active from chaincfg.PufferfishStartBlock onward), at
// the path fixed in configuration (default ./data/pufferfish). An in-memory
// TTL layer absorbs repeated lookups during a single sync burst; the
// durable store is the source of truth across restarts.
package pufferfish

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/kvstore"
	"github.com/mr-pandabear/pandanode/ulogger"
)

type Store struct {
	kv    *kvstore.Store
	cache *ttlcache.Cache[model.Hash, []byte]
}

func Open(logger ulogger.Logger, path string) (*Store, error) {
	kv, err := kvstore.Open(logger, path)
	if err != nil {
		return nil, err
	}
	cache := ttlcache.New[model.Hash, []byte](
		ttlcache.WithTTL[model.Hash, []byte](10 * time.Minute),
		ttlcache.WithCapacity[model.Hash, []byte](4096),
	)
	go cache.Start()
	return &Store{kv: kv, cache: cache}, nil
}

// Get returns the cached intermediate state for headerHash, checking the
// hot in-memory cache before falling back to the durable store.
func (s *Store) Get(headerHash model.Hash) ([]byte, bool) {
	if item := s.cache.Get(headerHash); item != nil {
		return item.Value(), true
	}
	v, err := s.kv.Get(headerHash.Bytes())
	if err != nil {
		return nil, false
	}
	s.cache.Set(headerHash, v, ttlcache.DefaultTTL)
	return v, true
}

func (s *Store) Put(headerHash model.Hash, state []byte) error {
	s.cache.Set(headerHash, state, ttlcache.DefaultTTL)
	return s.kv.Set(headerHash.Bytes(), state)
}

func (s *Store) Close() error {
	s.cache.Stop()
	return s.kv.Close()
}
