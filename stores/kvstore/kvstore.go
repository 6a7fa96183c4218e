// Package kvstore is the shared durable key-value abstraction behind the
// ledger, txdb, blockstore and pufferfish stores — one goleveldb handle per
// concern, opened at a fixed path, with atomic batched writes so a block's
// worth of state changes commit or fail together.
package kvstore

import (
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/util"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// Store is a thin, durable key-value handle.
type Store struct {
	db     *leveldb.DB
	path   string
	logger ulogger.Logger
}

// Open opens (creating if necessary) a leveldb store at path.
func Open(logger ulogger.Logger, path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *Store) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *Store) Set(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// Batch groups a set of puts/deletes for atomic commit.
type Batch struct {
	b *leveldb.Batch
}

func NewBatch() *Batch {
	return &Batch{b: new(leveldb.Batch)}
}

func (b *Batch) Put(key, value []byte) { b.b.Put(key, value) }
func (b *Batch) Delete(key []byte)     { b.b.Delete(key) }

// Write commits batch atomically.
func (s *Store) Write(batch *Batch) error {
	return s.db.Write(batch.b, nil)
}

// Iterate calls fn for every key with the given prefix, stopping early if
// fn returns false.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (s *Store) Close() error {
	return s.db.Close()
}

var ErrNotFound = leveldb.ErrNotFound
