// Package txdb persists the seen-transaction-hash -> including-block-id
// mapping at the path fixed in configuration (default ./data/txdb), used to
// reject replays via nonce/hash-freshness checks.
package txdb

import (
	"encoding/binary"

	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/kvstore"
	"github.com/mr-pandabear/pandanode/ulogger"
)

type Store struct {
	kv *kvstore.Store
}

func Open(logger ulogger.Logger, path string) (*Store, error) {
	kv, err := kvstore.Open(logger, path)
	if err != nil {
		return nil, err
	}
	return &Store{kv: kv}, nil
}

// Seen reports whether hash has already been included in a block, and if
// so at which block id.
func (s *Store) Seen(hash model.Hash) (blockID uint32, ok bool, err error) {
	v, err := s.kv.Get(hash.Bytes())
	if err == kvstore.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.LittleEndian.Uint32(v), true, nil
}

// MarkSeen records hash -> blockID in batch; callers commit via WriteBatch
// as part of a single block's atomic apply.
func MarkSeen(batch *kvstore.Batch, hash model.Hash, blockID uint32) {
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, blockID)
	batch.Put(hash.Bytes(), v)
}

// Unmark removes hash from the seen set, used when rolling back a block
// during a reorg.
func Unmark(batch *kvstore.Batch, hash model.Hash) {
	batch.Delete(hash.Bytes())
}

func (s *Store) NewBatch() *kvstore.Batch {
	return kvstore.NewBatch()
}

func (s *Store) WriteBatch(batch *kvstore.Batch) error {
	return s.kv.Write(batch)
}

func (s *Store) Close() error {
	return s.kv.Close()
}
