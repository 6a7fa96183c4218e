// Package blockstore persists the contiguous block log (default
// ./data/blocks) plus, per block, an inverse journal of the balance deltas
// it applied — enough to undo the block during a reorg without replaying
// the whole chain.
package blockstore

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

func blockKey(id uint32) []byte {
	k := make([]byte, 5)
	k[0] = 'b'
	binary.LittleEndian.PutUint32(k[1:], id)
	return k
}

func journalKey(id uint32) []byte {
	k := make([]byte, 5)
	k[0] = 'j'
	binary.LittleEndian.PutUint32(k[1:], id)
	return k
}

// BalanceDelta is one entry of a block's inverse journal: the balance addr
// held immediately before this block was applied.
type BalanceDelta struct {
	Addr       model.PublicAddress
	PriorValue model.Amount
}

// GetBlock returns the block stored at id.
func (s *Store) GetBlock(id uint32) (*model.Block, error) {
	v, err := s.kv.Get(blockKey(id))
	if err != nil {
		return nil, err
	}
	return model.BlockFromBytes(v)
}

// PutBlock and PutJournal stage a block and its inverse journal into batch;
// callers commit both together with WriteBatch for atomicity per block.
func PutBlock(batch *kvstore.Batch, block *model.Block) {
	batch.Put(blockKey(block.Header.ID), block.Bytes())
}

func PutJournal(batch *kvstore.Batch, blockID uint32, deltas []BalanceDelta) {
	buf := make([]byte, 0, 4+len(deltas)*(model.AddressSize+8))
	n := make([]byte, 4)
	binary.LittleEndian.PutUint32(n, uint32(len(deltas)))
	buf = append(buf, n...)
	for _, d := range deltas {
		buf = append(buf, d.Addr.Bytes()...)
		v := make([]byte, 8)
		binary.LittleEndian.PutUint64(v, uint64(d.PriorValue))
		buf = append(buf, v...)
	}
	batch.Put(journalKey(blockID), buf)
}

// GetJournal returns the balance deltas recorded for blockID, the values
// each address held immediately before that block.
func (s *Store) GetJournal(blockID uint32) ([]BalanceDelta, error) {
	v, err := s.kv.Get(journalKey(blockID))
	if err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(v[:4])
	deltas := make([]BalanceDelta, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		addr, err := model.AddressFromBytes(v[off : off+model.AddressSize])
		if err != nil {
			return nil, err
		}
		off += model.AddressSize
		amount := binary.LittleEndian.Uint64(v[off : off+8])
		off += 8
		deltas = append(deltas, BalanceDelta{Addr: addr, PriorValue: model.Amount(amount)})
	}
	return deltas, nil
}

// RemoveBlock stages the removal of a block and its inverse journal (used
// once a reorg has fully undone the block).
func RemoveBlock(batch *kvstore.Batch, id uint32) {
	batch.Delete(blockKey(id))
	batch.Delete(journalKey(id))
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
