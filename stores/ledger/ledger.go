// Package ledger persists the PublicAddress -> Amount balance mapping at
// the path fixed in configuration (default ./data/ledger).
package ledger

import (
	"encoding/binary"

	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/kvstore"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// Store is the durable address->balance mapping.
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

// Balance returns addr's balance, or zero if never credited.
func (s *Store) Balance(addr model.PublicAddress) (model.Amount, error) {
	v, err := s.kv.Get(addr.Bytes())
	if err == kvstore.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return model.Amount(binary.LittleEndian.Uint64(v)), nil
}

// WriteBalances applies a set of address->balance updates atomically.
func (s *Store) WriteBalances(updates map[model.PublicAddress]model.Amount) error {
	batch := kvstore.NewBatch()
	for addr, amount := range updates {
		v := make([]byte, 8)
		binary.LittleEndian.PutUint64(v, uint64(amount))
		batch.Put(addr.Bytes(), v)
	}
	return s.kv.Write(batch)
}

func (s *Store) Close() error {
	return s.kv.Close()
}
