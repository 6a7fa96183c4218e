package blockstore

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

func testBlock(id uint32) *model.Block {
	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 100, Hash: model.Hash{9}}
	return &model.Block{Header: &model.BlockHeader{ID: id, Timestamp: int64(id)}, Transactions: []*model.Transaction{fee}}
}

func TestGetBlockReturnsErrNotFoundForMissingBlock(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBlock(1)
	assert.Error(t, err)
}

func TestPutBlockThenGetBlockRoundTrips(t *testing.T) {
	s := newTestStore(t)
	block := testBlock(1)

	batch := s.NewBatch()
	PutBlock(batch, block)
	require.NoError(t, s.WriteBatch(batch))

	got, err := s.GetBlock(1)
	require.NoError(t, err)
	assert.Equal(t, block.Header.ID, got.Header.ID)
	assert.Len(t, got.Transactions, 1)
}

func TestPutJournalThenGetJournalRoundTrips(t *testing.T) {
	s := newTestStore(t)
	deltas := []BalanceDelta{
		{Addr: model.PublicAddress{1}, PriorValue: 100},
		{Addr: model.PublicAddress{2}, PriorValue: 250},
	}

	batch := s.NewBatch()
	PutJournal(batch, 5, deltas)
	require.NoError(t, s.WriteBatch(batch))

	got, err := s.GetJournal(5)
	require.NoError(t, err)
	assert.Equal(t, deltas, got)
}

func TestGetJournalOnEmptyDeltaListRoundTrips(t *testing.T) {
	s := newTestStore(t)

	batch := s.NewBatch()
	PutJournal(batch, 9, nil)
	require.NoError(t, s.WriteBatch(batch))

	got, err := s.GetJournal(9)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemoveBlockDeletesBlockAndJournal(t *testing.T) {
	s := newTestStore(t)
	block := testBlock(1)
	deltas := []BalanceDelta{{Addr: model.PublicAddress{1}, PriorValue: 100}}

	batch := s.NewBatch()
	PutBlock(batch, block)
	PutJournal(batch, 1, deltas)
	require.NoError(t, s.WriteBatch(batch))

	undo := s.NewBatch()
	RemoveBlock(undo, 1)
	require.NoError(t, s.WriteBatch(undo))

	_, err := s.GetBlock(1)
	assert.Error(t, err)
	_, err = s.GetJournal(1)
	assert.Error(t, err)
}
