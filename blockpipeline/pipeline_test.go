package blockpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/chainstate"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/headerchain"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/blockstore"
	"github.com/mr-pandabear/pandanode/stores/ledger"
	"github.com/mr-pandabear/pandanode/stores/txdb"
	"github.com/mr-pandabear/pandanode/ulogger"
)

func mineValidBlock(t *testing.T, hasher crypto.Hasher, id uint32, prev model.Hash, difficulty uint8, txs []*model.Transaction) *model.Block {
	t.Helper()
	block := &model.Block{Header: &model.BlockHeader{ID: id, PreviousHash: prev, DifficultyTarget: difficulty, Timestamp: int64(id) * 1000}, Transactions: txs}
	block.Header.MerkleRoot = block.MerkleRoot(hasher)

	for nonce := uint64(0); nonce < 2_000_000; nonce++ {
		block.Header.Nonce = nonce
		hash := hasher.PowHash(block.Header.Bytes())
		if model.HashMeetsTarget(hash, difficulty) {
			block.Hash = hash
			return block
		}
	}
	t.Fatalf("failed to mine block %d", id)
	return nil
}

func TestVerifyBlockRejectsBadMerkleRoot(t *testing.T) {
	hasher := crypto.Default{}
	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 100}
	fee.Hash = hasher.ContentHash([]byte("fee"))

	block := mineValidBlock(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty, []*model.Transaction{fee})
	block.Header.MerkleRoot = model.NullHash // corrupt

	p := &Pipeline{hasher: hasher}
	err := p.verifyBlock(block)
	assert.Error(t, err)
}

func TestVerifyBlockRejectsMissingCoinbase(t *testing.T) {
	hasher := crypto.Default{}
	p := &Pipeline{hasher: hasher}

	block := &model.Block{Header: &model.BlockHeader{ID: 1}, Transactions: nil}
	err := p.verifyBlock(block)
	assert.Error(t, err)
}

func TestPowHasherForUsesBaseBelowPufferfishActivation(t *testing.T) {
	base := crypto.Default{}
	p := &Pipeline{hasher: base}
	p.SetPufferfishHasher(crypto.Pufferfish{Base: base})

	assert.Equal(t, base, p.powHasherFor(chaincfg.PufferfishStartBlock-1))
}

func TestPowHasherForUsesPufferfishAtAndAbovePufferfishActivation(t *testing.T) {
	base := crypto.Default{}
	pf := crypto.Pufferfish{Base: base}
	p := &Pipeline{hasher: base}
	p.SetPufferfishHasher(pf)

	assert.Equal(t, pf, p.powHasherFor(chaincfg.PufferfishStartBlock))
}

func TestPowHasherForFallsBackToBaseWhenPufferfishUnset(t *testing.T) {
	base := crypto.Default{}
	p := &Pipeline{hasher: base}

	assert.Equal(t, base, p.powHasherFor(chaincfg.PufferfishStartBlock))
}

func TestVerifyBlockAcceptsBlockMinedWithPufferfishHasherAtActivationHeight(t *testing.T) {
	p, chain, _ := newTestPipeline(t)
	pf := crypto.Pufferfish{Base: p.hasher}
	p.SetPufferfishHasher(pf)

	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 100}
	fee.Hash = p.hasher.ContentHash([]byte("fee"))

	block := mineValidBlock(t, pf, chaincfg.PufferfishStartBlock, model.NullHash, chain.DifficultyForNext(), []*model.Transaction{fee})

	err := p.verifyBlock(block)
	assert.NoError(t, err)
}

type fakeMempoolFinisher struct {
	finished []*model.Block
}

func (f *fakeMempoolFinisher) FinishBlock(block *model.Block)                 { f.finished = append(f.finished, block) }
func (f *fakeMempoolFinisher) AddTransaction(tx *model.Transaction) errors.ERR { return errors.ERR_SUCCESS }

func newTestPipeline(t *testing.T) (*Pipeline, *chainstate.ChainState, *fakeMempoolFinisher) {
	t.Helper()
	hasher := crypto.Default{}

	ledgerStore, err := ledger.Open(ulogger.New("test"), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerStore.Close() })

	txdbStore, err := txdb.Open(ulogger.New("test"), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = txdbStore.Close() })

	blockStore, err := blockstore.Open(ulogger.New("test"), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blockStore.Close() })

	chain := chainstate.New(ulogger.New("test"), hasher, hasher, ledgerStore, txdbStore, blockStore)
	pool := &fakeMempoolFinisher{}
	p := New(ulogger.New("test"), chain, nil, nil, hasher, pool)
	return p, chain, pool
}

// S4-adjacent: a directly-submitted block (not one pulled via syncFrom) is
// validated and applied the same way, advancing the tip and pruning the
// mempool.
func TestSubmitBlockAppliesValidBlock(t *testing.T) {
	p, chain, pool := newTestPipeline(t)

	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 5000}
	fee.Hash = p.hasher.ContentHash([]byte("coinbase"))
	genesis := mineValidBlock(t, p.hasher, 1, model.NullHash, chain.DifficultyForNext(), []*model.Transaction{fee})

	status := p.SubmitBlock(genesis)
	assert.Equal(t, errors.ERR_SUCCESS, status)

	height, hash, _ := chain.Tip()
	assert.Equal(t, uint32(1), height)
	assert.Equal(t, genesis.Hash, hash)
	assert.Len(t, pool.finished, 1)
}

func TestSubmitBlockRejectsWrongHeight(t *testing.T) {
	p, chain, _ := newTestPipeline(t)

	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 5000}
	fee.Hash = p.hasher.ContentHash([]byte("coinbase"))
	block := mineValidBlock(t, p.hasher, 2, model.NullHash, chain.DifficultyForNext(), []*model.Transaction{fee})

	status := p.SubmitBlock(block)
	assert.Equal(t, errors.ERR_INVALID_BLOCK_ID, status)
}

func TestSubmitBlockRejectsStalePreviousHash(t *testing.T) {
	p, chain, _ := newTestPipeline(t)

	fee := &model.Transaction{To: model.PublicAddress{1}, Amount: 5000}
	fee.Hash = p.hasher.ContentHash([]byte("coinbase"))
	block := mineValidBlock(t, p.hasher, 1, model.Hash{1, 2, 3}, chain.DifficultyForNext(), []*model.Transaction{fee})

	status := p.SubmitBlock(block)
	assert.Equal(t, errors.ERR_INVALID_PREVIOUS_HASH, status)
}

type fakeHeaderPeerClient struct {
	count   uint64
	headers []*model.BlockHeader
}

func (f *fakeHeaderPeerClient) FetchBlockCount(ctx context.Context, peerURL string) (uint64, error) {
	return f.count, nil
}

func (f *fakeHeaderPeerClient) FetchHeaders(ctx context.Context, peerURL string, start, end uint64) ([]*model.BlockHeader, error) {
	var out []*model.BlockHeader
	for _, h := range f.headers {
		if uint64(h.ID) >= start && uint64(h.ID) <= end {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeBlockFetcher struct {
	blocks map[uint32]*model.Block
}

func (f *fakeBlockFetcher) FetchBlock(ctx context.Context, peerURL string, id uint32) (*model.Block, error) {
	b, ok := f.blocks[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return b, nil
}

type fakeHosts struct {
	peerURL string
	tracker *headerchain.Tracker
}

func (f *fakeHosts) BestPeer() (string, headerchain.Snapshot, bool) {
	return f.peerURL, f.tracker.Tip(), true
}

func (f *fakeHosts) Tracker(url string) (*headerchain.Tracker, bool) {
	if url != f.peerURL {
		return nil, false
	}
	return f.tracker, true
}

func (f *fakeHosts) Blacklist(url string) {}

// S4 — local chain at height 2; the peer's chain diverges at height 2 and
// extends to height 3 with greater cumulative work. Syncing reorgs back to
// the common ancestor (height 1), then applies the peer's height-2 and
// height-3 blocks, ending on the peer's chain rather than walking all the
// way back to genesis.
func TestSyncOnceReorgsToCommonAncestorOnForkedPeerChain(t *testing.T) {
	p, chain, pool := newTestPipeline(t)
	hasher := p.hasher

	coinbaseA1 := &model.Transaction{To: model.PublicAddress{1}, Amount: 5000}
	coinbaseA1.Hash = hasher.ContentHash([]byte("a1-coinbase"))
	a1 := mineValidBlock(t, hasher, 1, model.NullHash, chain.DifficultyForNext(), []*model.Transaction{coinbaseA1})
	require.NoError(t, chain.ApplyBlock(a1))

	coinbaseA2 := &model.Transaction{To: model.PublicAddress{2}, Amount: 5000}
	coinbaseA2.Hash = hasher.ContentHash([]byte("a2-coinbase"))
	a2 := mineValidBlock(t, hasher, 2, a1.Hash, chain.DifficultyForNext(), []*model.Transaction{coinbaseA2})
	require.NoError(t, chain.ApplyBlock(a2))

	// The peer's chain: b1 is identical to a1 (the common ancestor), b2
	// forks away from a2, b3 extends the fork further.
	b1 := a1

	coinbaseB2 := &model.Transaction{To: model.PublicAddress{3}, Amount: 5000}
	coinbaseB2.Hash = hasher.ContentHash([]byte("b2-coinbase"))
	b2 := mineValidBlock(t, hasher, 2, b1.Hash, chain.DifficultyForNext(), []*model.Transaction{coinbaseB2})

	coinbaseB3 := &model.Transaction{To: model.PublicAddress{4}, Amount: 5000}
	coinbaseB3.Hash = hasher.ContentHash([]byte("b3-coinbase"))
	b3 := mineValidBlock(t, hasher, 3, b2.Hash, chain.DifficultyForNext(), []*model.Transaction{coinbaseB3})

	tracker := headerchain.New("http://peer", &fakeHeaderPeerClient{count: 3, headers: []*model.BlockHeader{b1.Header, b2.Header, b3.Header}}, hasher, ulogger.New("test"), nil)
	require.NoError(t, tracker.Refresh(context.Background()))
	require.Equal(t, uint32(3), tracker.Tip().Height)

	p.client = &fakeBlockFetcher{blocks: map[uint32]*model.Block{2: b2, 3: b3}}
	p.hosts = &fakeHosts{peerURL: "http://peer", tracker: tracker}

	p.syncOnce(context.Background())

	height, hash, _ := chain.Tip()
	assert.Equal(t, uint32(3), height)
	assert.Equal(t, b3.Hash, hash)
	assert.Equal(t, model.Amount(5000), chain.Balance(model.PublicAddress{3}))
	assert.Equal(t, model.Amount(5000), chain.Balance(model.PublicAddress{4}))
	assert.Equal(t, model.Amount(0), chain.Balance(model.PublicAddress{2}), "a2's credit must be undone by the reorg")
	assert.Len(t, pool.finished, 2)
}
