package headerchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
)

type fakeClient struct {
	count   uint64
	headers []*model.BlockHeader
}

func (f *fakeClient) FetchBlockCount(ctx context.Context, peerURL string) (uint64, error) {
	return f.count, nil
}

func (f *fakeClient) FetchHeaders(ctx context.Context, peerURL string, start, end uint64) ([]*model.BlockHeader, error) {
	var out []*model.BlockHeader
	for _, h := range f.headers {
		if uint64(h.ID) >= start && uint64(h.ID) <= end {
			out = append(out, h)
		}
	}
	return out, nil
}

func mineHeader(t *testing.T, hasher crypto.Hasher, id uint32, prev model.Hash, difficulty uint8) *model.BlockHeader {
	t.Helper()
	h := &model.BlockHeader{ID: id, PreviousHash: prev, DifficultyTarget: difficulty, Timestamp: int64(id) * 1000}
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		h.Nonce = nonce
		if model.HashMeetsTarget(hasher.PowHash(h.Bytes()), difficulty) {
			return h
		}
	}
	t.Fatalf("failed to mine header at difficulty %d", difficulty)
	return nil
}

func TestTrackerRefreshAppendsValidHeaders(t *testing.T) {
	hasher := crypto.Default{}
	h1 := mineHeader(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty)
	h2 := mineHeader(t, hasher, 2, hasher.PowHash(h1.Bytes()), chaincfg.MinDifficulty)

	client := &fakeClient{count: 2, headers: []*model.BlockHeader{h1, h2}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), nil)

	require.NoError(t, tr.Refresh(context.Background()))

	snap := tr.Tip()
	assert.Equal(t, uint32(2), snap.Height)
	assert.Equal(t, hasher.PowHash(h2.Bytes()), snap.TipHash)
}

func TestTrackerRejectsBadPow(t *testing.T) {
	hasher := crypto.Default{}
	bad := &model.BlockHeader{ID: 1, PreviousHash: model.NullHash, DifficultyTarget: chaincfg.MaxDifficulty, Nonce: 0}

	client := &fakeClient{count: 1, headers: []*model.BlockHeader{bad}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), nil)

	err := tr.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint32(0), tr.Tip().Height)
}

func TestTrackerRejectsBrokenLinkage(t *testing.T) {
	hasher := crypto.Default{}
	h1 := mineHeader(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty)
	h2 := mineHeader(t, hasher, 2, model.NullHash, chaincfg.MinDifficulty) // wrong previous hash

	client := &fakeClient{count: 2, headers: []*model.BlockHeader{h1, h2}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), nil)

	err := tr.Refresh(context.Background())
	assert.Error(t, err)
}

func TestTrackerRejectsBannedHash(t *testing.T) {
	hasher := crypto.Default{}
	h1 := mineHeader(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty)
	bannedHash := hasher.PowHash(h1.Bytes())

	params := &chaincfg.Params{
		BannedHashes: map[uint32]map[model.Hash]struct{}{
			1: {bannedHash: struct{}{}},
		},
	}

	client := &fakeClient{count: 1, headers: []*model.BlockHeader{h1}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), params)

	err := tr.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint32(0), tr.Tip().Height)
}

func TestTrackerRejectsCheckpointDisagreement(t *testing.T) {
	hasher := crypto.Default{}
	h1 := mineHeader(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty)

	params := &chaincfg.Params{
		Checkpoints: []chaincfg.Checkpoint{{Height: 1, Hash: model.Hash{0xAB}}},
	}

	client := &fakeClient{count: 1, headers: []*model.BlockHeader{h1}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), params)

	err := tr.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint32(0), tr.Tip().Height)
}

func TestTrackerAcceptsMatchingCheckpoint(t *testing.T) {
	hasher := crypto.Default{}
	h1 := mineHeader(t, hasher, 1, model.NullHash, chaincfg.MinDifficulty)

	params := &chaincfg.Params{
		Checkpoints: []chaincfg.Checkpoint{{Height: 1, Hash: hasher.PowHash(h1.Bytes())}},
	}

	client := &fakeClient{count: 1, headers: []*model.BlockHeader{h1}}
	tr := New("http://peer", client, hasher, ulogger.New("test"), params)

	require.NoError(t, tr.Refresh(context.Background()))
	assert.Equal(t, uint32(1), tr.Tip().Height)
}
