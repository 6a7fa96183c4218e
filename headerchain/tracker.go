// Package headerchain implements component A: for one peer URL, a locally
// verified copy of that peer's declared header chain. The tracker is pure
// with respect to chain state — it never writes to the ledger.
package headerchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ordishs/go-utils"
	"go.uber.org/atomic"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// PeerClient is the slice of the peer wire client a Tracker needs.
type PeerClient interface {
	FetchBlockCount(ctx context.Context, peerURL string) (uint64, error)
	FetchHeaders(ctx context.Context, peerURL string, start, end uint64) ([]*model.BlockHeader, error)
}

// Snapshot is the tip() result: (height, cumulative_work, tip_hash,
// last_refresh_ms).
type Snapshot struct {
	Height        uint32
	CumulativeWork *big.Int
	TipHash       model.Hash
	LastRefreshMs int64
}

// Tracker maintains one peer's header chain. Reads of the latest Snapshot
// go through an atomic.Value so HostManager can poll Tip() without taking
// the tracker's own mutex across a network call.
type Tracker struct {
	peerURL string
	client  PeerClient
	hasher  crypto.Hasher
	logger  ulogger.Logger
	params  *chaincfg.Params

	mu      sync.Mutex
	headers []*model.BlockHeader // ordered, height 1..N
	work    []*big.Int           // work[i] = cumulative work through headers[i]

	snapshot atomic.Value // holds Snapshot

	reorgDepthLimit int
}

// New constructs a Tracker for one peer. params may be nil, in which case
// the banned-hash and checkpoint checks of §4.B rules (b) and (c) are
// skipped (no network configured).
func New(peerURL string, client PeerClient, hasher crypto.Hasher, logger ulogger.Logger, params *chaincfg.Params) *Tracker {
	t := &Tracker{
		peerURL:         peerURL,
		client:          client,
		hasher:          hasher,
		logger:          logger,
		params:          params,
		reorgDepthLimit: 100,
	}
	t.snapshot.Store(Snapshot{CumulativeWork: big.NewInt(0)})
	return t
}

// Tip returns the last published snapshot without touching the network or
// the tracker's mutex.
func (t *Tracker) Tip() Snapshot {
	return t.snapshot.Load().(Snapshot)
}

// HashAt returns the locally-verified header hash this tracker has for the
// peer's chain at the given height, if it has fetched that far. Used by
// reorg resolution to find the true common ancestor height by height,
// rather than approximating with the peer's current tip hash.
func (t *Tracker) HashAt(height uint32) (model.Hash, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if height == 0 || height > uint32(len(t.headers)) {
		return model.Hash{}, false
	}
	return t.headerHashLocked(t.headers[height-1]), true
}

// Refresh fetches the peer's claimed block count; if unchanged, it is a
// no-op. Otherwise it pulls headers in batches of at most
// BlockHeadersPerFetch starting from the first height beyond what is
// locally stored, validates each batch, and appends. If the first new
// header's previous_hash does not link to the stored tail, Refresh walks
// backward one stored header at a time (a linear scan, not a bisection)
// until it finds the common ancestor, then truncates and re-appends.
func (t *Tracker) Refresh(ctx context.Context) error {
	count, err := t.client.FetchBlockCount(ctx, t.peerURL)
	if err != nil {
		return errors.New(errors.ERR_PEER_TRANSIENT, "fetch block count from %s: %v", t.peerURL, err)
	}

	t.mu.Lock()
	localHeight := uint32(len(t.headers))
	t.mu.Unlock()

	if uint64(localHeight) >= count {
		return nil
	}

	for start := uint64(localHeight) + 1; start <= count; {
		end := start + chaincfg.BlockHeadersPerFetch - 1
		if end > count {
			end = count
		}

		headers, err := t.client.FetchHeaders(ctx, t.peerURL, start, end)
		if err != nil {
			return errors.New(errors.ERR_PEER_TRANSIENT, "fetch headers [%d,%d] from %s: %v", start, end, t.peerURL, err)
		}

		if err := t.appendBatch(headers); err != nil {
			return err
		}

		start = end + 1
	}

	return nil
}

func (t *Tracker) appendBatch(headers []*model.BlockHeader) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.headers) > 0 && len(headers) > 0 {
		tail := t.headers[len(t.headers)-1]
		if headers[0].PreviousHash != tail.PreviousHash && headers[0].PreviousHash != t.headerHashLocked(tail) {
			return t.resolveForkLocked(headers)
		}
	}

	for _, h := range headers {
		if err := t.validateAndAppendLocked(h); err != nil {
			return err
		}
	}

	t.publishSnapshotLocked()
	return nil
}

// resolveForkLocked walks backward one header at a time (a linear scan, not
// a bisection) to find the common ancestor, truncates the local chain to it, then appends the new headers.
// Reorg depth beyond reorgDepthLimit fails with PeerInvalid.
func (t *Tracker) resolveForkLocked(newHeaders []*model.BlockHeader) error {
	depth := 0
	cut := len(t.headers)
	for cut > 0 {
		candidate := t.headers[cut-1]
		if len(newHeaders) > 0 && t.headerHashLocked(candidate) == newHeaders[0].PreviousHash {
			break
		}
		cut--
		depth++
		if depth > t.reorgDepthLimit {
			return errors.New(errors.ERR_PEER_INVALID, "peer %s: reorg depth exceeds limit", t.peerURL)
		}
	}

	t.headers = t.headers[:cut]
	t.work = t.work[:cut]

	for _, h := range newHeaders {
		if err := t.validateAndAppendLocked(h); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) headerHashLocked(h *model.BlockHeader) model.Hash {
	return t.hasher.PowHash(h.Bytes())
}

// validateAndAppendLocked checks pow, linkage, and declared-vs-derived
// difficulty, then appends h. Caller holds t.mu.
func (t *Tracker) validateAndAppendLocked(h *model.BlockHeader) error {
	if len(t.headers) > 0 {
		tail := t.headers[len(t.headers)-1]
		if h.PreviousHash != t.headerHashLocked(tail) {
			return errors.New(errors.ERR_PEER_INVALID, "peer %s: broken linkage at height %d", t.peerURL, h.ID)
		}
	}

	powHash := t.headerHashLocked(h)
	if !model.HashMeetsTarget(powHash, h.DifficultyTarget) {
		return errors.New(errors.ERR_PEER_INVALID, "peer %s: invalid pow at height %d", t.peerURL, h.ID)
	}

	expected := t.expectedDifficultyLocked()
	if h.DifficultyTarget != expected {
		return errors.New(errors.ERR_PEER_INVALID, "peer %s: difficulty mismatch at height %d: got %d want %d", t.peerURL, h.ID, h.DifficultyTarget, expected)
	}

	if t.params != nil {
		if t.params.IsBanned(h.ID, powHash) {
			return errors.New(errors.ERR_PEER_INVALID, "peer %s: banned hash at height %d", t.peerURL, h.ID)
		}
		if cp, ok := t.params.CheckpointAt(h.ID); ok && cp.Hash != powHash {
			return errors.New(errors.ERR_PEER_INVALID, "peer %s: disagrees with checkpoint at height %d", t.peerURL, h.ID)
		}
	}

	var work *big.Int
	if len(t.work) == 0 {
		work = new(big.Int).Lsh(big.NewInt(1), uint(h.DifficultyTarget))
	} else {
		work = new(big.Int).Add(t.work[len(t.work)-1], new(big.Int).Lsh(big.NewInt(1), uint(h.DifficultyTarget)))
	}

	t.headers = append(t.headers, h)
	t.work = append(t.work, work)
	return nil
}

// expectedDifficultyLocked mirrors chainstate's difficulty derivation rule
// applied to this tracker's own header sequence.
func (t *Tracker) expectedDifficultyLocked() uint8 {
	if len(t.headers) == 0 {
		return chaincfg.MinDifficulty
	}

	current := t.headers[len(t.headers)-1].DifficultyTarget
	height := uint32(len(t.headers))
	if height%chaincfg.DifficultyLookback != 0 {
		return current
	}

	window := t.headers
	if len(window) > chaincfg.DifficultyLookback {
		window = window[len(window)-chaincfg.DifficultyLookback:]
	}
	timestamps := make([]int64, len(window))
	for i, h := range window {
		timestamps[i] = h.Timestamp
	}
	return chaincfg.RecomputeDifficulty(current, timestamps)
}

func (t *Tracker) publishSnapshotLocked() {
	n := len(t.headers)
	if n == 0 {
		return
	}
	t.snapshot.Store(Snapshot{
		Height:         t.headers[n-1].ID,
		CumulativeWork: new(big.Int).Set(t.work[n-1]),
		TipHash:        t.headerHashLocked(t.headers[n-1]),
		LastRefreshMs:  time.Now().UnixMilli(),
	})
}

func (t *Tracker) String() string {
	snap := t.Tip()
	return fmt.Sprintf("Tracker(%s tip=%s height=%d)", t.peerURL, utils.ReverseAndHexEncodeSlice(snap.TipHash[:]), snap.Height)
}
