// Package blockpipeline implements component E: the block-acceptance
// pipeline. It is the sole caller of chainstate.ApplyBlock/UndoBlock and of
// mempool.FinishBlock, realizing the one-way Mempool/ChainState design
// note — neither package calls into the other directly.
package blockpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/chainstate"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/headerchain"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// BlockFetcher is the slice of peerwire.Client the pipeline needs to pull
// full blocks once it has decided which peer to sync from.
type BlockFetcher interface {
	FetchBlock(ctx context.Context, peerURL string, id uint32) (*model.Block, error)
}

// Hosts is the slice of HostManager the pipeline needs: who to sync from,
// and who to blacklist on a consensus violation.
type Hosts interface {
	BestPeer() (url string, snap headerchain.Snapshot, ok bool)
	Tracker(url string) (*headerchain.Tracker, bool)
	Blacklist(url string)
}

// MempoolFinisher is the slice of Mempool the pipeline drives after each
// applied block.
type MempoolFinisher interface {
	FinishBlock(block *model.Block)
	AddTransaction(tx *model.Transaction) errors.ERR
}

const (
	pollInterval    = 2 * time.Second
	maxReorgDepth   = 100
	fetchBlockGroup = chaincfg.BlocksPerFetch
)

// Pipeline drives the node's local chain toward the best known peer chain:
// download, verify, apply, and — when a peer's chain forks away from ours
// — undo and replay.
type Pipeline struct {
	logger ulogger.Logger
	chain  *chainstate.ChainState
	hosts  Hosts
	client BlockFetcher
	hasher crypto.Hasher
	pool   MempoolFinisher

	// pufferfishHasher, when set, replaces hasher for PoW verification of
	// blocks at or above chaincfg.PufferfishStartBlock. Nil until
	// SetPufferfishHasher is called, matching a deployment that hasn't yet
	// reached the cutover height.
	pufferfishHasher crypto.Hasher

	shutdown chan struct{}
	done     chan struct{}
}

func New(logger ulogger.Logger, chain *chainstate.ChainState, hosts Hosts, client BlockFetcher, hasher crypto.Hasher, pool MempoolFinisher) *Pipeline {
	return &Pipeline{
		logger:   logger,
		chain:    chain,
		hosts:    hosts,
		client:   client,
		hasher:   hasher,
		pool:     pool,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetPufferfishHasher wires the Pufferfish proof-of-work variant in for
// blocks at or above chaincfg.PufferfishStartBlock; omit the call to
// validate every block with the base hasher regardless of height.
func (p *Pipeline) SetPufferfishHasher(h crypto.Hasher) {
	p.pufferfishHasher = h
}

// powHasherFor returns the proof-of-work hasher that applies to a block at
// the given height, per chainstate.PowFunctionFor.
func (p *Pipeline) powHasherFor(height uint32) crypto.Hasher {
	if p.pufferfishHasher != nil && chainstate.PowFunctionFor(height) {
		return p.pufferfishHasher
	}
	return p.hasher
}

// Start runs the sync loop until ctx is cancelled, matching the
// servicemanager.Service contract.
func (p *Pipeline) Start(ctx context.Context) error {
	defer close(p.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.shutdown:
			return nil
		case <-ticker.C:
			p.syncOnce(ctx)
		}
	}
}

func (p *Pipeline) Stop(ctx context.Context) error {
	close(p.shutdown)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) Health(ctx context.Context) (int, string, error) {
	return 200, "ok", nil
}

// syncOnce consults the best fresh peer and advances the local chain
// toward it, one fetch-batch at a time.
func (p *Pipeline) syncOnce(ctx context.Context) {
	peerURL, snap, ok := p.hosts.BestPeer()
	if !ok {
		return
	}

	height, _, totalWork := p.chain.Tip()
	if snap.CumulativeWork.Cmp(totalWork) <= 0 {
		return // local chain is already at least as good
	}

	tracker, ok := p.hosts.Tracker(peerURL)
	if !ok {
		return
	}

	if err := p.syncFrom(ctx, peerURL, tracker, height); err != nil {
		var cErr *errors.Error
		if errors.As(err, &cErr) && cErr.Code == errors.ERR_STORAGE {
			p.logger.Fatalf("blockpipeline: local storage failure while syncing from %s: %v", peerURL, err)
		}
		p.logger.Warnf("blockpipeline: sync from %s failed: %v", peerURL, err)
		if invalid, ok := err.(*errors.Error); ok && invalid.Code == errors.ERR_PEER_INVALID {
			p.hosts.Blacklist(peerURL)
		}
	}
}

// syncFrom downloads and applies blocks from peerURL starting just beyond
// localHeight. If the peer's tracked header at localHeight+1 does not
// extend our current tip (a fork), it first reorgs back to the common
// ancestor via UndoBlock.
func (p *Pipeline) syncFrom(ctx context.Context, peerURL string, tracker *headerchain.Tracker, localHeight uint32) error {
	if err := p.reorgIfNeeded(ctx, tracker, localHeight); err != nil {
		return err
	}

	target := tracker.Tip()

	for {
		height, _, tip := p.chain.Tip()
		if tip.Cmp(target.CumulativeWork) >= 0 {
			return nil
		}

		end := height + fetchBlockGroup
		if target.Height < end {
			end = target.Height
		}

		for next := height + 1; next <= end; next++ {
			block, err := p.client.FetchBlock(ctx, peerURL, next)
			if err != nil {
				return errors.New(errors.ERR_PEER_TRANSIENT, "fetch block %d from %s: %v", next, peerURL, err)
			}

			if err := p.verifyBlock(block); err != nil {
				var cErr *errors.Error
				if errors.As(err, &cErr) && cErr.Code == errors.ERR_STORAGE {
					return err
				}
				return errors.New(errors.ERR_PEER_INVALID, "block %d from %s failed verification", next, peerURL, err)
			}

			if err := p.chain.ApplyBlock(block); err != nil {
				return fmt.Errorf("apply block %d: %w", next, err)
			}

			p.pool.FinishBlock(block)
		}
	}
}

// reorgIfNeeded walks the local chain back via UndoBlock until its tip
// matches an ancestor the peer's tracker also has, then re-admits any
// undone transactions that the replacement chain does not also contain.
func (p *Pipeline) reorgIfNeeded(ctx context.Context, tracker *headerchain.Tracker, localHeight uint32) error {
	// A cheap, common-case check: if our tip hash matches the peer's
	// header at our height, there is nothing to undo.
	height, tipHash, _ := p.chain.Tip()
	if height == 0 {
		return nil
	}

	peerHashAtHeight, err := p.peerHashAt(ctx, tracker, height)
	if err != nil || peerHashAtHeight == tipHash {
		return nil
	}

	undone := make([]*model.Block, 0)
	depth := 0
	for {
		if depth > maxReorgDepth {
			return errors.New(errors.ERR_PEER_INVALID, "reorg depth exceeds limit")
		}

		block, err := p.chain.UndoBlock()
		if err != nil {
			return fmt.Errorf("reorg: undo: %w", err)
		}
		undone = append(undone, block)
		depth++

		height, tipHash, _ = p.chain.Tip()
		if height == 0 {
			break
		}
		peerHashAtHeight, err = p.peerHashAt(ctx, tracker, height)
		if err == nil && peerHashAtHeight == tipHash {
			break
		}
	}

	// Re-admit transactions from undone blocks; any that a replacement
	// block also contains are pruned again by FinishBlock when that block
	// is applied.
	for _, block := range undone {
		for _, tx := range block.Transactions {
			if tx.IsFee() {
				continue
			}
			p.pool.AddTransaction(tx)
		}
	}

	return nil
}

// peerHashAt returns the peer's locally-verified header hash at height,
// per the tracker's own retained header sequence — not an approximation
// from the peer's current tip, so reorgIfNeeded walks back to the true
// common ancestor height by height rather than toward genesis whenever the
// fork point isn't exactly at the peer's reported tip.
func (p *Pipeline) peerHashAt(ctx context.Context, tracker *headerchain.Tracker, height uint32) (model.Hash, error) {
	hash, ok := tracker.HashAt(height)
	if !ok {
		return model.Hash{}, errors.ErrNotFound
	}
	return hash, nil
}

// SubmitBlock validates and applies a block submitted directly to this node
// (POST /submit, §6), rather than one pulled from a peer during syncOnce.
// It extends the same head the syncOnce loop advances: a submission that
// does not build on the current tip is rejected rather than triggering a
// reorg, since a solo miner is expected to be submitting against the tip it
// was just handed.
func (p *Pipeline) SubmitBlock(block *model.Block) errors.ERR {
	height, tipHash, _ := p.chain.Tip()
	if block.Header.ID != height+1 {
		return errors.ERR_INVALID_BLOCK_ID
	}
	if block.Header.PreviousHash != tipHash {
		return errors.ERR_INVALID_PREVIOUS_HASH
	}

	if err := p.verifyBlock(block); err != nil {
		return codeOf(err)
	}
	if err := p.chain.ApplyBlock(block); err != nil {
		code := codeOf(err)
		if code == errors.ERR_STORAGE {
			p.logger.Fatalf("blockpipeline: local storage failure applying submitted block %d: %v", block.Header.ID, err)
		}
		return code
	}

	p.pool.FinishBlock(block)
	return errors.ERR_SUCCESS
}

// codeOf extracts the wire status code from an *errors.Error, or reports
// ERR_UNKNOWN for an error chain that holds no *errors.Error.
func codeOf(err error) errors.ERR {
	var cErr *errors.Error
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return errors.ERR_UNKNOWN
}

// verifyBlock checks proof-of-work, the declared difficulty, merkle root,
// and transaction count — everything chainstate.ApplyBlock itself assumes
// has already been checked.
func (p *Pipeline) verifyBlock(block *model.Block) error {
	if len(block.Transactions) == 0 || len(block.Transactions) > chaincfg.MaxTransactionsPerBlock {
		return errors.New(errors.ERR_INVALID_TRANSACTION_COUNT, "block %d has %d transactions", block.Header.ID, len(block.Transactions))
	}

	if block.Coinbase() == nil {
		return errors.New(errors.ERR_INVALID_TRANSACTION_COUNT, "block %d has no coinbase", block.Header.ID)
	}

	powHash := p.powHasherFor(block.Header.ID).PowHash(block.Header.Bytes())
	if !model.HashMeetsTarget(powHash, block.Header.DifficultyTarget) {
		return errors.New(errors.ERR_INVALID_POW, "block %d: pow does not meet target", block.Header.ID)
	}
	block.Hash = powHash

	merkle := block.MerkleRoot(p.hasher)
	if merkle != block.Header.MerkleRoot {
		return errors.New(errors.ERR_INVALID_MERKLE_ROOT, "block %d: merkle root mismatch", block.Header.ID)
	}

	expectedDifficulty := p.chain.DifficultyForNext()
	if block.Header.DifficultyTarget != expectedDifficulty {
		return errors.New(errors.ERR_INVALID_DIFFICULTY, "block %d: difficulty %d != expected %d", block.Header.ID, block.Header.DifficultyTarget, expectedDifficulty)
	}

	for _, tx := range block.Transactions {
		if tx.IsFee() {
			continue
		}
		if verr := p.chain.VerifyTransaction(tx); verr != nil {
			return verr
		}
	}

	return nil
}
