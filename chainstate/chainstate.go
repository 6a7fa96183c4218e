// Package chainstate implements component C: the ledger balance mapping,
// the seen-transaction set, and the chain tip, plus the difficulty
// derivation rule the header tracker and block pipeline both depend on.
//
// ChainState is instantiated once in the composition root and passed by
// reference to Mempool, the block pipeline and the peer-wire server (see Design
// Notes on global mutable singletons) — there are no package-level
// statics. Writes (ApplyBlock, UndoBlock) are mutually exclusive with each
// other; Balance/Tip/VerifyTransaction/DifficultyForNext readers only take
// the read half of the lock and observe a consistent snapshot.
package chainstate

import (
	"math/big"
	"sync"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/blockstore"
	"github.com/mr-pandabear/pandanode/stores/ledger"
	"github.com/mr-pandabear/pandanode/stores/txdb"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// ChainState is the block-acceptance pipeline's exclusive state. Only the
// pipeline calls ApplyBlock/UndoBlock; every other collaborator goes
// through the read-only View.
type ChainState struct {
	mu sync.RWMutex

	logger   ulogger.Logger
	hasher   crypto.Hasher
	verifier crypto.Verifier

	ledgerStore *ledger.Store
	txdbStore   *txdb.Store
	blockStore  *blockstore.Store

	height    uint32
	tipHash   model.Hash
	totalWork *big.Int

	// recentTimestamps holds up to DifficultyLookback block timestamps
	// ending at the tip, used to recompute difficulty at lookback
	// boundaries.
	recentTimestamps []int64
	difficulty       uint8
}

// New constructs a ChainState over already-open stores. If the stores are
// empty (height 0), it initializes at genesis.
func New(logger ulogger.Logger, hasher crypto.Hasher, verifier crypto.Verifier, ledgerStore *ledger.Store, txdbStore *txdb.Store, blockStore *blockstore.Store) *ChainState {
	return &ChainState{
		logger:      logger,
		hasher:      hasher,
		verifier:    verifier,
		ledgerStore: ledgerStore,
		txdbStore:   txdbStore,
		blockStore:  blockStore,
		tipHash:     model.NullHash,
		totalWork:   big.NewInt(0),
		difficulty:  chaincfg.MinDifficulty,
	}
}

// View is the read-only surface ChainState exposes to Mempool — it never exposes ApplyBlock/UndoBlock, breaking the
// Mempool<->ChainState cycle the design notes call out: the block pipeline
// (not ChainState) invokes mempool.finish_block after an apply.
type View interface {
	VerifyTransaction(tx *model.Transaction) *errors.Error
	Balance(addr model.PublicAddress) model.Amount
	Tip() (height uint32, hash model.Hash, totalWork *big.Int)
	DifficultyForNext() uint8
}

var _ View = (*ChainState)(nil)

// VerifyTransaction checks signature (if non-fee), nonce/hash freshness,
// non-negative amount, and for non-fee transactions that amount+fee does
// not exceed the sender's balance.
func (cs *ChainState) VerifyTransaction(tx *model.Transaction) *errors.Error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if tx.IsFee() {
		return nil
	}

	if _, seen, err := cs.txdbStore.Seen(tx.Hash); err != nil {
		return errors.NewStorageError("chainstate: txdb lookup failed", err)
	} else if seen {
		return errors.New(errors.ERR_INVALID_NONCE, "transaction hash already included in chain")
	}

	if len(tx.Signature) == 0 || len(tx.SigningKey) == 0 {
		return errors.New(errors.ERR_INVALID_SIGNATURE, "non-fee transaction missing signature")
	}

	if verr := cs.VerifySignature(tx, cs.verifier); verr != nil {
		return verr
	}

	bal, err := cs.ledgerStore.Balance(tx.From)
	if err != nil {
		return errors.NewStorageError("chainstate: ledger lookup failed", err)
	}

	if uint64(tx.Amount)+uint64(tx.Fee) > uint64(bal) {
		return errors.New(errors.ERR_BALANCE_TOO_LOW, "amount+fee exceeds balance")
	}

	return nil
}

// VerifySignature checks the cryptographic signature of a non-fee
// transaction using verifier; kept separate from VerifyTransaction so
// callers that already trust the signature (e.g. re-validating a
// previously-admitted mempool entry) can skip the expensive check.
func (cs *ChainState) VerifySignature(tx *model.Transaction, verifier crypto.Verifier) *errors.Error {
	if tx.IsFee() {
		return nil
	}
	if !verifier.Verify(tx.SigningKey, tx.SigningMessage(), tx.Signature) {
		return errors.New(errors.ERR_INVALID_SIGNATURE, "signature does not verify")
	}
	if verifier.AddressOf(tx.SigningKey) != tx.From {
		return errors.New(errors.ERR_INVALID_SIGNATURE, "signing key does not hash to from address")
	}
	return nil
}

func (cs *ChainState) Balance(addr model.PublicAddress) model.Amount {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	bal, err := cs.ledgerStore.Balance(addr)
	if err != nil {
		cs.logger.Errorf("chainstate: balance lookup for %s failed: %v", addr, err)
		return 0
	}
	return bal
}

func (cs *ChainState) Tip() (height uint32, hash model.Hash, totalWork *big.Int) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.height, cs.tipHash, new(big.Int).Set(cs.totalWork)
}

// DifficultyForNext returns the constant difficulty in effect until the
// next DifficultyLookback boundary.
func (cs *ChainState) DifficultyForNext() uint8 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.difficulty
}

// PowFunctionFor returns whether the Pufferfish variant applies at height
// (it activates at chaincfg.PufferfishStartBlock and affects validation
// only, never the difficulty curve).
func PowFunctionFor(height uint32) bool {
	return height >= chaincfg.PufferfishStartBlock
}

// workForDifficulty returns 2^difficulty, the per-block contribution to
// cumulative work.
func workForDifficulty(difficulty uint8) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}
