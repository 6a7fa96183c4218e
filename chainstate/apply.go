package chainstate

import (
	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/stores/blockstore"
	"github.com/mr-pandabear/pandanode/stores/txdb"
)

// ApplyBlock updates balances, appends to the block store, inserts
// transaction hashes into the seen set, and advances the tip. It assumes
// the caller (the block-acceptance pipeline) has already verified pow,
// merkle root, and every transaction. No partial block is ever kept: the
// balance batch and the block+journal batch each commit atomically, and
// ApplyBlock itself is serialized by cs.mu so no reader observes a
// half-applied block.
func (cs *ChainState) ApplyBlock(block *model.Block) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if block.Header.ID != cs.height+1 {
		return errors.New(errors.ERR_INVALID_BLOCK_ID, "block id %d does not follow tip %d", block.Header.ID, cs.height)
	}
	if block.Header.ID > 1 && block.Header.PreviousHash != cs.tipHash {
		return errors.New(errors.ERR_INVALID_PREVIOUS_HASH, "block previous_hash does not match tip")
	}

	deltas := make([]blockstore.BalanceDelta, 0, len(block.Transactions)*2)
	balanceUpdates := map[model.PublicAddress]model.Amount{}
	seen := map[model.PublicAddress]model.Amount{}

	getBalance := func(addr model.PublicAddress) (model.Amount, error) {
		if v, ok := seen[addr]; ok {
			return v, nil
		}
		v, err := cs.ledgerStore.Balance(addr)
		if err != nil {
			return 0, err
		}
		seen[addr] = v
		deltas = append(deltas, blockstore.BalanceDelta{Addr: addr, PriorValue: v})
		return v, nil
	}

	for _, tx := range block.Transactions {
		if !tx.IsFee() {
			bal, err := getBalance(tx.From)
			if err != nil {
				return errors.NewStorageError("chainstate: apply: read balance", err)
			}
			spend := uint64(tx.Amount) + uint64(tx.Fee)
			if spend > uint64(bal) {
				return errors.New(errors.ERR_BALANCE_TOO_LOW, "block contains overspend by %s", tx.From)
			}
			newBal := model.Amount(uint64(bal) - spend)
			seen[tx.From] = newBal
			balanceUpdates[tx.From] = newBal
		}

		toBal, err := getBalance(tx.To)
		if err != nil {
			return errors.NewStorageError("chainstate: apply: read balance", err)
		}
		newToBal := model.Amount(uint64(toBal) + uint64(tx.Amount))
		seen[tx.To] = newToBal
		balanceUpdates[tx.To] = newToBal
	}

	if err := cs.ledgerStore.WriteBalances(balanceUpdates); err != nil {
		return errors.NewStorageError("chainstate: apply: write balances", err)
	}

	batch := cs.blockStore.NewBatch()
	blockstore.PutBlock(batch, block)
	blockstore.PutJournal(batch, block.Header.ID, deltas)
	if err := cs.blockStore.WriteBatch(batch); err != nil {
		return errors.NewStorageError("chainstate: apply: write block+journal", err)
	}

	txBatch := cs.txdbStore.NewBatch()
	for _, tx := range block.Transactions {
		txdb.MarkSeen(txBatch, tx.Hash, block.Header.ID)
	}
	if err := cs.txdbStore.WriteBatch(txBatch); err != nil {
		return errors.NewStorageError("chainstate: apply: write txdb", err)
	}

	cs.height = block.Header.ID
	cs.tipHash = block.Hash
	cs.totalWork.Add(cs.totalWork, workForDifficulty(block.Header.DifficultyTarget))

	cs.recentTimestamps = append(cs.recentTimestamps, block.Header.Timestamp)
	if len(cs.recentTimestamps) > chaincfg.DifficultyLookback {
		cs.recentTimestamps = cs.recentTimestamps[len(cs.recentTimestamps)-chaincfg.DifficultyLookback:]
	}
	if cs.height%chaincfg.DifficultyLookback == 0 {
		cs.difficulty = chaincfg.RecomputeDifficulty(cs.difficulty, cs.recentTimestamps)
	}

	return nil
}

// UndoBlock reverses the block at the current tip using its inverse
// journal, restoring balances and un-marking its transactions as seen, and
// drops the block's timestamp from the difficulty window. Callers performing
// a reorg recompute difficulty naturally as they replay the new chain's
// ApplyBlock calls. The returned block carries its hash.
func (cs *ChainState) UndoBlock() (*model.Block, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.height == 0 {
		return nil, errors.New(errors.ERR_INVALID_BLOCK_ID, "no block to undo")
	}

	block, err := cs.blockStore.GetBlock(cs.height)
	if err != nil {
		return nil, errors.NewStorageError("chainstate: undo: read block", err)
	}
	journal, err := cs.blockStore.GetJournal(cs.height)
	if err != nil {
		return nil, errors.NewStorageError("chainstate: undo: read journal", err)
	}

	restores := make(map[model.PublicAddress]model.Amount, len(journal))
	for _, d := range journal {
		restores[d.Addr] = d.PriorValue
	}
	if err := cs.ledgerStore.WriteBalances(restores); err != nil {
		return nil, errors.NewStorageError("chainstate: undo: restore balances", err)
	}

	txBatch := cs.txdbStore.NewBatch()
	for _, tx := range block.Transactions {
		txdb.Unmark(txBatch, tx.Hash)
	}
	if err := cs.txdbStore.WriteBatch(txBatch); err != nil {
		return nil, errors.NewStorageError("chainstate: undo: unmark txdb", err)
	}

	batch := cs.blockStore.NewBatch()
	blockstore.RemoveBlock(batch, cs.height)
	if err := cs.blockStore.WriteBatch(batch); err != nil {
		return nil, errors.NewStorageError("chainstate: undo: remove block", err)
	}

	block.Hash = cs.tipHash
	cs.totalWork.Sub(cs.totalWork, workForDifficulty(block.Header.DifficultyTarget))
	cs.height--
	cs.tipHash = block.Header.PreviousHash
	if len(cs.recentTimestamps) > 0 {
		cs.recentTimestamps = cs.recentTimestamps[:len(cs.recentTimestamps)-1]
	}

	return block, nil
}
