package mempool

import "github.com/mr-pandabear/pandanode/model"

// FinishBlock is invoked by the block-acceptance pipeline (never by
// ChainState itself — see the Mempool/ChainState design note) after a block
// has been applied. For each transaction in block, if the mempool holds
// it, remove it; if it is a main-chain non-fee transaction, subtract
// amount+fee from the sender's outgoing bill, dropping the entry once it
// reaches zero. Program-chain transactions are pruned from their own
// sub-queue only.
func (m *Mempool) FinishBlock(block *model.Block) {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()

	for _, tx := range block.Transactions {
		if _, ok := m.present[tx.Hash]; !ok {
			continue
		}

		if tx.ProgramID.IsNull() {
			m.removeFromMainQueue(tx)
			if !tx.IsFee() {
				spend := uint64(tx.Amount) + uint64(tx.Fee)
				remaining := uint64(m.outgoing[tx.From])
				if spend >= remaining {
					delete(m.outgoing, tx.From)
				} else {
					m.outgoing[tx.From] = model.Amount(remaining - spend)
				}
			}
		} else {
			m.removeFromProgramQueue(tx)
		}

		delete(m.present, tx.Hash)
	}
}

func (m *Mempool) removeFromMainQueue(tx *model.Transaction) {
	for i, q := range m.queue {
		if q.Hash == tx.Hash {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Mempool) removeFromProgramQueue(tx *model.Transaction) {
	sub := m.programQueues[tx.ProgramID]
	for i, q := range sub {
		if q.Hash == tx.Hash {
			m.programQueues[tx.ProgramID] = append(sub[:i], sub[i+1:]...)
			return
		}
	}
}
