// Package mempool implements component D: admission, deduplication,
// balance-bill tracking, gossip, and pruning of pending transactions.
//
// queueLock guards transactionQueue/outgoing/programTransactions. The gossip
// queue itself is owned by a github.com/ordishs/go-utils/batcher.Batcher,
// which drains on its own 100ms interval and fans the batch out to peers;
// admission Puts a newly admitted transaction into it while still holding
// queueLock (see enqueueGossipLocked). Network sends happen outside
// queueLock entirely.
package mempool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ordishs/go-utils/batcher"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/chainstate"
	"github.com/mr-pandabear/pandanode/errors"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/programs"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// PeerSampler is the slice of HostManager the mempool needs to pick gossip
// targets; it is satisfied by *hostmanager.HostManager.
type PeerSampler interface {
	SampleFreshHosts(k int) []string
}

// TxGossiper is the slice of peerwire.Client the mempool needs to push a
// transaction batch to one peer.
type TxGossiper interface {
	SendTransactions(ctx context.Context, peerURL string, txs []*model.Transaction) error
}

// Mempool holds the set of admitted, not-yet-mined transactions.
type Mempool struct {
	logger ulogger.Logger
	chain  chainstate.View
	sampler PeerSampler
	gossiper TxGossiper
	programs *programs.Registry

	queueLock sync.Mutex
	queue     []*model.Transaction
	present   map[model.Hash]struct{}
	outgoing  map[model.PublicAddress]model.Amount
	// programQueues holds, per program_id, its own FIFO sub-queue; these
	// transactions bypass the main-chain balance model entirely.
	programQueues map[model.Hash][]*model.Transaction

	gossipBatcher batcher.Batcher[*model.Transaction]
	sendCtx       atomic.Value

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func New(logger ulogger.Logger, chain chainstate.View, sampler PeerSampler, gossiper TxGossiper, registry *programs.Registry) *Mempool {
	m := &Mempool{
		logger:        logger,
		chain:         chain,
		sampler:       sampler,
		gossiper:      gossiper,
		programs:      registry,
		present:       make(map[model.Hash]struct{}),
		outgoing:      make(map[model.PublicAddress]model.Amount),
		programQueues: make(map[model.Hash][]*model.Transaction),
		shutdown:      make(chan struct{}),
	}
	m.gossipBatcher = *batcher.New[*model.Transaction](chaincfg.MaxTransactionsPerBlock, gossipInterval, m.sendGossipBatch, true)
	return m
}

// AddTransaction runs the seven-step admission algorithm and returns the
// resulting status. A status other than ERR_SUCCESS is an admission
// outcome, not a system error, and is returned to the submitter verbatim.
func (m *Mempool) AddTransaction(tx *model.Transaction) errors.ERR {
	m.queueLock.Lock()

	// 1. Already present (main queue or any program sub-queue).
	if _, ok := m.present[tx.Hash]; ok {
		m.queueLock.Unlock()
		return errors.ERR_ALREADY_IN_QUEUE
	}

	// 2. Program transactions bypass the main-chain balance model.
	if !tx.ProgramID.IsNull() {
		if m.programs == nil {
			m.queueLock.Unlock()
			return errors.ERR_UNSUPPORTED_CHAIN
		}
		if _, ok := m.programs.Lookup(tx.ProgramID); !ok {
			m.queueLock.Unlock()
			return errors.ERR_UNSUPPORTED_CHAIN
		}
		m.programQueues[tx.ProgramID] = append(m.programQueues[tx.ProgramID], tx)
		m.present[tx.Hash] = struct{}{}
		m.queueLock.Unlock()

		m.enqueueGossip(tx)
		return errors.ERR_SUCCESS
	}

	// 3. Minimum fee.
	if tx.Fee < chaincfg.MinFeeToEnterMempool {
		m.queueLock.Unlock()
		return errors.ERR_TRANSACTION_FEE_TOO_LOW
	}
	m.queueLock.Unlock()

	// 4. Chain-state verification (outside the lock: may touch storage).
	if verr := m.chain.VerifyTransaction(tx); verr != nil {
		return verr.Code
	}

	m.queueLock.Lock()
	defer m.queueLock.Unlock()

	// Re-check presence: another goroutine may have admitted the same tx
	// while step 4 ran unlocked.
	if _, ok := m.present[tx.Hash]; ok {
		return errors.ERR_ALREADY_IN_QUEUE
	}

	// 5. Outgoing bill vs. balance.
	bill := uint64(m.outgoing[tx.From]) + uint64(tx.Amount) + uint64(tx.Fee)
	if bill > uint64(m.chain.Balance(tx.From)) {
		return errors.ERR_BALANCE_TOO_LOW
	}

	// 6. Capacity.
	if len(m.queue) >= chaincfg.MaxTransactionsPerBlock-1 {
		return errors.ERR_QUEUE_FULL
	}

	// 7. Admit.
	m.queue = append(m.queue, tx)
	m.present[tx.Hash] = struct{}{}
	m.outgoing[tx.From] = model.Amount(bill)

	m.enqueueGossipLocked(tx)

	return errors.ERR_SUCCESS
}

// enqueueGossip hands tx to the gossip batcher; it is safe to call without
// holding queueLock.
func (m *Mempool) enqueueGossip(tx *model.Transaction) {
	m.gossipBatcher.Put(tx)
}

// enqueueGossipLocked is the same operation, named distinctly for call sites
// that happen to already hold queueLock (the batcher's own locking makes the
// distinction unnecessary, but the name documents the calling context).
func (m *Mempool) enqueueGossipLocked(tx *model.Transaction) {
	m.gossipBatcher.Put(tx)
}

// GetTransactions returns a copy of the current main-chain queue for block
// assembly.
func (m *Mempool) GetTransactions() []*model.Transaction {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()
	out := make([]*model.Transaction, len(m.queue))
	copy(out, m.queue)
	return out
}

// Size returns the current main-chain queue length.
func (m *Mempool) Size() int {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()
	return len(m.queue)
}

// OutgoingBill returns the current outgoing bill for addr (for tests and
// diagnostics).
func (m *Mempool) OutgoingBill(addr model.PublicAddress) model.Amount {
	m.queueLock.Lock()
	defer m.queueLock.Unlock()
	return m.outgoing[addr]
}
