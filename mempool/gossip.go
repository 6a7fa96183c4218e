package mempool

import (
	"context"
	"sync"
	"time"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/model"
)

const gossipInterval = 100 * time.Millisecond

// Start records the context sendGossipBatch uses for per-peer send
// timeouts and waits for shutdown, matching the service-manager Service
// contract. The gossip batcher itself is already running (it was started at
// construction, background=true) — Start/Stop just bound its lifetime to the
// node's.
func (m *Mempool) Start(ctx context.Context) error {
	m.sendCtx.Store(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
		case <-m.shutdown:
		}
	}()
	return nil
}

func (m *Mempool) Stop(ctx context.Context) error {
	close(m.shutdown)
	m.wg.Wait()
	return nil
}

func (m *Mempool) Health(ctx context.Context) (int, string, error) {
	return 200, "mempool ok", nil
}

// gossipContext returns the context installed by Start, or a background
// context if the mempool hasn't been started yet (e.g. a test calling
// sendGossipBatch directly through the batcher).
func (m *Mempool) gossipContext() context.Context {
	if ctx, ok := m.sendCtx.Load().(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// sendGossipBatch is the batcher.New sendBatch callback: it fires every
// gossipInterval (or once the batch reaches capacity), samples up to
// TxBranchFactor fresh peers, and sends the batch to each in parallel. A
// single success is enough to consider the batch delivered; if every peer
// send fails, the transactions are re-enqueued onto the batcher for the next
// round rather than dropped.
func (m *Mempool) sendGossipBatch(batch []*model.Transaction) {
	if len(batch) == 0 {
		return
	}

	if m.sampler == nil || m.gossiper == nil {
		m.requeue(batch)
		return
	}

	peers := m.sampler.SampleFreshHosts(chaincfg.TxBranchFactor)
	if len(peers) == 0 {
		m.requeue(batch)
		return
	}

	ctx := m.gossipContext()

	var succeeded sync.Map // bool successes
	var wg sync.WaitGroup
	for _, peer := range peers {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, time.Duration(chaincfg.TimeoutMs)*time.Millisecond)
			defer cancel()
			if err := m.gossiper.SendTransactions(sendCtx, peer, batch); err == nil {
				succeeded.Store(peer, true)
			} else {
				m.logger.Warnf("mempool: gossip to %s failed: %v", peer, err)
			}
		}()
	}
	wg.Wait()

	anySucceeded := false
	succeeded.Range(func(_, _ any) bool {
		anySucceeded = true
		return false
	})

	if !anySucceeded {
		m.requeue(batch)
	}
}

// requeue puts a failed-to-deliver batch back onto the gossip batcher so it
// is retried on a later drain.
func (m *Mempool) requeue(batch []*model.Transaction) {
	for _, tx := range batch {
		m.gossipBatcher.Put(tx)
	}
}
