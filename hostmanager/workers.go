package hostmanager

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr-pandabear/pandanode/errors"
)

const (
	discoveryInterval   = 30 * time.Second
	headerSyncInterval  = 5 * time.Second
	perPeerFetchTimeout = 10 * time.Second
)

// Start launches the background discovery and header-sync workers. It
// satisfies the servicemanager.Service contract.
func (hm *HostManager) Start(ctx context.Context) error {
	hm.wg.Add(2)
	go hm.discoveryLoop(ctx)
	go hm.headerSyncLoop(ctx)
	return nil
}

// Stop signals both workers to exit and waits for them.
func (hm *HostManager) Stop(ctx context.Context) error {
	close(hm.shutdown)
	done := make(chan struct{})
	go func() {
		hm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports degraded (but not down) once no peer is fresh.
func (hm *HostManager) Health(ctx context.Context) (int, string, error) {
	if _, ok := hm.GetGoodHost(); !ok {
		return 503, "no fresh peers", nil
	}
	return 200, "ok", nil
}

// discoveryLoop periodically asks each fresh peer for its own peer list and
// merges newly seen URLs in, the low-cadence worker from §4.B.
func (hm *HostManager) discoveryLoop(ctx context.Context) {
	defer hm.wg.Done()
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.discoverOnce(ctx)
		}
	}
}

// discoverOnce handshakes every known host (not just the currently-fresh
// ones, since a handshake is exactly how a down host becomes fresh again),
// then asks each that answered for its own peer list, merging newly seen
// URLs minus the blacklist. One slow or hanging peer never delays the
// others.
func (hm *HostManager) discoverOnce(ctx context.Context) {
	hm.mu.RLock()
	all := make([]*HostEntry, 0, len(hm.entries))
	for _, e := range hm.entries {
		all = append(all, e)
	}
	hm.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range all {
		e := e
		g.Go(func() error {
			hm.pingOnce(gctx, e)

			if !e.fresh() {
				return nil
			}

			fetchCtx, cancel := context.WithTimeout(gctx, perPeerFetchTimeout)
			peers, err := hm.client.FetchPeers(fetchCtx, e.URL)
			cancel()
			if err != nil {
				hm.recordFailure(e)
				return nil
			}

			for _, peerURL := range peers {
				if peerURL != "" {
					hm.addHost(peerURL, false)
				}
			}
			return nil
		})
	}

	_ = g.Wait()
}

// pingOnce performs the handshake of §4.B: GET /name, recording the peer's
// version and clock_delta_ms on success, or incrementing its failure
// counter on failure.
func (hm *HostManager) pingOnce(ctx context.Context, e *HostEntry) {
	fetchCtx, cancel := context.WithTimeout(ctx, perPeerFetchTimeout)
	hs, err := hm.client.FetchName(fetchCtx, e.URL)
	cancel()

	if err != nil {
		hm.recordFailure(e)
		return
	}
	hm.recordHandshake(e, hs)
}

// headerSyncLoop periodically refreshes every fresh peer's header-chain
// tracker, the medium-cadence worker from §4.B.
func (hm *HostManager) headerSyncLoop(ctx context.Context) {
	defer hm.wg.Done()
	ticker := time.NewTicker(headerSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hm.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.syncOnce(ctx)
		}
	}
}

func (hm *HostManager) syncOnce(ctx context.Context) {
	hm.mu.RLock()
	entries := make([]*HostEntry, 0, len(hm.entries))
	for _, e := range hm.entries {
		if e.fresh() {
			entries = append(entries, e)
		}
	}
	hm.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, perPeerFetchTimeout)
			err := e.tracker.Refresh(fetchCtx)
			cancel()

			if err != nil {
				var cErr *errors.Error
				if errors.As(err, &cErr) && cErr.Code == errors.ERR_PEER_INVALID {
					hm.Blacklist(e.URL)
					return nil
				}
				hm.recordFailure(e)
				return nil
			}
			hm.recordSuccess(e)
			return nil
		})
	}
	_ = g.Wait()
}
