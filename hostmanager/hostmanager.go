// Package hostmanager implements component B: peer discovery, liveness
// tracking, per-peer header-chain sync, and network-time estimation.
package hostmanager

import (
	"context"
	"math/big"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/crypto"
	"github.com/mr-pandabear/pandanode/headerchain"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/mr-pandabear/pandanode/peerwire"
	"github.com/mr-pandabear/pandanode/settings"
	"github.com/mr-pandabear/pandanode/ulogger"
)

// Client is the full surface HostManager needs from a peer: identity,
// liveness, the peer list for discovery, and header fetches for the
// per-peer headerchain.Tracker. peerwire.Client satisfies this.
type Client interface {
	headerchain.PeerClient
	FetchName(ctx context.Context, peerURL string) (peerwire.Handshake, error)
	FetchPeers(ctx context.Context, peerURL string) ([]string, error)
	FetchBlockHash(ctx context.Context, peerURL string, id uint32) (model.Hash, error)
}

// failureThreshold is the number of consecutive failed contacts after which
// a host is dropped from the fresh set (but kept around for later retry,
// unless it has also been explicitly blacklisted for a consensus fault).
const failureThreshold = 5

// HostEntry is one known peer.
type HostEntry struct {
	URL string

	tracker *headerchain.Tracker

	failures    atomic.Uint32
	blacklisted atomic.Bool
	whitelisted bool

	lastContact atomic.Int64 // unix millis
	clockDelta  atomic.Int64 // peer_time_ms - local_time_ms, from the last successful handshake
	version     atomic.String
}

func (h *HostEntry) fresh() bool {
	return !h.blacklisted.Load() && h.failures.Load() < failureThreshold
}

// HostManager tracks the set of known peers for a node.
type HostManager struct {
	logger   ulogger.Logger
	settings *settings.Settings
	client   Client
	hasher   crypto.Hasher
	params   *chaincfg.Params

	mu      sync.RWMutex
	entries map[string]*HostEntry

	shutdown chan struct{}
	wg       sync.WaitGroup
}

func New(logger ulogger.Logger, s *settings.Settings, client Client, hasher crypto.Hasher) *HostManager {
	params, err := s.ChainParams()
	if err != nil {
		logger.Errorf("hostmanager: invalid checkpoint/bannedHashes config, peer ban/checkpoint enforcement disabled: %v", err)
		params = nil
	}

	hm := &HostManager{
		logger:   logger,
		settings: s,
		client:   client,
		hasher:   hasher,
		params:   params,
		entries:  make(map[string]*HostEntry),
		shutdown: make(chan struct{}),
	}
	for _, url := range s.BootstrapURLs {
		hm.addHost(url, false)
	}
	for _, url := range s.Whitelist {
		hm.addHost(url, true)
	}
	return hm
}

func (hm *HostManager) addHost(url string, whitelisted bool) *HostEntry {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if e, ok := hm.entries[url]; ok {
		if whitelisted {
			e.whitelisted = true
		}
		return e
	}

	e := &HostEntry{
		URL:         url,
		tracker:     headerchain.New(url, hm.client, hm.hasher, hm.logger, hm.params),
		whitelisted: whitelisted,
	}
	hm.entries[url] = e
	return e
}

// Blacklist permanently excludes a peer after it is caught violating
// consensus rules (PeerInvalid). Whitelisted hosts are never blacklisted.
func (hm *HostManager) Blacklist(url string) {
	hm.mu.RLock()
	e, ok := hm.entries[url]
	hm.mu.RUnlock()
	if !ok || e.whitelisted {
		return
	}
	e.blacklisted.Store(true)
	hm.logger.Warnf("hostmanager: blacklisted %s", url)
}

func (hm *HostManager) recordFailure(e *HostEntry) {
	e.failures.Inc()
}

func (hm *HostManager) recordSuccess(e *HostEntry) {
	e.failures.Store(0)
	e.lastContact.Store(time.Now().UnixMilli())
}

// recordHandshake updates an entry from a successful GET /name: the
// version, and clock_delta_ms := peer_time - local_time per §4.B.
func (hm *HostManager) recordHandshake(e *HostEntry, hs peerwire.Handshake) {
	now := time.Now().UnixMilli()
	e.failures.Store(0)
	e.lastContact.Store(now)
	e.clockDelta.Store(hs.TimeMs - now)
	e.version.Store(hs.Version)
}

// SampleFreshHosts returns up to k peer URLs drawn from hosts that are
// neither blacklisted nor past the failure threshold — this is the
// mempool.PeerSampler contract.
func (hm *HostManager) SampleFreshHosts(k int) []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	fresh := make([]string, 0, len(hm.entries))
	for _, e := range hm.entries {
		if e.fresh() {
			fresh = append(fresh, e.URL)
		}
	}

	rand.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	if k < len(fresh) {
		fresh = fresh[:k]
	}
	return fresh
}

// SampleAllHosts returns every known peer URL regardless of freshness, for
// diagnostics (GET /peers).
func (hm *HostManager) SampleAllHosts() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]string, 0, len(hm.entries))
	for url := range hm.entries {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

// GetGoodHost returns one fresh peer at random, or "", false if none exist.
func (hm *HostManager) GetGoodHost() (string, bool) {
	fresh := hm.SampleFreshHosts(1)
	if len(fresh) == 0 {
		return "", false
	}
	return fresh[0], true
}

// GetRandomHost returns any known peer regardless of freshness.
func (hm *HostManager) GetRandomHost() (string, bool) {
	all := hm.SampleAllHosts()
	if len(all) == 0 {
		return "", false
	}
	return all[rand.Intn(len(all))], true
}

// BestPeer returns the URL and snapshot of the fresh peer with the greatest
// cumulative work, used by the block-acceptance pipeline to decide whether
// (and from whom) to sync.
func (hm *HostManager) BestPeer() (string, headerchain.Snapshot, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	var bestURL string
	var best headerchain.Snapshot
	found := false

	for _, e := range hm.entries {
		if !e.fresh() {
			continue
		}
		snap := e.tracker.Tip()
		if !found || snap.CumulativeWork.Cmp(best.CumulativeWork) > 0 {
			best = snap
			bestURL = e.URL
			found = true
		}
	}
	return bestURL, best, found
}

// majorityTip tallies claimed heights across fresh peers and returns the
// modal (most-common) height, tie-broken by the greatest cumulative work
// observed among peers claiming that height — the "majority height ...
// ties broken by highest cumulative work" rule of §4.B, a vote over the
// whole fresh peer set rather than a single best-work peer's own claim.
func (hm *HostManager) majorityTip() (headerchain.Snapshot, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	counts := make(map[uint32]int)
	bestWorkAt := make(map[uint32]*big.Int)
	snapAt := make(map[uint32]headerchain.Snapshot)

	any := false
	for _, e := range hm.entries {
		if !e.fresh() {
			continue
		}
		snap := e.tracker.Tip()
		any = true
		counts[snap.Height]++
		if w, ok := bestWorkAt[snap.Height]; !ok || snap.CumulativeWork.Cmp(w) > 0 {
			bestWorkAt[snap.Height] = snap.CumulativeWork
			snapAt[snap.Height] = snap
		}
	}
	if !any {
		return headerchain.Snapshot{}, false
	}

	var majorityHeight uint32
	majorityCount := -1
	for height, count := range counts {
		switch {
		case count > majorityCount:
			majorityCount = count
			majorityHeight = height
		case count == majorityCount && bestWorkAt[height].Cmp(bestWorkAt[majorityHeight]) > 0:
			majorityHeight = height
		}
	}

	return snapAt[majorityHeight], true
}

// GetBlockCount returns the majority-height claim across current fresh
// peers, per §4.B.
func (hm *HostManager) GetBlockCount() uint32 {
	snap, ok := hm.majorityTip()
	if !ok {
		return 0
	}
	return snap.Height
}

// GetTotalWork returns the cumulative work of the majority-height tip, per
// §4.B.
func (hm *HostManager) GetTotalWork() *big.Int {
	snap, ok := hm.majorityTip()
	if !ok {
		return big.NewInt(0)
	}
	return snap.CumulativeWork
}

// GetBlockHash asks a fresh peer for the hash at height id.
func (hm *HostManager) GetBlockHash(ctx context.Context, id uint32) (model.Hash, bool) {
	url, ok := hm.GetGoodHost()
	if !ok {
		return model.Hash{}, false
	}
	hash, err := hm.client.FetchBlockHash(ctx, url, id)
	if err != nil {
		return model.Hash{}, false
	}
	return hash, true
}

// GetNetworkTimestamp returns local_time_ms + median(clock_delta_ms over
// fresh peers), per §4.B. With no fresh peers it falls back to local time.
func (hm *HostManager) GetNetworkTimestamp() int64 {
	now := time.Now().UnixMilli()

	hm.mu.RLock()
	var deltas []int64
	for _, e := range hm.entries {
		if !e.fresh() || e.lastContact.Load() == 0 {
			continue
		}
		deltas = append(deltas, e.clockDelta.Load())
	}
	hm.mu.RUnlock()

	if len(deltas) == 0 {
		return now
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return now + medianOf(deltas)
}

// medianOf returns the median of a sorted-ascending slice; for an even
// count it takes the lower of the two middle values, matching the simple
// "median(clock_delta_ms)" the spec describes without a tie-breaking rule.
func medianOf(sorted []int64) int64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1]
}

// Tracker exposes a peer's header-chain tracker (used by the
// block-acceptance pipeline to pull the actual blocks once it has decided
// to sync from this peer).
func (hm *HostManager) Tracker(url string) (*headerchain.Tracker, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	e, ok := hm.entries[url]
	if !ok {
		return nil, false
	}
	return e.tracker, ok
}
