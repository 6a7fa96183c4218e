// Package chaincfg holds per-network consensus parameters: checkpoints,
// banned hashes, and the constants that govern difficulty and the
// Pufferfish proof-of-work cutover.
package chaincfg

import (
	"time"

	"github.com/mr-pandabear/pandanode/model"
)

const (
	DecimalScaleFactor = model.DecimalScaleFactor

	TimeoutMs            = 5000
	TimeoutBlockMs       = 30000
	TimeoutBlockHeadersMs = 60000
	TimeoutSubmitMs      = 30000

	BlocksPerFetch      = 200
	BlockHeadersPerFetch = 2000

	BuildVersion = "0.6.6-beta"

	MaxTransactionsPerBlock = 25000
	PufferfishStartBlock    = 124500

	DifficultyLookback  = 100
	DesiredBlockTimeSec = 90
	MinDifficulty       = 6
	MaxDifficulty       = 255

	MinFeeToEnterMempool = model.Amount(1)
	TxBranchFactor       = 10

	LedgerFilePath     = "./data/ledger"
	TxDBFilePath       = "./data/txdb"
	BlockStoreFilePath = "./data/blocks"
	PufferfishCacheFilePath = "./data/pufferfish"
)

// TimeoutMsDuration is TimeoutMs as a time.Duration, for callers that need
// to build a context deadline rather than compare raw milliseconds.
func TimeoutMsDuration() time.Duration {
	return time.Duration(TimeoutMs) * time.Millisecond
}

// TimeoutSubmitMsDuration is TimeoutSubmitMs as a time.Duration.
func TimeoutSubmitMsDuration() time.Duration {
	return time.Duration(TimeoutSubmitMs) * time.Millisecond
}

// Checkpoint pins a known-good (height, hash) pair; a peer whose header
// chain disagrees at a checkpointed height is blacklisted.
type Checkpoint struct {
	Height uint32
	Hash   model.Hash
}

// Params describes one network's consensus configuration.
type Params struct {
	Name           string
	GenesisHash    model.Hash
	DefaultPort    string
	Checkpoints    []Checkpoint
	BannedHashes   map[uint32]map[model.Hash]struct{} // height -> banned hash set
	MinHostVersion string
}

// IsBanned reports whether hash is banned at height under p.
func (p *Params) IsBanned(height uint32, hash model.Hash) bool {
	if p.BannedHashes == nil {
		return false
	}
	set, ok := p.BannedHashes[height]
	if !ok {
		return false
	}
	_, banned := set[hash]
	return banned
}

// RecomputeDifficulty adjusts the difficulty byte so the measured average
// block time over timestamps (milliseconds, oldest first) tends toward
// DesiredBlockTimeSec, clamped to [MinDifficulty, MaxDifficulty]. Both
// ChainState and the per-peer HeaderChain tracker use this so a peer's
// declared difficulty can be checked against the same rule independently
// of our own chain state.
func RecomputeDifficulty(current uint8, timestamps []int64) uint8 {
	if len(timestamps) < 2 {
		return current
	}

	elapsedSec := float64(timestamps[len(timestamps)-1]-timestamps[0]) / 1000.0
	intervals := float64(len(timestamps) - 1)
	if intervals <= 0 {
		return current
	}
	avg := elapsedSec / intervals

	next := int(current)
	switch {
	case avg < DesiredBlockTimeSec*0.95:
		next++
	case avg > DesiredBlockTimeSec*1.05:
		next--
	}

	if next < MinDifficulty {
		next = MinDifficulty
	}
	if next > MaxDifficulty {
		next = MaxDifficulty
	}
	return uint8(next)
}

// CheckpointAt returns the checkpoint pinned at height, if any.
func (p *Params) CheckpointAt(height uint32) (Checkpoint, bool) {
	for _, cp := range p.Checkpoints {
		if cp.Height == height {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// MainNetParams is the default network configuration. It carries no
// checkpoints or banned hashes, and nothing fills them in at startup.
var MainNetParams = Params{
	Name:        "main",
	DefaultPort: "8333",
	BannedHashes: map[uint32]map[model.Hash]struct{}{},
}
