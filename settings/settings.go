// Package settings loads the JSON configuration object that drives
// HostManager, Mempool and store construction, and exposes runtime
// tunables through gocore's Config() registry the way the rest of the
// stack does.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mr-pandabear/pandanode/chaincfg"
	"github.com/mr-pandabear/pandanode/model"
	"github.com/ordishs/gocore"
)

// CheckpointConfig is the JSON-friendly form of a chaincfg.Checkpoint.
type CheckpointConfig struct {
	Height uint32 `json:"height"`
	Hash   string `json:"hash"`
}

// Settings is the node's full JSON configuration object, per the external
// interfaces section: ip, port, name, network, bootstrap peer sources,
// minHostVersion, checkpoints, banned hashes, whitelist, firewall.
type Settings struct {
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
	Network string `json:"network"`

	BootstrapURLs  []string `json:"bootstrapUrls"`
	MinHostVersion string   `json:"minHostVersion"`

	Checkpoints  []CheckpointConfig  `json:"checkpoints"`
	BannedHashes map[string][]string `json:"bannedHashes"` // height (as string) -> hashes

	Whitelist []string `json:"whitelist"`
	Firewall  bool     `json:"firewall"`

	LedgerPath     string `json:"ledgerPath"`
	TxDBPath       string `json:"txdbPath"`
	BlockStorePath string `json:"blockStorePath"`
	PufferfishPath string `json:"pufferfishPath"`
}

// NewSettings returns a Settings populated with the defaults described in
// §6, overridable via gocore.Config() at runtime exactly like the rest of
// this module's tunables.
func NewSettings() *Settings {
	ip, _ := gocore.Config().Get("IP", "0.0.0.0")
	port, _ := gocore.Config().GetInt("PORT", 8333)
	name, _ := gocore.Config().Get("NODE_NAME", "pandanode")
	network, _ := gocore.Config().Get("NETWORK", "main")
	minVersion, _ := gocore.Config().Get("MIN_HOST_VERSION", chaincfg.BuildVersion)
	ledgerPath, _ := gocore.Config().Get("LEDGER_PATH", chaincfg.LedgerFilePath)
	txdbPath, _ := gocore.Config().Get("TXDB_PATH", chaincfg.TxDBFilePath)
	blockstorePath, _ := gocore.Config().Get("BLOCKSTORE_PATH", chaincfg.BlockStoreFilePath)
	pufferfishPath, _ := gocore.Config().Get("PUFFERFISH_PATH", chaincfg.PufferfishCacheFilePath)

	return &Settings{
		IP:             ip,
		Port:           port,
		Name:           name,
		Network:        network,
		MinHostVersion: minVersion,
		LedgerPath:     ledgerPath,
		TxDBPath:       txdbPath,
		BlockStorePath: blockstorePath,
		PufferfishPath: pufferfishPath,
	}
}

// LoadFile reads and merges a JSON config file (the bootstrap source list,
// checkpoints, banned hashes, and whitelist commonly live here rather than
// in individual gocore keys).
func LoadFile(path string) (*Settings, error) {
	s := NewSettings()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", path, err)
	}

	return s, nil
}

// HostTimeout is the generic peer-network timeout (TIMEOUT_MS).
func HostTimeout() time.Duration {
	return time.Duration(chaincfg.TimeoutMs) * time.Millisecond
}

// ChainParams builds the chaincfg.Params this node enforces against peers
// (banned hashes and checkpoints, per §4.B blacklist rules (b) and (c))
// from the JSON-friendly config fields, resolving hex hash strings into
// model.Hash values.
func (s *Settings) ChainParams() (*chaincfg.Params, error) {
	params := &chaincfg.Params{
		Name:           s.Network,
		MinHostVersion: s.MinHostVersion,
		BannedHashes:   make(map[uint32]map[model.Hash]struct{}),
	}

	for heightStr, hashes := range s.BannedHashes {
		height, err := strconv.ParseUint(heightStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("settings: bannedHashes key %q: %w", heightStr, err)
		}
		set := make(map[model.Hash]struct{}, len(hashes))
		for _, hexHash := range hashes {
			h, err := model.HashFromHex(hexHash)
			if err != nil {
				return nil, fmt.Errorf("settings: bannedHashes[%s] hash %q: %w", heightStr, hexHash, err)
			}
			set[h] = struct{}{}
		}
		params.BannedHashes[uint32(height)] = set
	}

	for _, cp := range s.Checkpoints {
		h, err := model.HashFromHex(cp.Hash)
		if err != nil {
			return nil, fmt.Errorf("settings: checkpoint at height %d hash %q: %w", cp.Height, cp.Hash, err)
		}
		params.Checkpoints = append(params.Checkpoints, chaincfg.Checkpoint{Height: cp.Height, Hash: h})
	}

	return params, nil
}
