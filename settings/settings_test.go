package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-pandabear/pandanode/chaincfg"
)

func TestNewSettingsAppliesDefaults(t *testing.T) {
	s := NewSettings()

	assert.Equal(t, "0.0.0.0", s.IP)
	assert.Equal(t, 8333, s.Port)
	assert.Equal(t, "pandanode", s.Name)
	assert.Equal(t, "main", s.Network)
	assert.Equal(t, chaincfg.BuildVersion, s.MinHostVersion)
	assert.Equal(t, chaincfg.LedgerFilePath, s.LedgerPath)
	assert.Equal(t, chaincfg.TxDBFilePath, s.TxDBPath)
	assert.Equal(t, chaincfg.BlockStoreFilePath, s.BlockStorePath)
	assert.Equal(t, chaincfg.PufferfishCacheFilePath, s.PufferfishPath)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "custom-node",
		"bootstrapUrls": ["http://peer-a", "http://peer-b"],
		"whitelist": ["http://trusted"],
		"firewall": true
	}`), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-node", s.Name)
	assert.Equal(t, []string{"http://peer-a", "http://peer-b"}, s.BootstrapURLs)
	assert.Equal(t, []string{"http://trusted"}, s.Whitelist)
	assert.True(t, s.Firewall)
	// Fields absent from the file keep NewSettings' defaults.
	assert.Equal(t, "0.0.0.0", s.IP)
	assert.Equal(t, 8333, s.Port)
}

func TestLoadFileReturnsErrorForMissingPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestLoadFileReturnsErrorForMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not valid json`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestHostTimeoutMatchesConfiguredTimeoutMs(t *testing.T) {
	assert.Equal(t, time.Duration(chaincfg.TimeoutMs)*time.Millisecond, HostTimeout())
}
