package msgflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/msgflow/core"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "msgflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigFile_OverridesOnlyPresentFields(t *testing.T) {
	path := writeConfigFile(t, `
dedup:
  window: 45s
rateLimit:
  capacity: 500
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Dedup.Window)
	assert.Equal(t, 500, cfg.RateLimit.Capacity)

	defaults := core.DefaultConfig()
	assert.Equal(t, defaults.Dedup.MaxCacheSize, cfg.Dedup.MaxCacheSize)
	assert.Equal(t, defaults.RateLimit.TokensPerSecond, cfg.RateLimit.TokensPerSecond)
	assert.Equal(t, defaults.Retry, cfg.Retry)
}

func TestLoadConfigFile_OrderingAndLatePolicy(t *testing.T) {
	path := writeConfigFile(t, `
ordering:
  enabled: true
  latePolicy: park
  maxPendingMessages: 50
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Ordering.Enabled)
	assert.Equal(t, core.LateAsPark, cfg.Ordering.LatePolicy)
	assert.Equal(t, 50, cfg.Ordering.MaxPendingMessages)
}

func TestLoadConfigFile_InvalidDurationErrors(t *testing.T) {
	path := writeConfigFile(t, "dedup:\n  window: not-a-duration\n")

	_, err := LoadConfigFile(path)
	require.Error(t, err)
}

func TestLoadConfigFile_MissingFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWithConfigFile_AppliesToProcessor(t *testing.T) {
	path := writeConfigFile(t, "retry:\n  maxRetries: 7\n")

	p, err := NewProcessor(WithGateway(alwaysOKGateway{}), WithConfigFile(path))
	require.NoError(t, err)
	defer p.Shutdown(nil)

	assert.Equal(t, 7, p.coreCfg.Retry.MaxRetries)
}
