package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1:8000", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.FlowThresholdMinutes)
	assert.Equal(t, 70, cfg.FatigueThreshold)
	assert.Equal(t, 45, cfg.SoftResetSeconds)
	assert.Equal(t, 240, cfg.AutoFlowActiveSeconds)
	assert.Contains(t, cfg.BlockedApps, "steam.exe")
	assert.Contains(t, cfg.DistractingKeywords, "netflix")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: 127.0.0.1:9999
user_name: Kai
flow_threshold_minutes: 15
blocked_apps:
  - epicgames.exe
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Load(path, zap.NewNop())

	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, "Kai", cfg.UserName)
	assert.Equal(t, 15, cfg.FlowThresholdMinutes)
	assert.Equal(t, []string{"epicgames.exe"}, cfg.BlockedApps)

	// Untouched fields keep their defaults.
	assert.Equal(t, 70, cfg.FatigueThreshold)
	assert.NotEmpty(t, cfg.DistractingKeywords)
}

func TestLoadBrokenFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [not: valid"), 0644))

	cfg := Load(path, zap.NewNop())
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestSanitizeRestoresZeroedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
flow_threshold_minutes: 0
soft_reset_seconds: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Load(path, zap.NewNop())
	assert.Equal(t, 10, cfg.FlowThresholdMinutes)
	assert.Equal(t, 45, cfg.SoftResetSeconds)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10*time.Minute, cfg.FlowThreshold())
	assert.Equal(t, 240*time.Second, cfg.ActiveStreakThreshold())
	assert.Equal(t, 45*time.Second, cfg.SoftResetDuration())
}
