package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	content := []byte(`
control_plane:
  listen_addr: "0.0.0.0:9100"
  registry_size: 256
mixer_defaults:
  sample_rate_hz: 16000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9100", cfg.ControlPlane.ListenAddr)
	require.Equal(t, 256, cfg.ControlPlane.RegistrySize)
	require.Equal(t, 16000, cfg.MixerDefaults.SampleRateHz)
	// Untouched defaults survive the partial override.
	require.True(t, cfg.Interconnect.Encrypted)
	require.Equal(t, 10, cfg.MixerDefaults.GCBatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	require.Error(t, err)
}
