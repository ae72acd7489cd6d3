package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("SKX_CONTROLLER_NAME", "ctl-1")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err) // DSN still empty, defaults alone don't validate
	require.Empty(t, cfg.Database.DSN)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vanctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: \"postgres://x\"\ncontrollerName: \"ctl-1\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://x", cfg.Database.DSN)
	require.Equal(t, "ctl-1", cfg.ControllerName)
	require.Equal(t, "skx/claim", cfg.ClaimAddress)
}

func TestEnvOverlayWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vanctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: \"postgres://x\"\ncontrollerName: \"from-file\"\n"), 0o644))

	t.Setenv("SKX_CONTROLLER_NAME", "from-env")
	t.Setenv("SKX_STANDALONE_NAMESPACE", "dev-ns")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.ControllerName)
	require.Equal(t, "dev-ns", cfg.Cluster.StandaloneNamespace)
}
