package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().SocketPath, cfg.SocketPath)
}

func TestLoadParsesFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
socket_path: /tmp/confd-test.sock
schema_dir: /tmp/confd-test/yang
data_dir: /tmp/confd-test/data
persist_dir: /tmp/confd-test/persist
pid_file: /tmp/confd-test/confd.pid
shutdown_timeout: 5s
max_message_size: "32Mi"
logging:
  level: debug
  format: json
  output: stderr
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/confd-test.sock", cfg.SocketPath)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.EqualValues(t, 32*1024*1024, cfg.MaxMessageSize)
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	err := Validate(cfg)
	require.Error(t, err)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.SocketPath, loaded.SocketPath)
}
