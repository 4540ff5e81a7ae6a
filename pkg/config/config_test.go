package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 10, s.RequestLimit)
	require.Equal(t, 12000, s.TokenLimit)
	require.Equal(t, 30*time.Second, s.AskTimeout)
	require.Equal(t, "101", s.Guest().RoomNumber)
	require.Equal(t, "info", s.Log.Level)
	require.False(t, s.Redis.Enabled)
}

func TestLoadLayersYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
request_limit: 4
ask_timeout: 5s
guest_name: Jane Roe
redis:
  enabled: true
  addr: redis:6379
log:
  level: debug
`)
	t.Setenv("CONCIERGE_REQUEST_LIMIT", "7")
	t.Setenv("CONCIERGE_LOG_FORMAT", "json")

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, s.RequestLimit)
	require.Equal(t, 5*time.Second, s.AskTimeout)
	require.Equal(t, "Jane Roe", s.Guest().Name)
	require.True(t, s.Redis.Enabled)
	require.Equal(t, "redis:6379", s.Redis.Addr)
	require.Equal(t, "concierge-trace", s.Redis.Group)
	require.Equal(t, "debug", s.Log.Level)
	require.Equal(t, "json", s.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "token_limit: -1\n"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--request-limit", "3", "--room", "202", "--ask-timeout", "2s"}))

	s := Default()
	s.TokenLimit = 500
	require.NoError(t, ApplyFlags(fs, &s))
	require.Equal(t, 3, s.RequestLimit)
	require.Equal(t, 500, s.TokenLimit)
	require.Equal(t, 2*time.Second, s.AskTimeout)
	require.Equal(t, "202", s.Guest().RoomNumber)
	require.Equal(t, "John Doe", s.Guest().Name)
}

func TestConfigPathFallsBackToEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	t.Setenv("CONCIERGE_CONFIG", "/etc/concierge.yaml")
	require.Equal(t, "/etc/concierge.yaml", ConfigPath(fs))

	require.NoError(t, fs.Parse([]string{"--config", "local.yaml"}))
	require.Equal(t, "local.yaml", ConfigPath(fs))
}
