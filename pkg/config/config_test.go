package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errReader struct{}

func (errReader) Read(_ []byte) (int, error) {
	return 0, errors.New("read failed")
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "qlbaas-", cfg.NamespacePrefix)
	assert.Equal(t, time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.HealthInterval)
	assert.Equal(t, 60*time.Second, cfg.ResyncInterval)
	assert.True(t, cfg.ReuseExistingDevice)
	assert.Equal(t, DriverNetlink, cfg.Interface.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestParse_YAML(t *testing.T) {
	data := `
namespace_prefix: lb-
root_helper: [sudo, -n]
tools:
  ipvsadm: /usr/sbin/ipvsadm
probe_timeout: 2s
resync_interval: 5m
reuse_existing_device: false
interface:
  bridge: br-int
  mtu: 1450
log:
  level: debug
  json: true
`
	cfg, err := Parse(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "lb-", cfg.NamespacePrefix)
	assert.Equal(t, []string{"sudo", "-n"}, cfg.RootHelper)
	assert.Equal(t, map[string]string{"ipvsadm": "/usr/sbin/ipvsadm"}, cfg.Tools.Paths())
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ResyncInterval)
	assert.False(t, cfg.ReuseExistingDevice)
	assert.Equal(t, "br-int", cfg.Interface.Bridge)
	assert.Equal(t, 1450, cfg.Interface.MTU)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.HealthInterval)
	assert.Equal(t, "tap", cfg.Interface.DevicePrefix)
}

func TestParse_Nil(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(errReader{})
	assert.ErrorContains(t, err, "read failed")

	_, err = Parse(strings.NewReader("probe_timeout: [1, 2]"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LVS_AGENT_NAMESPACE_PREFIX", "env-")
	t.Setenv("LVS_AGENT_HEALTH_INTERVAL", "30s")
	t.Setenv("LVS_AGENT_INTERFACE_BRIDGE", "br-env")
	t.Setenv("LVS_AGENT_ROOT_HELPER", "sudo,-n")

	cfg, err := Parse(strings.NewReader("namespace_prefix: file-\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-", cfg.NamespacePrefix)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, "br-env", cfg.Interface.Bridge)
	assert.Equal(t, []string{"sudo", "-n"}, cfg.RootHelper)
}

func TestParse_BadEnv(t *testing.T) {
	t.Setenv("LVS_AGENT_PROBE_TIMEOUT", "soon")

	_, err := Parse(nil)
	assert.ErrorContains(t, err, "failed to apply environment")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/lvs\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/lvs", cfg.DataDir)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().DataDir, cfg.DataDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty prefix", func(c *Config) { c.NamespacePrefix = " " }, "namespace_prefix"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }, "probe_timeout"},
		{"negative health interval", func(c *Config) { c.HealthInterval = -time.Second }, "health_interval"},
		{"zero retries", func(c *Config) { c.HealthRetries = 0 }, "health_retries"},
		{"zero resync", func(c *Config) { c.ResyncInterval = 0 }, "resync_interval"},
		{"unknown driver", func(c *Config) { c.Interface.Driver = "ovs" }, "interface driver"},
		{"negative mtu", func(c *Config) { c.Interface.MTU = -1 }, "mtu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	cfg := Default()
	cfg.NamespacePrefix = ""
	cfg.ProbeTimeout = 0
	err := cfg.Validate()
	assert.ErrorContains(t, err, "namespace_prefix")
	assert.ErrorContains(t, err, "probe_timeout")
}
