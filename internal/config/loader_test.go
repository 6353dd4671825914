package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600)
	require.NoError(t, err)
	return dir
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfig_Zones(t *testing.T) {
	dir := writeConfig(t, `
zones:
  - id: z1
    clusters:
      - id: a
        kubeconfig: /tmp/a.kubeconfig
        prometheusURL: http://prom-a:9090
        jobRuntime: true
      - id: b
tasks:
  pollInterval: 1s
  pollTimeout: 30
  workers: 4
reconcile:
  tickInterval: 500ms
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Zones, 1)
	zone := cfg.Zones[0]
	assert.Equal(t, "z1", zone.ID)
	require.Len(t, zone.Clusters, 2)
	assert.True(t, zone.Clusters[0].HasCredentials())
	assert.True(t, zone.Clusters[0].JobRuntime)
	assert.False(t, zone.Clusters[1].HasCredentials())

	assert.Equal(t, time.Second, cfg.Tasks.PollInterval.D())
	assert.Equal(t, 30*time.Second, cfg.Tasks.PollTimeout.D())
	assert.Equal(t, 4, cfg.Tasks.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.TickInterval.D())
	// untouched sections keep their defaults
	assert.Equal(t, DefaultFanOutLimit, cfg.Reconcile.FanOutLimit)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SUROGATE_TEST_DSN", "postgres://user@db/surogate")
	dir := writeConfig(t, "database:\n  dsn: ${SUROGATE_TEST_DSN}\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres://user@db/surogate", cfg.Database.DSN)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := writeConfig(t, "zones: [\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, filepath.Join(dir, configFileName), loadErr.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name: "missing zone id",
			mutate: func(c *Config) {
				c.Zones = []ZoneConfig{{Clusters: []ClusterConfig{{ID: "a"}}}}
			},
			wantErr: "zones[0].id",
		},
		{
			name: "duplicate cluster",
			mutate: func(c *Config) {
				c.Zones = []ZoneConfig{{ID: "z", Clusters: []ClusterConfig{{ID: "a"}, {ID: "a"}}}}
			},
			wantErr: "duplicate cluster id",
		},
		{
			name: "exclusive kubeconfig sources",
			mutate: func(c *Config) {
				c.Zones = []ZoneConfig{{ID: "z", Clusters: []ClusterConfig{{ID: "a", Kubeconfig: "x", KubeconfigData: "y"}}}}
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Tasks.Workers = 0 },
			wantErr: "tasks.workers",
		},
		{
			name:    "timeout shorter than interval",
			mutate:  func(c *Config) { c.Tasks.PollTimeout = Duration(time.Millisecond) },
			wantErr: "tasks.pollTimeout",
		},
		{
			name:    "limit coefficient below one",
			mutate:  func(c *Config) { c.Tasks.LimitCoefficient = 0.5 },
			wantErr: "tasks.limitCoefficient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClusterConfig_HasCredentials(t *testing.T) {
	assert.False(t, ClusterConfig{ID: "a"}.HasCredentials())
	assert.False(t, ClusterConfig{ID: "a", Server: "https://api"}.HasCredentials())
	assert.True(t, ClusterConfig{ID: "a", Server: "https://api", Token: "t"}.HasCredentials())
	assert.True(t, ClusterConfig{ID: "a", KubeconfigData: "apiVersion: v1"}.HasCredentials())
}
