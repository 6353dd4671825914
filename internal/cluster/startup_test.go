package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
)

func fakeFactory(failing ...string) Factory {
	fail := make(map[string]bool)
	for _, id := range failing {
		fail[id] = true
	}
	return FactoryFunc(func(zone string, cfg config.ClusterConfig) (*Bundle, error) {
		if fail[cfg.ID] {
			return nil, errors.New("connection refused")
		}
		if cfg.ID == "panics" {
			panic("bad kubeconfig")
		}
		return testBundle(zone, cfg.ID), nil
	})
}

func creds(id string) config.ClusterConfig {
	return config.ClusterConfig{ID: id, Server: "https://" + id, Token: "t"}
}

func TestBuildRegistry_SkipsClustersWithoutCredentials(t *testing.T) {
	zones := []config.ZoneConfig{
		{ID: "z1", Clusters: []config.ClusterConfig{creds("a"), {ID: "b"}}},
		{ID: "z2", Clusters: []config.ClusterConfig{{ID: "c"}}},
	}

	r := BuildRegistry(context.Background(), zones, fakeFactory(), telemetry.NewMetrics())

	assert.Equal(t, 1, r.Len())
	_, err := r.Get("z1", "a")
	require.NoError(t, err)

	_, err = r.Get("z1", "b")
	assert.True(t, errors.Is(err, ErrClusterNotInitialized))

	// zone with only skipped clusters is still known
	_, err = r.Get("z2", "c")
	assert.True(t, errors.Is(err, ErrClusterNotInitialized))
	assert.Equal(t, []string{"z1", "z2"}, r.Zones())
}

func TestBuildRegistry_FailuresDoNotAbortOthers(t *testing.T) {
	zones := []config.ZoneConfig{
		{ID: "z1", Clusters: []config.ClusterConfig{creds("a"), creds("broken"), creds("panics"), creds("d")}},
	}

	r := BuildRegistry(context.Background(), zones, fakeFactory("broken"), nil)

	snap := r.SelectionSnapshot("z1")
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "a")
	assert.Contains(t, snap, "d")
}

func TestRESTFactory_MissingCredentials(t *testing.T) {
	_, err := NewRESTFactory().NewBundle("z1", config.ClusterConfig{ID: "a"})
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestRESTConfig_Token(t *testing.T) {
	cfg, err := RESTConfig(config.ClusterConfig{ID: "a", Server: "https://api.a:6443", Token: "secret", QPS: 50, Burst: 100})
	require.NoError(t, err)
	assert.Equal(t, "https://api.a:6443", cfg.Host)
	assert.Equal(t, "secret", cfg.BearerToken)
	assert.Equal(t, float32(50), cfg.QPS)
	assert.Equal(t, 100, cfg.Burst)
}

func TestRESTConfig_InlineKubeconfig(t *testing.T) {
	kubeconfig := `apiVersion: v1
kind: Config
clusters:
- name: a
  cluster:
    server: https://api.a:6443
    insecure-skip-tls-verify: true
users:
- name: a
  user:
    token: abc
contexts:
- name: a
  context:
    cluster: a
    user: a
current-context: a
`
	cfg, err := RESTConfig(config.ClusterConfig{ID: "a", KubeconfigData: kubeconfig})
	require.NoError(t, err)
	assert.Equal(t, "https://api.a:6443", cfg.Host)
	assert.Equal(t, "abc", cfg.BearerToken)
}

func TestRESTFactory_TokenBundle(t *testing.T) {
	b, err := NewRESTFactory().NewBundle("z1", config.ClusterConfig{
		ID:            "a",
		Server:        "https://api.a:6443",
		Token:         "t",
		Insecure:      true,
		PrometheusURL: "http://prometheus:9090",
		JobRuntime:    true,
	})
	require.NoError(t, err)
	assert.NotNil(t, b.Kube())
	assert.NotNil(t, b.Client())
	assert.NotNil(t, b.Metrics())
	assert.True(t, b.HasJobRuntime())
	assert.Nil(t, b.JobMetrics())
}
