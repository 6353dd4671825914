package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/formatting"
)

func TestVersionCommand(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", GetVersion())

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "surogate version 1.2.3-test\n", buf.String())
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "clusters", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, serveCmd.Flags().Lookup("config-path"))
	assert.NotNil(t, serveCmd.Flags().Lookup("debug"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
	assert.Equal(t, ExitCodeConfig, getExitCode(fmt.Errorf("init: %w", &config.LoadError{Path: "x", Err: errors.New("bad")})))
	var ve config.ValidationErrors
	ve.Add("zones[0].id", "is required")
	assert.Equal(t, ExitCodeConfig, getExitCode(ve))
}

func TestPrintClusters(t *testing.T) {
	zones := []config.ZoneConfig{{
		ID: "z1",
		Clusters: []config.ClusterConfig{
			{ID: "a", Server: "https://a", Token: "t", JobRuntime: true},
			{ID: "b", PrometheusURL: "http://prom"},
		},
	}}
	factory := cluster.FactoryFunc(func(zone string, cfg config.ClusterConfig) (*cluster.Bundle, error) {
		return cluster.NewBundle(zone, cfg.ID, cluster.Clients{Kube: fake.NewClientset()}), nil
	})

	var buf bytes.Buffer
	require.NoError(t, printClusters(t.Context(), &buf, zones, factory, formatting.FormatTable))
	out := buf.String()
	assert.Contains(t, out, "registered")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "1/2 registered")

	buf.Reset()
	require.NoError(t, printClusters(t.Context(), &buf, zones, factory, formatting.FormatJSON))
	var report formatting.ClusterReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, 1, report.Registered)
	assert.Equal(t, 2, report.Total)
	require.Len(t, report.Clusters, 2)
	assert.True(t, report.Clusters[0].Registered)
	assert.True(t, report.Clusters[1].Metrics)
	assert.False(t, report.Clusters[1].Registered)
}

func TestClustersCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("zones:\n  - id: z1\n    clusters:\n      - id: a\n"), 0o600))

	original := clustersConfigPath
	defer func() { clustersConfigPath = original }()
	clustersConfigPath = dir

	var buf bytes.Buffer
	clustersCmd.SetOut(&buf)
	defer clustersCmd.SetOut(nil)
	require.NoError(t, clustersCmd.RunE(clustersCmd, nil))
	assert.Contains(t, buf.String(), "0/1 registered")

	originalOutput := clustersOutput
	defer func() { clustersOutput = originalOutput }()
	clustersOutput = "xml"
	assert.Error(t, clustersCmd.RunE(clustersCmd, nil))
}
