package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/formatting"
)

// clusterFactory builds the bundles probed by the clusters command.
var clusterFactory cluster.Factory = cluster.NewRESTFactory()

var (
	clustersConfigPath string
	clustersOutput     string
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Show the configured clusters and whether they can be reached",
	Long: `Initialises every configured cluster the same way 'surogate serve' does and
prints one row per cluster: its zone, whether it was registered, the API server
version and the optional metrics and job runtime integrations. Use --output json
or --output yaml for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		path := clustersConfigPath
		if path == "" {
			var err error
			if path, err = config.GetDefaultConfigPath(); err != nil {
				return err
			}
		}
		format, err := formatting.ParseFormat(clustersOutput)
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		return printClusters(ctx, cmd.OutOrStdout(), cfg.Zones, clusterFactory, format)
	},
}

func printClusters(ctx context.Context, out io.Writer, zones []config.ZoneConfig, factory cluster.Factory, format formatting.OutputFormat) error {
	registry := cluster.BuildRegistry(ctx, zones, factory, nil)

	report := formatting.ClusterReport{}
	for _, zone := range zones {
		for _, cl := range zone.Clusters {
			report.Total++
			row := formatting.ClusterRow{Zone: zone.ID, Cluster: cl.ID, Metrics: cl.PrometheusURL != "", JobRuntime: cl.JobRuntime}
			if b, err := registry.Get(zone.ID, cl.ID); err == nil {
				report.Registered++
				row.Registered = true
				row.Metrics = b.Metrics() != nil
				row.JobRuntime = b.HasJobRuntime()
				if v, err := b.Kube().Discovery().ServerVersion(); err == nil {
					row.Version = v.GitVersion
				}
			}
			report.Clusters = append(report.Clusters, row)
		}
	}

	f := formatting.NewFormatter(formatting.Options{Format: format, Color: format == formatting.FormatTable})
	return f.FormatClusters(out, report)
}

func init() {
	rootCmd.AddCommand(clustersCmd)

	clustersCmd.Flags().StringVar(&clustersConfigPath, "config-path", "", "Configuration directory (default ~/.config/surogate)")
	clustersCmd.Flags().StringVarP(&clustersOutput, "output", "o", "table", "Output format: table, json or yaml")
}
