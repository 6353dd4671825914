package cluster

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// BuildRegistry constructs the bundles of every configured cluster in parallel, one
// goroutine per zone fanning out to one per cluster. A cluster that fails or lacks
// credentials is logged and left out; it never aborts the others and is not retried.
func BuildRegistry(ctx context.Context, zones []config.ZoneConfig, factory Factory, metrics *telemetry.Metrics) *Registry {
	registry := NewRegistry()

	var g errgroup.Group
	for _, zone := range zones {
		registry.DeclareZone(zone.ID)
		g.Go(func() error {
			initZone(ctx, registry, zone, factory, metrics)
			return nil
		})
	}
	_ = g.Wait()

	logging.Info("Registry", "Initialized %d clusters across %d zones", registry.Len(), len(zones))
	return registry
}

func initZone(ctx context.Context, registry *Registry, zone config.ZoneConfig, factory Factory, metrics *telemetry.Metrics) {
	var g errgroup.Group
	for _, cl := range zone.Clusters {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			initCluster(registry, zone.ID, cl, factory, metrics)
			return nil
		})
	}
	_ = g.Wait()
}

func initCluster(registry *Registry, zone string, cl config.ClusterConfig, factory Factory, metrics *telemetry.Metrics) {
	if !cl.HasCredentials() {
		logging.Warn("Registry", "Skipping cluster %s/%s: no connection credentials configured", zone, cl.ID)
		metrics.ClusterSkipped(zone, "no-credentials")
		return
	}

	bundle, err := buildSafely(factory, zone, cl)
	if err != nil {
		reason := "error"
		if errors.Is(err, ErrMissingCredentials) {
			reason = "no-credentials"
		}
		logging.Error("Registry", err, "Failed to initialize cluster %s/%s", zone, cl.ID)
		metrics.ClusterSkipped(zone, reason)
		return
	}

	if err := registry.Register(zone, cl.ID, bundle); err != nil {
		logging.Warn("Registry", "Not registering cluster %s/%s: %v", zone, cl.ID, err)
		return
	}
	metrics.ClusterRegistered(zone)
}

// buildSafely keeps a panicking client constructor from taking the process down.
func buildSafely(factory Factory, zone string, cl config.ClusterConfig) (bundle *Bundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ClusterError{Zone: zone, Cluster: cl.ID, Err: panicError(r)}
		}
	}()
	bundle, err = factory.NewBundle(zone, cl)
	if err != nil {
		return nil, &ClusterError{Zone: zone, Cluster: cl.ID, Err: err}
	}
	return bundle, nil
}
