package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/events"
	"github.com/invergent-ai/surogate-studio-sub002/internal/nodewatch"
	"github.com/invergent-ai/surogate-studio-sub002/internal/orchestrator"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile/kinds"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/server"
	"github.com/invergent-ai/surogate-studio-sub002/internal/sink"
	"github.com/invergent-ai/surogate-studio-sub002/internal/store"
	"github.com/invergent-ai/surogate-studio-sub002/internal/task"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// State is the persistence the engine needs. *store.Store and *store.Memory implement
// it.
type State interface {
	orchestrator.PlacementStore
	reconcile.StateStore
}

// Services holds every initialised component of a running engine.
type Services struct {
	Settings *config.Config
	Metrics  *telemetry.Metrics
	Registry *cluster.Registry

	// Database is nil when no DSN is configured; State then is in memory.
	Database  *store.Store
	State     State
	Inventory *nodewatch.Inventory
	Watchers  []*nodewatch.Watcher

	Runner       *task.Runner
	Pollers      map[resource.Kind]*reconcile.Poller
	Orchestrator *orchestrator.Service

	Redis  *redis.Client
	Server *server.Server

	closeOnce sync.Once
}

// InitializeServices creates the components in dependency order. On error everything
// created so far is released.
func InitializeServices(ctx context.Context, cfg *Config) (_ *Services, err error) {
	settings := cfg.Settings
	s := &Services{
		Settings:  settings,
		Metrics:   telemetry.NewMetrics(),
		Inventory: nodewatch.NewInventory(),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	factory := cfg.Factory
	if factory == nil {
		factory = cluster.NewRESTFactory()
	}
	s.Registry = cluster.BuildRegistry(ctx, settings.Zones, factory, s.Metrics)

	if err := s.initState(ctx, settings.Database); err != nil {
		return nil, err
	}

	if settings.NodeWatch.Enabled {
		var book nodewatch.Bookkeeper = s.Inventory
		if s.Database != nil {
			book = nodewatch.Fanout{s.Inventory, s.Database}
		}
		s.Watchers = nodewatch.StartAll(ctx, s.Registry.Bundles(), book, nodewatch.Options{
			ResyncPeriod:  settings.NodeWatch.ResyncPeriod.D(),
			IgnoreUpdates: settings.NodeWatch.IgnoreUpdates,
		}, s.Metrics)
		logging.Info("Bootstrap", "Watching nodes of %d clusters", len(s.Watchers))
	}

	s.Runner = task.NewRunner(settings.Tasks, s.Metrics)
	s.Pollers = newPollers(s.Registry, s.State, settings.Reconcile, s.Metrics)

	markers := make(map[resource.Kind]orchestrator.DeletionMarker, len(s.Pollers))
	for kind, p := range s.Pollers {
		markers[kind] = p
	}
	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Registry: s.Registry,
		Capacity: s.Inventory,
		Runner:   s.Runner,
		Tasks:    settings.Tasks,
		Store:    s.State,
		Markers:  markers,
	})

	if settings.Redis.Addr != "" {
		client, err := sink.NewRedisClient(ctx, settings.Redis.Addr, settings.Redis.Password, settings.Redis.DB)
		if err != nil {
			logging.Warn("Bootstrap", "Redis event mirror disabled: %v", err)
		} else {
			s.Redis = client
		}
	}

	serverCfg := server.Config{
		Addr:        settings.Server.Addr,
		Registry:    s.Registry,
		Capacity:    s.Inventory,
		Pollers:     s.Pollers,
		Metrics:     s.Metrics,
		Redis:       s.Redis,
		RedisPrefix: settings.Redis.ChannelPrefix,
	}
	if s.Database != nil {
		serverCfg.Health = s.Database.Ping
	}
	s.Server = server.New(serverCfg)
	return s, nil
}

func (s *Services) initState(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := store.Open(ctx, cfg)
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		logging.Warn("Bootstrap", "No database configured, keeping state in memory")
		s.State = store.NewMemory()
		return nil
	case err != nil:
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.Database = db
	s.State = db
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return nil
}

// newPollers creates the poller of every resource kind.
func newPollers(registry *cluster.Registry, state State, cfg config.ReconcileConfig, metrics *telemetry.Metrics) map[resource.Kind]*reconcile.Poller {
	opts := kinds.Options{LogTailLines: cfg.LogTailLines, FanOutLimit: cfg.FanOutLimit}
	accessors := []reconcile.StatusAccessor{
		kinds.NewApplications(registry, state, opts),
		kinds.NewDatabases(registry, state, opts),
		kinds.NewModels(registry, state, opts),
		kinds.NewTrainingJobs(registry, state, opts),
		kinds.NewTaskRuns(registry, state, opts),
	}
	var recorder reconcile.Recorder
	if cfg.RecordEvents {
		recorder = events.NewRecorder(registry, state)
	}
	pollers := make(map[resource.Kind]*reconcile.Poller, len(accessors))
	for _, a := range accessors {
		p := reconcile.NewPoller(a, state, cfg, metrics)
		if recorder != nil {
			p.WithRecorder(recorder)
		}
		pollers[a.Kind()] = p
	}
	return pollers
}

// Close stops the pollers and node watchers, waits for in-flight tasks and closes
// the connections. It is safe to call more than once.
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		for _, p := range s.Pollers {
			p.Close()
		}
		for _, w := range s.Watchers {
			w.Stop()
		}
		if s.Runner != nil {
			s.Runner.Wait()
		}
		if s.Redis != nil {
			if err := s.Redis.Close(); err != nil {
				logging.Warn("Shutdown", "Closing redis: %v", err)
			}
		}
		if s.Database != nil {
			s.Database.Close()
		}
	})
}
