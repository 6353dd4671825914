// Package store persists lifecycle state, placements and node bookkeeping in
// PostgreSQL.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/nodewatch"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotConfigured is returned by Open without a DSN.
var ErrNotConfigured = errors.New("database dsn not configured")

// dbtx is the subset of *pgxpool.Pool the store uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements the persistence interfaces of the engine on PostgreSQL.
type Store struct {
	db   dbtx
	pool *pgxpool.Pool
}

var (
	_ reconcile.StateStore = (*Store)(nil)
	_ reconcile.Locator    = (*Store)(nil)
	_ nodewatch.Bookkeeper = (*Store)(nil)
)

// Open connects to the database and checks the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := goose.UpContext(runCtx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logging.Info("Store", "Database migrations applied")
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Register creates the row of a new resource. Registering an existing resource is a
// no-op.
func (s *Store) Register(ctx context.Context, kind resource.Kind, id string) error {
	const query = `INSERT INTO resources (kind, id, lifecycle) VALUES ($1, $2, $3)
		ON CONFLICT (kind, id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, string(kind), id, string(reconcile.LifecycleCreated)); err != nil {
		return fmt.Errorf("register %s %s: %w", kind, id, err)
	}
	return nil
}

// SetPlacement records the cluster a resource was deployed to.
func (s *Store) SetPlacement(ctx context.Context, kind resource.Kind, id string, p resource.Placement) error {
	const query = `INSERT INTO resources (kind, id, zone, cluster, namespace) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, id) DO UPDATE SET zone = EXCLUDED.zone, cluster = EXCLUDED.cluster,
			namespace = EXCLUDED.namespace, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, string(kind), id, p.Zone, p.Cluster, p.Namespace); err != nil {
		return fmt.Errorf("set placement of %s %s: %w", kind, id, err)
	}
	return nil
}

// Forget removes a deleted resource.
func (s *Store) Forget(ctx context.Context, kind resource.Kind, id string) error {
	const query = `DELETE FROM resources WHERE kind = $1 AND id = $2`
	if _, err := s.db.Exec(ctx, query, string(kind), id); err != nil {
		return fmt.Errorf("forget %s %s: %w", kind, id, err)
	}
	return nil
}

// Locate implements reconcile.Locator. A resource without a cluster yields a zero
// placement.
func (s *Store) Locate(ctx context.Context, kind resource.Kind, id string) (resource.Placement, error) {
	const query = `SELECT COALESCE(zone, ''), COALESCE(cluster, ''), COALESCE(namespace, '')
		FROM resources WHERE kind = $1 AND id = $2`
	var p resource.Placement
	if err := s.db.QueryRow(ctx, query, string(kind), id).Scan(&p.Zone, &p.Cluster, &p.Namespace); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resource.Placement{}, reconcile.ErrNotFound
		}
		return resource.Placement{}, fmt.Errorf("locate %s %s: %w", kind, id, err)
	}
	return p, nil
}

// Lifecycle implements reconcile.StateStore.
func (s *Store) Lifecycle(ctx context.Context, kind resource.Kind, id string) (reconcile.Lifecycle, error) {
	const query = `SELECT lifecycle FROM resources WHERE kind = $1 AND id = $2`
	var lc string
	if err := s.db.QueryRow(ctx, query, string(kind), id).Scan(&lc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", reconcile.ErrNotFound
		}
		return "", fmt.Errorf("read lifecycle of %s %s: %w", kind, id, err)
	}
	return reconcile.Lifecycle(lc), nil
}

// UpdateLifecycle implements reconcile.StateStore.
func (s *Store) UpdateLifecycle(ctx context.Context, kind resource.Kind, id string, lc reconcile.Lifecycle, message string) error {
	const query = `UPDATE resources SET lifecycle = $3, message = $4, updated_at = now()
		WHERE kind = $1 AND id = $2`
	return s.update(ctx, query, kind, id, string(lc), message)
}

// UpdateStartTime implements reconcile.StateStore. The first recorded time wins.
func (s *Store) UpdateStartTime(ctx context.Context, kind resource.Kind, id string, at time.Time) error {
	const query = `UPDATE resources SET started_at = COALESCE(started_at, $3), updated_at = now()
		WHERE kind = $1 AND id = $2`
	return s.update(ctx, query, kind, id, at.UTC())
}

// UpdatePods implements reconcile.StateStore.
func (s *Store) UpdatePods(ctx context.Context, kind resource.Kind, id string, pods []reconcile.SubStatus) error {
	if pods == nil {
		pods = []reconcile.SubStatus{}
	}
	payload, err := json.Marshal(pods)
	if err != nil {
		return fmt.Errorf("encode pods of %s %s: %w", kind, id, err)
	}
	const query = `UPDATE resources SET pods = $3, updated_at = now() WHERE kind = $1 AND id = $2`
	return s.update(ctx, query, kind, id, payload)
}

func (s *Store) update(ctx context.Context, query string, kind resource.Kind, id string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, append([]any{string(kind), id}, args...)...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s %s: %w", kind, id, reconcile.ErrNotFound)
	}
	return nil
}
