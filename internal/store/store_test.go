package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/nodewatch"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

type call struct {
	sql  string
	args []any
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type fakeDB struct {
	calls    []call
	row      fakeRow
	affected int64
	execErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if f.affected == 0 {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{sql, args})
	return f.row
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	return nil, errors.New("not supported")
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(t.Context(), config.DatabaseConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Open(t.Context(), config.DatabaseConfig{DSN: "::not a dsn"})
	require.Error(t, err)
}

func TestLocate(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"z1", "a", "tenant-a"}}}
	s := &Store{db: db}

	p, err := s.Locate(t.Context(), resource.KindApplication, "app-1")
	require.NoError(t, err)
	assert.Equal(t, resource.Placement{Zone: "z1", Cluster: "a", Namespace: "tenant-a"}, p)
	assert.Equal(t, []any{"application", "app-1"}, db.calls[0].args)

	db.row = fakeRow{values: []any{"", "", ""}}
	p, err = s.Locate(t.Context(), resource.KindApplication, "app-1")
	require.NoError(t, err)
	assert.True(t, p.IsZero(), "never deployed")

	db.row = fakeRow{err: pgx.ErrNoRows}
	_, err = s.Locate(t.Context(), resource.KindApplication, "app-1")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestLifecycle(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"deployed"}}}
	s := &Store{db: db}

	lc, err := s.Lifecycle(t.Context(), resource.KindDatabase, "db-1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.LifecycleDeployed, lc)

	db.row = fakeRow{err: pgx.ErrNoRows}
	_, err = s.Lifecycle(t.Context(), resource.KindDatabase, "db-1")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestUpdates(t *testing.T) {
	db := &fakeDB{affected: 1}
	s := &Store{db: db}
	ctx := t.Context()

	require.NoError(t, s.UpdateLifecycle(ctx, resource.KindApplication, "app-1", reconcile.LifecycleError, "1 of 2 restarting"))
	assert.Equal(t, []any{"application", "app-1", "error", "1 of 2 restarting"}, db.calls[0].args)

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	require.NoError(t, s.UpdateStartTime(ctx, resource.KindApplication, "app-1", at))
	assert.Equal(t, at.UTC(), db.calls[1].args[2])
	assert.Contains(t, db.calls[1].sql, "COALESCE(started_at", "first start time wins")

	pods := []reconcile.SubStatus{{Pod: "web-0", Container: "main", Stage: reconcile.StageRunning, Ready: true}}
	require.NoError(t, s.UpdatePods(ctx, resource.KindApplication, "app-1", pods))
	var decoded []reconcile.SubStatus
	require.NoError(t, json.Unmarshal(db.calls[2].args[2].([]byte), &decoded))
	assert.Equal(t, pods, decoded)

	require.NoError(t, s.UpdatePods(ctx, resource.KindApplication, "app-1", nil))
	assert.Equal(t, []byte("[]"), db.calls[3].args[2])
}

func TestUpdate_MissingRow(t *testing.T) {
	s := &Store{db: &fakeDB{}}
	err := s.UpdateLifecycle(t.Context(), resource.KindApplication, "gone", reconcile.LifecycleDeleting, "")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestUpdate_ExecError(t *testing.T) {
	s := &Store{db: &fakeDB{execErr: errors.New("connection reset")}}
	err := s.SetPlacement(t.Context(), resource.KindApplication, "app-1", resource.Placement{Zone: "z1", Cluster: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestNodes(t *testing.T) {
	db := &fakeDB{affected: 1}
	s := &Store{db: db}
	at := time.Now()

	n := nodewatch.Node{
		Zone: "z1", Cluster: "a", Name: "gpu-1",
		Ready:           true,
		Allocatable:     cluster.Capacity{CPUMilli: 8000, MemoryBytes: 1 << 30, GPUs: 8},
		Labels:          map[string]string{"pool": "gpu"},
		ResourceVersion: "42",
		ObservedAt:      at,
	}
	require.NoError(t, s.UpsertNode(t.Context(), n))
	args := db.calls[0].args
	assert.Equal(t, []any{"z1", "a", "gpu-1", true, false, int64(8000), int64(1 << 30), int64(8)}, args[:8])
	assert.JSONEq(t, `{"pool":"gpu"}`, string(args[8].([]byte)))

	require.NoError(t, s.MarkUnavailable(t.Context(), "z1", "a", "gpu-1", at))
	assert.Contains(t, db.calls[1].sql, "unavailable = TRUE")
	assert.NotContains(t, db.calls[1].sql, "DELETE", "history is kept")
}
