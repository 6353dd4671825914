package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

func TestMemory(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	kind := resource.KindDatabase

	_, err := m.Locate(ctx, kind, "db-1")
	require.ErrorIs(t, err, reconcile.ErrNotFound)
	require.ErrorIs(t, m.UpdateLifecycle(ctx, kind, "db-1", reconcile.LifecycleDeployed, ""), reconcile.ErrNotFound)

	require.NoError(t, m.Register(ctx, kind, "db-1"))
	p, err := m.Locate(ctx, kind, "db-1")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	want := resource.Placement{Zone: "z1", Cluster: "a", Namespace: "tenant"}
	require.NoError(t, m.SetPlacement(ctx, kind, "db-1", want))
	require.NoError(t, m.Register(ctx, kind, "db-1"), "registering again keeps the placement")
	p, err = m.Locate(ctx, kind, "db-1")
	require.NoError(t, err)
	assert.Equal(t, want, p)

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, m.UpdateLifecycle(ctx, kind, "db-1", reconcile.LifecycleDeploying, "waiting for pods"))
	require.NoError(t, m.UpdateStartTime(ctx, kind, "db-1", first))
	require.NoError(t, m.UpdateStartTime(ctx, kind, "db-1", first.Add(time.Hour)))
	require.NoError(t, m.UpdatePods(ctx, kind, "db-1", []reconcile.SubStatus{{Pod: "db-0", Stage: reconcile.StageRunning}}))

	lc, err := m.Lifecycle(ctx, kind, "db-1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.LifecycleDeploying, lc)

	rec, ok := m.Get(kind, "db-1")
	require.True(t, ok)
	assert.Equal(t, "waiting for pods", rec.Message)
	assert.Equal(t, first, rec.StartedAt)
	require.Len(t, rec.Pods, 1)

	require.NoError(t, m.Forget(ctx, kind, "db-1"))
	_, err = m.Lifecycle(ctx, kind, "db-1")
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}
