package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invergent-ai/surogate-studio-sub002/internal/config"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
)

type staticCapacity map[string]Capacity

func (s staticCapacity) AllocatableCapacity(zone, clusterID string) (Capacity, bool) {
	c, ok := s[zone+"/"+clusterID]
	return c, ok
}

func TestRandomStrategy_OnlyReturnsInitializedClusters(t *testing.T) {
	// z1 has a (ready) and b (no credentials, never initialized)
	zones := []config.ZoneConfig{{ID: "z1", Clusters: []config.ClusterConfig{creds("a"), {ID: "b"}}}}
	r := BuildRegistry(t.Context(), zones, fakeFactory(), nil)
	selector := NewSelector(r)
	strategy := NewRandomStrategy(42)

	for i := 0; i < 200; i++ {
		b, err := selector.Select("z1", strategy)
		require.NoError(t, err)
		assert.Equal(t, "a", b.ID())
	}
}

func TestRandomStrategy_CoversAllClusters(t *testing.T) {
	available := map[string]*Bundle{
		"a": testBundle("z1", "a"),
		"b": testBundle("z1", "b"),
		"c": testBundle("z1", "c"),
	}
	s := NewRandomStrategy(7)
	seen := make(map[string]bool)
	for i := 0; i < 300; i++ {
		id, err := s.Select(available)
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Len(t, seen, 3)
}

func TestRandomStrategy_Empty(t *testing.T) {
	_, err := NewRandomStrategy(1).Select(map[string]*Bundle{})
	assert.True(t, errors.Is(err, ErrNoClusterAvailable))
}

func TestSelector_DistinguishesEmptyZoneFromStrategyError(t *testing.T) {
	r := NewRegistry()
	r.DeclareZone("empty")
	require.NoError(t, r.Register("z1", "a", testBundle("z1", "a")))
	selector := NewSelector(r)

	_, err := selector.Select("empty", NewRandomStrategy(1))
	assert.True(t, errors.Is(err, ErrNoClusterAvailable))
	assert.False(t, errors.Is(err, ErrSelectionFailed))

	_, err = selector.Select("z1", PinnedStrategy{})
	assert.True(t, errors.Is(err, ErrSelectionFailed))
	assert.True(t, errors.Is(err, ErrClusterNotResolved))
	assert.False(t, errors.Is(err, ErrNoClusterAvailable))

	_, err = selector.Select("z1", StrategyFunc(func(map[string]*Bundle) (string, error) { return "ghost", nil }))
	assert.True(t, errors.Is(err, ErrSelectionFailed))
}

func TestCapacityStrategy(t *testing.T) {
	available := map[string]*Bundle{
		"a": testBundle("z1", "a"),
		"b": testBundle("z1", "b"),
		"c": testBundle("z1", "c"),
	}
	reporter := staticCapacity{
		"z1/a": {CPUMilli: 8000, MemoryBytes: 32 << 30, GPUs: 1},
		"z1/b": {CPUMilli: 16000, MemoryBytes: 64 << 30, GPUs: 1},
		"z1/c": {CPUMilli: 64000, MemoryBytes: 256 << 30, GPUs: 0},
	}

	tests := []struct {
		name    string
		request Capacity
		want    string
		wantErr error
	}{
		{"gpu request prefers roomiest gpu cluster", Capacity{CPUMilli: 1000, GPUs: 1}, "b", nil},
		{"cpu only request prefers gpu-rich first", Capacity{CPUMilli: 1000}, "b", nil},
		{"large cpu request", Capacity{CPUMilli: 32000}, "c", nil},
		{"nothing fits", Capacity{GPUs: 4}, "", ErrInsufficientCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCapacityStrategy(reporter, tt.request, nil).Select(available)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapacityStrategy_FallsBackWithoutData(t *testing.T) {
	available := map[string]*Bundle{"a": testBundle("z1", "a")}
	fallback := StrategyFunc(func(map[string]*Bundle) (string, error) { return "a", nil })

	got, err := NewCapacityStrategy(staticCapacity{}, Capacity{GPUs: 8}, fallback).Select(available)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestPinnedStrategy(t *testing.T) {
	available := map[string]*Bundle{"a": testBundle("z1", "a")}

	got, err := PinnedStrategy{ClusterID: "a"}.Select(available)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	_, err = PinnedStrategy{ClusterID: "b"}.Select(available)
	assert.True(t, errors.Is(err, ErrClusterNotInitialized))
}

func TestStrategyFor(t *testing.T) {
	assert.IsType(t, &CapacityStrategy{}, StrategyFor(resource.KindApplication, Hint{}, nil, nil))
	assert.IsType(t, &CapacityStrategy{}, StrategyFor(resource.KindDatabase, Hint{}, nil, nil))
	assert.IsType(t, PinnedStrategy{}, StrategyFor(resource.KindTrainingJob, Hint{ClusterID: "a"}, nil, nil))
	assert.IsType(t, PinnedStrategy{}, StrategyFor(resource.KindTaskRun, Hint{}, nil, nil))
}
