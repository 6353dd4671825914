package kinds

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// Components of a composite model deployment.
const (
	ComponentRouter = "router"
	ComponentWorker = "worker"
	ComponentCache  = "cache"
)

// ModelComponents is the resolution order of a composite model's components.
var ModelComponents = []string{ComponentRouter, ComponentWorker, ComponentCache}

// modelQueries maps component -> metric name -> PromQL template. %s is replaced by a
// label matcher selecting the component's pods.
var modelQueries = map[string]map[string]string{
	ComponentRouter: {
		"requests_per_second": `sum(rate(http_requests_total{%s}[1m]))`,
	},
	ComponentWorker: {
		"running_requests": `sum(vllm:num_requests_running{%s})`,
		"kv_cache_usage":   `avg(vllm:gpu_cache_usage_perc{%s})`,
	},
	ComponentCache: {
		"memory_bytes": `sum(container_memory_working_set_bytes{%s})`,
	},
}

// Models reads composite models: one deployment per component, resolved component by
// component.
type Models struct {
	*Workload
	components []string
	now        func() time.Time
}

func NewModels(source BundleSource, loc reconcile.Locator, opts Options) *Models {
	w := &Workload{
		locator:     newLocator(resource.KindCompositeModel, source, loc, opts),
		controllers: deployments,
		byComponent: true,
	}
	return &Models{Workload: w, components: ModelComponents, now: time.Now}
}

// Resolve combines per-component lifecycles.
func (m *Models) Resolve(current reconcile.Lifecycle, statuses []reconcile.ResourceStatus) reconcile.Transition {
	return reconcile.ResolveComponents(current, m.components, statuses)
}

// Enrich attaches log tails and component metrics. Metric queries run concurrently;
// a failed query leaves its metric out.
func (m *Models) Enrich(ctx context.Context, id string, statuses []reconcile.ResourceStatus) {
	t, ok := m.cached(id)
	if !ok {
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		m.attachLogs(ctx, t, statuses)
		return nil
	})

	querier := t.bundle.Metrics()
	if querier == nil {
		_ = g.Wait()
		return
	}

	var mu sync.Mutex
	values := make(map[string]map[string]float64)
	at := m.now()
	for component, queries := range modelQueries {
		matcher := podMatcher(t.namespace, component, statuses)
		if matcher == "" {
			continue
		}
		for name, tmpl := range queries {
			g.Go(func() error {
				res, err := querier.Query(ctx, fmt.Sprintf(tmpl, matcher), at)
				if err != nil {
					logging.Debug("Reconcile", "Metric %s of %s %s unavailable: %v", name, component, id, err)
					return nil
				}
				v, err := res.Value()
				if err != nil {
					return nil
				}
				mu.Lock()
				if values[component] == nil {
					values[component] = make(map[string]float64)
				}
				values[component][name] = v
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	for i := range statuses {
		if v, ok := values[statuses[i].Component]; ok {
			statuses[i].Metrics = v
		}
	}
}

// podMatcher selects the pods of one component, or returns "" when it has none.
func podMatcher(namespace, component string, statuses []reconcile.ResourceStatus) string {
	var pods []string
	for _, st := range statuses {
		if st.Component != component {
			continue
		}
		for _, sub := range st.Pods {
			if !slices.Contains(pods, sub.Pod) {
				pods = append(pods, sub.Pod)
			}
		}
	}
	if len(pods) == 0 {
		return ""
	}
	return fmt.Sprintf(`namespace=%q,pod=~%q`, namespace, strings.Join(pods, "|"))
}
