// Package metricsquery is the metrics accessor: it runs instant and ranged PromQL queries
// against a cluster's Prometheus and returns plain series keyed by timestamp.
package metricsquery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// ErrNoData is returned by Result helpers when the query matched nothing.
var ErrNoData = errors.New("query returned no data")

// Querier runs PromQL queries. Query construction is the caller's concern.
type Querier interface {
	Query(ctx context.Context, query string, at time.Time) (Result, error)
	QueryRange(ctx context.Context, query string, r Range) (Result, error)
}

// Range bounds a ranged query.
type Range struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// Sample is one timestamped value.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is one labelled time series.
type Series struct {
	Labels  map[string]string `json:"labels,omitempty"`
	Samples []Sample          `json:"samples"`
}

// Latest returns the newest sample of the series.
func (s Series) Latest() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// Result is the decoded answer of a query: zero, one or many series.
type Result struct {
	Series []Series `json:"series"`
}

// Single returns the only series of a single-series result.
func (r Result) Single() (Series, error) {
	switch len(r.Series) {
	case 0:
		return Series{}, ErrNoData
	case 1:
		return r.Series[0], nil
	default:
		return Series{}, fmt.Errorf("expected a single series, got %d", len(r.Series))
	}
}

// Value returns the latest value of a single-series result.
func (r Result) Value() (float64, error) {
	s, err := r.Single()
	if err != nil {
		return 0, err
	}
	latest, ok := s.Latest()
	if !ok {
		return 0, ErrNoData
	}
	return latest.Value, nil
}

// ByLabel indexes a multi-series result by one label value.
func (r Result) ByLabel(label string) map[string]Series {
	out := make(map[string]Series, len(r.Series))
	for _, s := range r.Series {
		out[s.Labels[label]] = s
	}
	return out
}

// Client is a Querier backed by the Prometheus HTTP API.
type Client struct {
	address string
	api     promv1.API
}

// NewClient creates a Prometheus-backed Querier for the given base URL.
func NewClient(address string) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client for %s: %w", address, err)
	}
	return &Client{address: address, api: promv1.NewAPI(c)}, nil
}

// Address returns the Prometheus base URL.
func (c *Client) Address() string { return c.address }

// Query runs an instant query.
func (c *Client) Query(ctx context.Context, query string, at time.Time) (Result, error) {
	if at.IsZero() {
		at = time.Now()
	}
	value, warnings, err := c.api.Query(ctx, query, at)
	if err != nil {
		return Result{}, fmt.Errorf("instant query failed: %w", err)
	}
	c.logWarnings(query, warnings)
	return decode(value)
}

// QueryRange runs a ranged query.
func (c *Client) QueryRange(ctx context.Context, query string, r Range) (Result, error) {
	value, warnings, err := c.api.QueryRange(ctx, query, promv1.Range{Start: r.Start, End: r.End, Step: r.Step})
	if err != nil {
		return Result{}, fmt.Errorf("range query failed: %w", err)
	}
	c.logWarnings(query, warnings)
	return decode(value)
}

func (c *Client) logWarnings(query string, warnings promv1.Warnings) {
	for _, w := range warnings {
		logging.Debug("MetricsQuery", "Warning from %s for %q: %s", c.address, query, w)
	}
}

func decode(value model.Value) (Result, error) {
	switch v := value.(type) {
	case nil:
		return Result{}, nil
	case *model.Scalar:
		return Result{Series: []Series{{
			Samples: []Sample{{Timestamp: v.Timestamp.Time(), Value: float64(v.Value)}},
		}}}, nil
	case model.Vector:
		out := make([]Series, 0, len(v))
		for _, s := range v {
			out = append(out, Series{
				Labels:  metricLabels(s.Metric),
				Samples: []Sample{{Timestamp: s.Timestamp.Time(), Value: float64(s.Value)}},
			})
		}
		return Result{Series: out}, nil
	case model.Matrix:
		out := make([]Series, 0, len(v))
		for _, s := range v {
			samples := make([]Sample, 0, len(s.Values))
			for _, p := range s.Values {
				samples = append(samples, Sample{Timestamp: p.Timestamp.Time(), Value: float64(p.Value)})
			}
			sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
			out = append(out, Series{Labels: metricLabels(s.Metric), Samples: samples})
		}
		return Result{Series: out}, nil
	default:
		return Result{}, fmt.Errorf("unsupported result type %s", value.Type())
	}
}

func metricLabels(m model.Metric) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[string(k)] = string(v)
	}
	return out
}
