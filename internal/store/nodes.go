package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invergent-ai/surogate-studio-sub002/internal/nodewatch"
)

// UpsertNode implements nodewatch.Bookkeeper.
func (s *Store) UpsertNode(ctx context.Context, n nodewatch.Node) error {
	labels, err := json.Marshal(n.Labels)
	if err != nil {
		return fmt.Errorf("encode labels of node %s: %w", n.Name, err)
	}
	const query = `INSERT INTO nodes (zone, cluster, name, ready, unschedulable, unavailable,
			cpu_milli, memory_bytes, gpus, labels, resource_version, observed_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (zone, cluster, name) DO UPDATE SET
			ready = EXCLUDED.ready, unschedulable = EXCLUDED.unschedulable, unavailable = FALSE,
			cpu_milli = EXCLUDED.cpu_milli, memory_bytes = EXCLUDED.memory_bytes, gpus = EXCLUDED.gpus,
			labels = EXCLUDED.labels, resource_version = EXCLUDED.resource_version,
			observed_at = EXCLUDED.observed_at`
	_, err = s.db.Exec(ctx, query, n.Zone, n.Cluster, n.Name, n.Ready, n.Unschedulable,
		n.Allocatable.CPUMilli, n.Allocatable.MemoryBytes, n.Allocatable.GPUs,
		labels, n.ResourceVersion, n.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert node %s/%s/%s: %w", n.Zone, n.Cluster, n.Name, err)
	}
	return nil
}

// MarkUnavailable implements nodewatch.Bookkeeper. The row is kept.
func (s *Store) MarkUnavailable(ctx context.Context, zone, clusterID, name string, at time.Time) error {
	const query = `UPDATE nodes SET unavailable = TRUE, ready = FALSE, observed_at = $4
		WHERE zone = $1 AND cluster = $2 AND name = $3`
	if _, err := s.db.Exec(ctx, query, zone, clusterID, name, at.UTC()); err != nil {
		return fmt.Errorf("mark node %s/%s/%s unavailable: %w", zone, clusterID, name, err)
	}
	return nil
}

// Nodes lists the recorded nodes of a cluster.
func (s *Store) Nodes(ctx context.Context, zone, clusterID string) ([]nodewatch.Node, error) {
	const query = `SELECT name, ready, unschedulable, unavailable, cpu_milli, memory_bytes, gpus,
			labels, resource_version, observed_at
		FROM nodes WHERE zone = $1 AND cluster = $2 ORDER BY name`
	rows, err := s.db.Query(ctx, query, zone, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list nodes of %s/%s: %w", zone, clusterID, err)
	}
	defer rows.Close()

	var out []nodewatch.Node
	for rows.Next() {
		n := nodewatch.Node{Zone: zone, Cluster: clusterID}
		var labels []byte
		if err := rows.Scan(&n.Name, &n.Ready, &n.Unschedulable, &n.Unavailable,
			&n.Allocatable.CPUMilli, &n.Allocatable.MemoryBytes, &n.Allocatable.GPUs,
			&labels, &n.ResourceVersion, &n.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan node of %s/%s: %w", zone, clusterID, err)
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &n.Labels); err != nil {
				return nil, fmt.Errorf("decode labels of node %s: %w", n.Name, err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
