package server

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net"
	"net/http"
	"slices"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/sink"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

// ZoneView is one entry of the zone listing.
type ZoneView struct {
	ID       string        `json:"id"`
	Clusters []ClusterView `json:"clusters"`
}

// ClusterView describes a registered cluster.
type ClusterView struct {
	ID          string            `json:"id"`
	Metrics     bool              `json:"metrics"`
	JobRuntime  bool              `json:"jobRuntime"`
	Allocatable *cluster.Capacity `json:"allocatable,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, req *http.Request) {
	body := map[string]any{"status": "ok", "clusters": s.cfg.Registry.Len()}
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.cfg.Health(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = map[string]string{"status": "down", "error": err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Zones())
}

// Zones lists the zones with their registered clusters.
func (s *Server) Zones() []ZoneView {
	zones := s.cfg.Registry.Zones()
	out := make([]ZoneView, 0, len(zones))
	for _, zone := range zones {
		view := ZoneView{ID: zone, Clusters: []ClusterView{}}
		snapshot := s.cfg.Registry.SelectionSnapshot(zone)
		for _, id := range slices.Sorted(maps.Keys(snapshot)) {
			b := snapshot[id]
			c := ClusterView{ID: b.ID(), Metrics: b.Metrics() != nil, JobRuntime: b.HasJobRuntime()}
			if s.cfg.Capacity != nil {
				if alloc, ok := s.cfg.Capacity.AllocatableCapacity(zone, b.ID()); ok {
					c.Allocatable = &alloc
				}
			}
			view.Clusters = append(view.Clusters, c)
		}
		out = append(out, view)
	}
	return out
}

func (s *Server) handleStream(w http.ResponseWriter, req *http.Request) {
	kind, err := resource.ParseKind(req.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	poller, ok := s.cfg.Pollers[kind]
	if !ok {
		writeError(w, http.StatusNotFound, "no stream for kind "+string(kind))
		return
	}
	query := req.URL.Query()
	channel := query.Get("channel")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel query parameter required")
		return
	}
	ids := query["id"]
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, reconcile.ErrNoResources.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Warn("Server", "Websocket upgrade failed: %v", err)
		return
	}
	ws := sink.NewWebSocket(conn)
	out := &sink.Multi{Primary: ws}
	if s.cfg.Redis != nil {
		out.Mirrors = append(out.Mirrors, sink.NewRedis(s.cfg.Redis, s.cfg.RedisPrefix, channel))
	}

	stream, err := poller.Open(req.Context(), channel, out, ids...)
	if err != nil {
		ws.CompleteWithError(err)
		return
	}

	// the client never sends anything; reading only detects its departure
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !sink.IsClientGone(err) && !errors.Is(err, net.ErrClosed) {
					logging.Debug("Server", "Stream %s read: %v", stream.ID(), err)
				}
				stream.Stop()
				ws.Close()
				return
			}
		}
	}()
	<-stream.Done()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
