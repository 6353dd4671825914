// Package server exposes the orchestration engine over HTTP.
//
// # Endpoints
//
//   - GET /healthz - liveness plus the state of the persistence store
//   - GET /metrics - Prometheus exposition of the engine's collectors
//   - GET /v1/zones - zones, their registered clusters and known allocatable capacity
//   - GET /v1/streams/{kind}?channel=&id= - websocket subscription to a
//     reconciliation stream of one resource kind; id may repeat
//
// A stream subscription upgrades the connection and pushes one JSON frame per
// event. When a redis client is configured every event is mirrored to the
// pub/sub channel named after the subscription's channel. The last frame is a
// completion frame followed by a close control frame.
package server
