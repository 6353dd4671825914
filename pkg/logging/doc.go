// Package logging provides the structured logging used across the orchestration engine.
//
// It wraps Go's slog package behind package-level helpers that tag every entry with a
// subsystem name, so call sites stay short:
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stdout)
//
//	logging.Info("Registry", "Registered cluster %s/%s", zone, clusterID)
//	logging.Warn("Startup", "Skipping cluster %s: no credentials", clusterID)
//	logging.Error("Poller", err, "Tick failed for %s", id)
//
// # Log Levels
//   - Debug: per-tick and per-poll detail
//   - Info: lifecycle of clusters, streams and tasks
//   - Warn: skipped clusters, transient failures
//   - Error: failures surfaced to callers or subscribers
//
// Libraries that accept an *slog.Logger can be given logging.With(subsystem).
package logging
