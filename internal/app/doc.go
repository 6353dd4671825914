// Package app wires the orchestration engine together and runs it.
//
// # Bootstrap
//
// NewApplication performs the startup sequence:
//
//  1. Load config.yaml from the configuration directory and initialise logging
//  2. Build the cluster registry; clusters that fail to initialise are skipped
//  3. Open the PostgreSQL store and apply migrations, or fall back to memory
//     when no DSN is configured
//  4. Start the node watchers feeding the in-memory inventory and the store
//  5. Create the task runner, one reconciliation poller per resource kind and
//     the orchestrator service
//  6. Connect the optional redis event mirror and create the HTTP server
//
// # Shutdown
//
// Run blocks until its context is cancelled or SIGINT/SIGTERM arrives. The HTTP
// server drains first, then the pollers stop their streams, the node watchers
// stop, in-flight tasks finish and the connections are closed.
package app
