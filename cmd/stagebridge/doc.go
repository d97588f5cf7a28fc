// Package main hosts the stagebridge entrypoint.
//
// Architecture overview:
//   - Bridge: internal/bridge runs one worker goroutine per session. The worker
//     announces itself with a Ready event carrying the Handle, then runs stage
//     A, stage B and cleanup as actions arrive. Events and actions travel over
//     two capacity-1 channels, so both directions are FIFO and backpressured.
//   - Sessions: internal/session keeps the live bridges served to remote
//     consumers. Each session has one event stream; detaching cancels it.
//   - HTTP API: internal/api exposes session start/cancel, an NDJSON event
//     stream, action submission, persisted history, health and /metrics.
//   - Work: internal/work simulates the stages with configurable durations,
//     injected failures and rate-limited stage admission shared by all sessions.
//   - Progress: every bridge reports lifecycle records to a non-blocking hub that
//     batches them to sinks: Prometheus, session history (memory or Postgres),
//     structured logs, Pub/Sub session-end notices and transcript archives
//     (memory, local disk or GCS).
//
// Commands:
//   - stagebridge serve --config config.yaml runs the HTTP server until SIGTERM.
//   - stagebridge run drives one session in-process and prints its events.
//
// Configuration comes from the optional YAML file and BRIDGE_* environment
// variables (for example BRIDGE_SERVER_PORT, BRIDGE_BRIDGE_SUBMIT_POLICY,
// BRIDGE_WORK_FAIL, BRIDGE_DB_DSN, BRIDGE_ARCHIVE_BACKEND).
package main
