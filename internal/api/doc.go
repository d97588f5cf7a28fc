// Package api hosts the HTTP server, middleware, and REST handlers for remote
// bridge consumers. Notable routes:
//   - POST /v1/sessions to start a bridge, DELETE /v1/sessions/{session_id}
//     to cancel it.
//   - GET /v1/sessions/{session_id}/events streams events as NDJSON.
//   - POST /v1/sessions/{session_id}/actions submits an action to the handle.
//   - GET /api/sessions and /api/sessions/{session_id}/stages read persisted
//     history via the SessionRepository interface.
//   - GET /healthz / readyz for Kubernetes probes, GET /metrics for Prometheus.
package api
