// Package sinks implements concrete progress consumers: Prometheus metrics,
// repository-backed session history, structured logging, Pub/Sub session-end
// notifications, and blob transcript archives. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
