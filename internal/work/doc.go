// Package work provides concrete stage implementations for bridges: a
// scripted Plan with per-stage durations and failure injection, and a
// rate-limited wrapper that throttles stage admission across sessions.
package work
