// Package progress carries bridge lifecycle records to observers that are not
// the session's own consumer. Bridges emit Records into a Hub without ever
// blocking; the Hub batches them on a background goroutine and fans them out
// to pluggable sinks such as Prometheus collectors, the session repository or
// a transcript archive.
package progress
