// Package bridge runs a background worker that is driven by discrete actions and
// reports its progress as an ordered stream of lifecycle events.
//
// Start spawns the worker and returns two halves: an EventStream the consumer
// reads and a Handle the consumer submits actions through. The first event on
// every stream is Ready, which carries the same Handle. The Handle stays inert
// until the consumer has read Ready, so a consumer can never race the
// handshake.
//
// Both directions are bounded channels of capacity one. The worker cannot get
// more than one event ahead of the consumer, and the consumer cannot queue more
// than one unprocessed action ahead of the worker. What happens to an action
// submitted while the queue slot is taken is governed by Policy.
//
// A bridge never shuts itself down. The consumer ends a session either by
// submitting Cleanup, which terminates the worker after the cleanup work runs,
// or by closing the stream.
package bridge
