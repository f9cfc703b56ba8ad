// Package sinks implements concrete progress consumers: structured logging,
// Prometheus gauges and an in-memory board for the status endpoint. Each
// sink satisfies the progress.Sink interface.
package sinks
