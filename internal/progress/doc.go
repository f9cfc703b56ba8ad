// Package progress tracks how far a stage has come against its work list.
// Workers add done and failed counts without blocking; a background loop
// publishes snapshots to pluggable sinks such as structured logs or
// Prometheus gauges on a fixed interval and once more on close.
package progress
