// Package events is the kernel's observability sink.
//
// Every syscall emits exactly one structured event before returning,
// carrying actor, target, result, and causality context. Denied and
// failed operations emit too, so authorization decisions stay auditable
// even when no state changed.
//
// Sinks:
//   - LogSink: structured audit log via zap
//   - MetricsSink: Prometheus counters
//   - Journal: bounded in-memory ring with live fan-out for the
//     monitor API
//   - Multi: tee to several sinks
package events
