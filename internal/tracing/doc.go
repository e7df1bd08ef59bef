/*
Package tracing provides causality propagation across message chains.

# Overview

Every message carries a trace context: a trace ID identifying the whole
request flow and a span ID for the individual send. A receiver inherits
the sender's context and parents its own sends on it, so a cross-process
request/response chain can be reconstructed from emitted events alone.

# Usage

	// Start a trace for an unparented send
	c := tracing.NewTrace()

	// Parent a reply on an inherited context
	reply := tracing.Child(inherited)

	// Thread through context.Context at API boundaries
	ctx = tracing.WithContext(ctx, c)
	c = tracing.FromContext(ctx)

# Format

Trace and span IDs are prefixed ULIDs (trace_*, span_*), sortable by
creation time.
*/
package tracing
