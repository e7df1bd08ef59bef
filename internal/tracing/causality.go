package tracing

import (
	"context"
	"fmt"

	"github.com/ferrous-os/ferrous/internal/shared/id"
)

// Causality is the trace context carried inside every message. It is
// pure data: copied alongside the message, never locked.
type Causality struct {
	TraceID      id.TraceID `json:"trace_id"`
	SpanID       id.SpanID  `json:"span_id"`
	ParentSpanID id.SpanID  `json:"parent_span_id,omitempty"`
}

// NewTrace starts a fresh trace with a root span.
func NewTrace() Causality {
	return Causality{
		TraceID: id.NewTraceID(),
		SpanID:  id.NewSpanID(),
	}
}

// Child creates a new span within the same trace, parented on the
// given context's span. A zero parent starts a fresh trace instead.
func Child(parent Causality) Causality {
	if parent.IsZero() {
		return NewTrace()
	}
	return Causality{
		TraceID:      parent.TraceID,
		SpanID:       id.NewSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// IsZero reports whether no trace context is present.
func (c Causality) IsZero() bool {
	return c.TraceID == "" && c.SpanID == ""
}

// String returns a formatted trace string for logging.
func (c Causality) String() string {
	return fmt.Sprintf("[trace:%s span:%s]", c.TraceID, c.SpanID)
}

// Context keys for trace propagation.
type contextKey string

const causalityKey contextKey = "causality"

// WithContext attaches a causality context to ctx.
func WithContext(ctx context.Context, c Causality) context.Context {
	return context.WithValue(ctx, causalityKey, c)
}

// FromContext retrieves the causality context from ctx, if any.
func FromContext(ctx context.Context) Causality {
	if c, ok := ctx.Value(causalityKey).(Causality); ok {
		return c
	}
	return Causality{}
}
