package events

import (
	"time"

	"github.com/ferrous-os/ferrous/internal/shared/id"
	"github.com/ferrous-os/ferrous/internal/tracing"
)

// Kind classifies an observability event.
type Kind string

// Event kinds emitted by the kernel.
const (
	ProcessCreated    Kind = "process.created"
	ProcessDestroyed  Kind = "process.destroyed"
	CapabilityCreated Kind = "capability.created"
	CapabilityDerived Kind = "capability.derived"
	CapabilityRevoked Kind = "capability.revoked"
	CapabilityGranted Kind = "capability.granted"
	CapabilityDropped Kind = "capability.dropped"
	EndpointCreated   Kind = "endpoint.created"
	EndpointConnected Kind = "endpoint.connected"
	EndpointClosed    Kind = "endpoint.closed"
	MessageSent       Kind = "message.sent"
	MessageReceived   Kind = "message.received"
	RegionCreated     Kind = "region.created"
	RegionReleased    Kind = "region.released"
)

// Result records whether the audited operation succeeded.
type Result string

const (
	ResultOK     Result = "ok"
	ResultDenied Result = "denied"
	ResultError  Result = "error"
)

// Event is a single structured audit record. Every kernel operation,
// successful or rejected, produces exactly one.
type Event struct {
	ID        id.EventID        `json:"id"`
	Time      time.Time         `json:"time"`
	Kind      Kind              `json:"kind"`
	Actor     id.ProcessID      `json:"actor"`
	Target    string            `json:"target,omitempty"`
	Result    Result            `json:"result"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
	Causality tracing.Causality `json:"causality,omitzero"`
}

// New creates an event with a fresh ID and timestamp.
func New(kind Kind, actor id.ProcessID, target string) Event {
	return Event{
		ID:     id.NewEventID(),
		Time:   time.Now(),
		Kind:   kind,
		Actor:  actor,
		Target: target,
		Result: ResultOK,
	}
}

// WithResult returns a copy of the event with the given result and error.
func (e Event) WithResult(r Result, err error) Event {
	e.Result = r
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithField returns a copy of the event with an extra field attached.
func (e Event) WithField(key string, value any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Fields = fields
	return e
}

// WithCausality returns a copy of the event carrying a trace context.
func (e Event) WithCausality(c tracing.Causality) Event {
	e.Causality = c
	return e
}

// Sink consumes emitted events. Implementations must not block the
// emitting syscall.
type Sink interface {
	Emit(Event)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Nop discards all events.
type Nop struct{}

// Emit implements Sink.
func (Nop) Emit(Event) {}
