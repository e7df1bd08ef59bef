// Package id provides centralized ID generation for the kernel.
//
// Two ID families coexist:
//   - ULIDs for observability identifiers (traces, spans, events):
//     lexicographically sortable, prefixed for readability in logs
//   - Small integers for kernel object namespaces (processes,
//     endpoints, regions), allocated by their owning subsystem
//
// Capability identifiers are deliberately NOT generated here: they are
// 128-bit random values minted by the capability table, since their only
// requirement is unguessability, not sortability.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProcessID identifies a process registered with the kernel.
type ProcessID uint32

// TraceID identifies a causal chain of messages across processes.
type TraceID string

// SpanID identifies a single operation within a trace.
type SpanID string

// EventID identifies an emitted observability event.
type EventID string

// ID prefixes for debugging and type identification.
const (
	TracePrefix = "trace"
	SpanPrefix  = "span"
	EventPrefix = "evt"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source. Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTraceID generates a new trace ID.
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID.
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

// NewEventID generates a new event ID.
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

// String methods for ID types.
func (id ProcessID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string { return string(id) }
func (id EventID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the timestamp from a ULID string.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
