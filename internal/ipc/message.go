package ipc

import (
	"github.com/ferrous-os/ferrous/internal/capability"
	"github.com/ferrous-os/ferrous/internal/memory"
	"github.com/ferrous-os/ferrous/internal/shared/id"
	"github.com/ferrous-os/ferrous/internal/tracing"
)

// MaxInlinePayload is the largest payload carried inside a message
// itself. Anything bigger goes through a shared memory region.
const MaxInlinePayload = 256

// PayloadKind discriminates the two payload representations.
type PayloadKind uint8

const (
	PayloadInline PayloadKind = iota
	PayloadRegion
)

// String returns the string representation of the payload kind.
func (k PayloadKind) String() string {
	if k == PayloadRegion {
		return "region"
	}
	return "inline"
}

// Payload is either a small inline byte string or a reference into a
// shared memory region. Region payloads are never copied: only the
// reference travels.
type Payload struct {
	kind   PayloadKind
	data   []byte
	region memory.RegionID
	offset uint64
	length uint64
}

// Inline builds an inline payload. The bytes are copied so the message
// stays immutable after enqueue.
func Inline(data []byte) (Payload, error) {
	if len(data) > MaxInlinePayload {
		return Payload{}, ErrInvalidMessage
	}
	return Payload{kind: PayloadInline, data: append([]byte(nil), data...)}, nil
}

// Region builds a zero-copy payload referencing a shared memory span.
func Region(region memory.RegionID, offset, length uint64) Payload {
	return Payload{kind: PayloadRegion, region: region, offset: offset, length: length}
}

// Kind returns the payload representation.
func (p Payload) Kind() PayloadKind { return p.kind }

// Bytes returns the inline bytes (nil for region payloads).
func (p Payload) Bytes() []byte { return p.data }

// Len returns the payload length in bytes.
func (p Payload) Len() int {
	if p.kind == PayloadRegion {
		return int(p.length)
	}
	return len(p.data)
}

// RegionRef returns the referenced region span.
func (p Payload) RegionRef() (memory.RegionID, uint64, uint64) {
	return p.region, p.offset, p.length
}

// Message is one unit of transfer. Immutable once enqueued: the queue
// stores it by value and hands out copies.
//
// Capabilities in Transfers are logically moved, not copied: detached
// from the sender's space at send time, inserted into the receiver's
// at receive time. Until then they live only here, attached to the
// in-flight message.
type Message struct {
	Type      uint32
	Payload   Payload
	Transfers []capability.Ref
	Slots     []capability.Slot // receiver-local, filled at delivery
	Causality tracing.Causality
	Sender    id.ProcessID
}
