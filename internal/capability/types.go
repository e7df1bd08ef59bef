package capability

import (
	"github.com/google/uuid"
)

// ID is the 128-bit random identifier of a capability table entry.
// Unguessability is the forgery barrier: holders never see pointers
// into kernel memory, only (id, generation) value pairs.
type ID uuid.UUID

// NewID mints a random capability ID.
func NewID() ID {
	return ID(uuid.New())
}

// String returns the canonical UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Kind classifies the resource a capability authorizes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindEndpoint
	KindMemory
	KindDevice
	KindProcess
	KindSystem
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindEndpoint:
		return "endpoint"
	case KindMemory:
		return "memory"
	case KindDevice:
		return "device"
	case KindProcess:
		return "process"
	case KindSystem:
		return "system"
	default:
		return "invalid"
	}
}

// SystemType names a privileged kernel operation a System capability
// unlocks. Stored in the record's object field.
type SystemType uint32

const (
	SystemMintCapability SystemType = iota + 1
	SystemCreateEndpoint
	SystemCreateRegion
	SystemManageProcess
)

// String returns the string representation of the system type.
func (t SystemType) String() string {
	switch t {
	case SystemMintCapability:
		return "mint_capability"
	case SystemCreateEndpoint:
		return "create_endpoint"
	case SystemCreateRegion:
		return "create_region"
	case SystemManageProcess:
		return "manage_process"
	default:
		return "unknown"
	}
}

// ParseSystemType parses a policy-file system capability name.
func ParseSystemType(name string) (SystemType, bool) {
	switch name {
	case "mint_capability":
		return SystemMintCapability, true
	case "create_endpoint":
		return SystemCreateEndpoint, true
	case "create_region":
		return SystemCreateRegion, true
	case "manage_process":
		return SystemManageProcess, true
	default:
		return 0, false
	}
}

// Permissions is the rights bitset carried by a capability.
type Permissions uint32

const (
	PermSend Permissions = 1 << iota
	PermReceive
	PermRead
	PermWrite
	PermMap
	PermGrant
	PermDerive
	PermManage
)

// PermAll grants every right.
const PermAll = PermSend | PermReceive | PermRead | PermWrite | PermMap | PermGrant | PermDerive | PermManage

// Contains reports whether every right in sub is present.
func (p Permissions) Contains(sub Permissions) bool {
	return p&sub == sub
}

// Ref is the unforgeable token handed to processes: a plain value,
// valid only while its generation matches the table entry's.
type Ref struct {
	ID         ID
	Generation uint64
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.ID.IsZero()
}

// Record is an immutable snapshot of a capability table entry.
type Record struct {
	ID          ID
	Generation  uint64
	Kind        Kind
	Permissions Permissions
	Object      uint64 // endpoint/region id, or SystemType for KindSystem
	Parent      ID     // zero for root capabilities
}

// SystemType returns the system operation for KindSystem records.
func (r Record) SystemType() SystemType {
	if r.Kind != KindSystem {
		return 0
	}
	return SystemType(r.Object)
}
