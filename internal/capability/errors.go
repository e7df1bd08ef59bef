package capability

import "errors"

// Capability error taxonomy. All are returned to callers; none are
// swallowed. Internal invariant violations panic instead.
var (
	ErrInvalidSlot             = errors.New("invalid slot")
	ErrCapabilityNotFound      = errors.New("capability not found")
	ErrCapabilityRevoked       = errors.New("capability revoked")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrInvalidDerivation       = errors.New("invalid derivation")
	ErrSpaceFull               = errors.New("capability space full")
	ErrInvalidTarget           = errors.New("invalid target")
)
