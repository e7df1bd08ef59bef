// Package capability implements the unforgeable authorization model:
// the global capability table and per-process capability spaces.
//
// A capability is a plain value (128-bit id + generation), never a
// pointer into kernel state. Validity is a value comparison against
// the table; revocation bumps the table generation and invalidates
// every outstanding copy at once. Derivation creates narrower children
// linked to their parent, and revoking a parent cascades depth-first
// through the derivation forest.
package capability
