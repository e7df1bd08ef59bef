// Package memory manages shared memory regions for zero-copy message
// payloads. Regions are reference counted: a send retains, a receive
// transfers the count to the receiver, and a region is returned to the
// backing allocator exactly when the count reaches zero. The physical
// allocator itself is a collaborator behind the Allocator interface.
package memory
