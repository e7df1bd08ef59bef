// Package ipc implements blocking message passing over endpoint pairs.
//
// An endpoint pair forms a bidirectional channel; each endpoint owns a
// bounded receive queue and sends into its peer's. Full queues block
// senders and empty queues block receivers, with FIFO wakeups in both
// wait sets. Payloads are either small inline byte strings or
// zero-copy references into shared memory regions, and messages can
// carry capability transfers that move ownership between processes.
package ipc
