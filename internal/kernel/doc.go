// Package kernel is the syscall surface of the IPC core. It ties the
// capability table, per-process spaces, the endpoint registry, the
// region manager, and causality propagation together behind one API:
// every operation names its caller, is authorized purely by the
// capabilities in that caller's space, and leaves exactly one audit
// event behind, success or not.
package kernel
