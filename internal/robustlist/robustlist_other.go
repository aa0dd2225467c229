//go:build !linux

package robustlist

// Non-Linux platforms have no robust-list syscall; registration is a
// documented no-op. Nothing on these platforms can actually crash-recover
// a held Mutex - see the futex package's non-Linux stub.
func registerWithKernel(h *head) {}
