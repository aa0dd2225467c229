//go:build linux

// Package tid exposes the kernel thread id the robust futex mutex needs to
// stamp as an owner, along with the OS-thread pinning that owning a robust
// futex across goroutine reschedules requires.
package tid

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Self returns the calling OS thread's kernel tid. The robust mutex word
// stores this value (masked to FUTEX_TID_MASK) as its owner.
//
// Every goroutine that locks a robust mutex must have called Pin first and
// must not call runtime.UnlockOSThread (via Unpin) until it has unlocked
// every robust mutex it holds: Go can otherwise migrate the goroutine to a
// different OS thread between Lock and Unlock, and the kernel would then
// refuse (or silently corrupt) the unlock, since robust futexes are owned
// by OS thread, not by goroutine.
func Self() uint32 {
	return uint32(unix.Gettid())
}

// Pin locks the calling goroutine to its current OS thread. Callers that
// intend to hold a Mutex (mutex.go) across a Lock/Unlock pair must call
// Pin before the first Lock on that goroutine.
func Pin() {
	runtime.LockOSThread()
}

// Unpin releases a Pin call. It must only be called once the goroutine
// holds no robust mutexes.
func Unpin() {
	runtime.UnlockOSThread()
}
