//go:build !linux

package futex

import "syscall"

// On non-Linux platforms there is no robust-list/PI-futex kernel support to
// bind to. Every operation fails with ENOTSUP. Mutex's userspace fast paths
// (an uncontended Lock/Trylock CAS, an Unlock with no waiters) still work;
// anything that reaches the kernel fails instead: contended Mutex.Lock and
// Cond.Wait/Signal/Broadcast report CodeBadArena, and Trylock's owner-died
// recovery reports CodeUnrecoverable.

func LockPI(word *uint32, deadline Deadline) error {
	return syscall.ENOTSUP
}

func TrylockPI(word *uint32) error {
	return syscall.ENOTSUP
}

func UnlockPI(word *uint32) error {
	return syscall.ENOTSUP
}

func WaitRequeuePI(cnd *uint32, expected uint32, deadline Deadline, mtxWord *uint32) error {
	return syscall.ENOTSUP
}

func CmpRequeuePI(cnd *uint32, expected uint32, mtxWord *uint32, count int) error {
	return syscall.ENOTSUP
}
