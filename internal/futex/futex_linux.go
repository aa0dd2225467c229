//go:build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futex(2) operation numbers. golang.org/x/sys/unix does not expose the PI
// variants, so they are named here the way linux/futex.h does. None of the
// operations carry FUTEX_PRIVATE_FLAG: the futex words live in a shared
// mapping and are contended by threads of different processes.
const (
	opLockPI        = 6
	opUnlockPI      = 7
	opTrylockPI     = 8
	opWaitRequeuePI = 11
	opCmpRequeuePI  = 12
)

func toTimespec(d *time.Time) *unix.Timespec {
	if d == nil {
		return nil
	}
	ts := unix.NsecToTimespec(d.UnixNano())
	return &ts
}

// LockPI asks the kernel to acquire the futex at word with priority
// inheritance, blocking until acquired, deadline elapses, or an error
// occurs. On success the kernel has already written the caller's tid (or
// tid|OwnerDied) into *word.
func LockPI(word *uint32, deadline Deadline) error {
	ts := toTimespec(deadline)
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		uintptr(opLockPI),
		0,
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	if errno == 0 {
		return nil
	}
	return errno
}

// TrylockPI asks the kernel to recover an owner-died futex without
// blocking. Returns syscall.EAGAIN if someone else raced us to it.
func TrylockPI(word *uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		uintptr(opTrylockPI),
		0, 0, 0, 0,
	)
	if errno == 0 {
		return nil
	}
	return errno
}

// UnlockPI asks the kernel to release the futex and wake exactly one
// waiter with priority inheritance, if any are queued.
func UnlockPI(word *uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(word)),
		uintptr(opUnlockPI),
		0, 0, 0, 0,
	)
	if errno == 0 {
		return nil
	}
	return errno
}

// WaitRequeuePI waits on cnd while it still equals expected, honoring the
// optional deadline, and requeues atomically onto mtxWord's PI-aware wait
// queue when woken.
func WaitRequeuePI(cnd *uint32, expected uint32, deadline Deadline, mtxWord *uint32) error {
	// FUTEX_WAIT_REQUEUE_PI measures its absolute timeout against
	// CLOCK_MONOTONIC, so the time remaining until deadline is carried
	// over onto that clock.
	var ts *unix.Timespec
	if deadline != nil {
		var now unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err != nil {
			return err
		}
		mono := unix.NsecToTimespec(now.Nano() + int64(time.Until(*deadline)))
		ts = &mono
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(cnd)),
		uintptr(opWaitRequeuePI),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		uintptr(unsafe.Pointer(mtxWord)),
		0,
	)
	if errno == 0 {
		return nil
	}
	return errno
}

// CmpRequeuePI wakes up to count waiters on cnd by requeueing them onto
// mtxWord's PI wait queue, provided *cnd still equals expected.
func CmpRequeuePI(cnd *uint32, expected uint32, mtxWord *uint32, count int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(cnd)),
		uintptr(opCmpRequeuePI),
		1, // nr_wake: PI requeue always wakes exactly one waiter itself.
		uintptr(count),
		uintptr(unsafe.Pointer(mtxWord)),
		uintptr(expected),
	)
	if errno == 0 {
		return nil
	}
	return errno
}
