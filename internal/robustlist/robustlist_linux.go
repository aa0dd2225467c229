//go:build linux

package robustlist

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sysSetRobustList is the set_robust_list syscall number for the build's
// architecture, taken from golang.org/x/sys/unix's generated table.
const sysSetRobustList = unix.SYS_SET_ROBUST_LIST

func registerWithKernel(h *head) {
	_, _, _ = unix.Syscall(
		sysSetRobustList,
		uintptr(unsafe.Pointer(h)),
		unsafe.Sizeof(*h),
		0,
	)
	// A failure here (e.g. kernel built without CONFIG_FUTEX robust-list
	// support) just means the kernel won't clean up for us on this
	// thread; Mutex.Lock still functions, it degrades to "owner death
	// goes unnoticed until another locker times out or a liveness check
	// runs" rather than an immediate OwnerDead on next lock.
}
