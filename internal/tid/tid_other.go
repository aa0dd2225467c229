//go:build !linux

package tid

import (
	"os"
	"runtime"
)

// Self on non-Linux platforms has no kernel tid to report, since the robust
// futex primitives themselves are unavailable (see internal/futex). It
// returns the process id purely so Mutex's bookkeeping has a token to
// compare against; it cannot make locking actually work.
func Self() uint32 {
	return uint32(os.Getpid())
}

func Pin()   { runtime.LockOSThread() }
func Unpin() { runtime.UnlockOSThread() }
