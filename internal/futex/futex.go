// Package futex wraps the Linux futex(2) operations the robust,
// priority-inheriting mutex in mutex.go is built from: FUTEX_LOCK_PI,
// FUTEX_TRYLOCK_PI, FUTEX_UNLOCK_PI, FUTEX_WAIT_REQUEUE_PI and
// FUTEX_CMP_REQUEUE_PI.
//
// The futex word's low bits hold the owning thread's kernel tid (0 means
// unlocked); the kernel sets FUTEX_OWNER_DIED on the word when its
// robust-list cleanup runs after the owning thread exits while holding it.
package futex

import "time"

// Bit layout of a futex word, mirroring linux/futex.h.
const (
	TidMask   uint32 = 0x3fffffff
	OwnerDied uint32 = 0x40000000
	Waiters   uint32 = 0x80000000
)

// NotRecoverable is the poisoned terminal state: owner-died together with
// every tid bit set, which can never be a real tid.
const NotRecoverable uint32 = TidMask | OwnerDied

// Tid extracts the owning thread id from a futex word.
func Tid(word uint32) uint32 { return word & TidMask }

// HasOwnerDied reports whether the kernel has marked word's owner dead.
func HasOwnerDied(word uint32) bool { return word&OwnerDied != 0 }

// NotRecoverableState reports whether word is the poisoned, permanently
// unusable state (owner-died bit set together with the all-ones tid mask).
func NotRecoverableState(word uint32) bool {
	return word&NotRecoverable == NotRecoverable
}

// Deadline is a monotonic-clock deadline for the wait primitives. A nil
// *time.Time means "wait forever".
type Deadline = *time.Time
