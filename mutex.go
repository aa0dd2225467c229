package a0

import (
	"math"
	"syscall"
	"time"

	"github.com/a0-ipc/a0/internal/atomicword"
	"github.com/a0-ipc/a0/internal/futex"
	"github.com/a0-ipc/a0/internal/robustlist"
	"github.com/a0-ipc/a0/internal/tid"
)

func init() {
	// The kernel computes a linked-in entry's futex address as
	// (char*)entry + futex_offset, where entry is &mutexWord.Node (what
	// robustNode returns). ftx sits 8 bytes before Node (ftx uint32 +
	// _pad uint32), so the offset back to it is negative.
	robustlist.SetFutexOffset(-8)
}

// mutexWord is the exact, arena-resident layout of a Mutex: a 32-bit
// futex word (low bits hold the owning tid, high bits hold
// FUTEX_OWNER_DIED), padding to align the robust-list pointers on an
// 8-byte boundary, and the robust-list Next/Prev slots themselves.
type mutexWord struct {
	ftx  uint32
	_pad uint32
	robustlist.Node
}

// Mutex is a robust, priority-inheriting lock resident at a fixed offset
// inside an arena and usable by any process that maps it. If the owning
// thread dies while holding it, the kernel's robust-list cleanup marks the
// word owner-died; the next locker receives that fact via Lock/Trylock's
// returned error (IsCode(err, CodeOwnerDead)) and must repair whatever
// state the dead owner left, then call Consistent before Unlock - or the
// mutex poisons itself and every subsequent Lock fails with
// CodeUnrecoverable forever.
//
// A goroutine must call internal/tid.Pin before its first Lock on a given
// Mutex and must not Unpin while holding one: the kernel's robust futex
// bookkeeping is keyed by OS thread, and Go may otherwise migrate the
// goroutine mid-critical-section.
type Mutex struct {
	w *mutexWord
}

func newMutex(w *mutexWord) *Mutex { return &Mutex{w: w} }

func (m *Mutex) robustNode() *robustlist.Node { return &m.w.Node }

// timedlockRobust spins on a lock-free CAS, falling back to the kernel's
// PI futex lock, retrying on EINTR, and reporting EOWNERDEAD (mutex IS
// held) rather than treating it as failure.
func (m *Mutex) timedlockRobust(deadline *time.Time) error {
	t := tid.Self()
	for {
		if futex.NotRecoverableState(atomicword.Load(&m.w.ftx)) {
			return syscall.ENOTRECOVERABLE
		}
		if atomicword.CAS(&m.w.ftx, 0, t) {
			return nil
		}
		err := futex.LockPI(&m.w.ftx, deadline)
		if err == syscall.EINTR {
			continue
		}
		if err == nil {
			if futex.HasOwnerDied(atomicword.Load(&m.w.ftx)) {
				return syscall.EOWNERDEAD
			}
			return nil
		}
		return err
	}
}

func (m *Mutex) timedlock(deadline *time.Time) error {
	robustlist.OpStart(m.robustNode())
	err := m.timedlockRobust(deadline)
	if err == nil || err == syscall.EOWNERDEAD {
		robustlist.Add(m.robustNode())
	}
	robustlist.OpEnd()
	return err
}

// Lock blocks until the mutex is acquired, the optional deadline elapses,
// or the mutex is found to be unrecoverable. A nil error means ordinary
// success; IsCode(err, CodeOwnerDead) means the lock IS held but its
// previous owner died - call Consistent then Unlock, or defer to
// CodeUnrecoverable on every future Lock.
func (m *Mutex) Lock(deadline *time.Time) error {
	switch err := m.timedlock(deadline); err {
	case nil:
		return nil
	case syscall.EOWNERDEAD:
		return newErr("Mutex.Lock", CodeOwnerDead, "previous owner died; call Consistent then Unlock")
	case syscall.ENOTRECOVERABLE:
		return newErr("Mutex.Lock", CodeUnrecoverable, "mutex permanently poisoned")
	case syscall.ETIMEDOUT:
		return newErr("Mutex.Lock", CodeTimeout, "lock deadline exceeded")
	default:
		return wrapErr("Mutex.Lock", CodeBadArena, err)
	}
}

// Trylock attempts to acquire the mutex without blocking.
func (m *Mutex) Trylock() error {
	t := tid.Self()

	robustlist.OpStart(m.robustNode())
	defer robustlist.OpEnd()

	old := atomicword.SwapIfEqual(&m.w.ftx, 0, t)
	if old == 0 {
		robustlist.Add(m.robustNode())
		return nil
	}

	if futex.NotRecoverableState(old) {
		return newErr("Mutex.Trylock", CodeUnrecoverable, "mutex permanently poisoned")
	}
	if !futex.HasOwnerDied(old) {
		return newErr("Mutex.Trylock", CodeBusy, "mutex held")
	}

	// The owner died; ask the kernel to recover the futex state for us.
	if err := futex.TrylockPI(&m.w.ftx); err != nil {
		if err == syscall.EAGAIN {
			return newErr("Mutex.Trylock", CodeBusy, "lost a race recovering owner death")
		}
		return newErr("Mutex.Trylock", CodeUnrecoverable, "owner-death recovery failed")
	}

	robustlist.Add(m.robustNode())
	if futex.HasOwnerDied(atomicword.Load(&m.w.ftx)) {
		return newErr("Mutex.Trylock", CodeOwnerDead, "previous owner died; call Consistent then Unlock")
	}
	return nil
}

// Consistent clears the owner-died bit, provided the calling thread holds
// the mutex in the owner-died state. It is the only way to avoid
// poisoning the mutex after an OwnerDead acquisition.
func (m *Mutex) Consistent() error {
	val := atomicword.Load(&m.w.ftx)
	if !futex.HasOwnerDied(val) {
		return newErr("Mutex.Consistent", CodeBadArena, "mutex is not in an owner-died state")
	}
	if futex.Tid(val) != tid.Self() {
		return newErr("Mutex.Consistent", CodeBadArena, "mutex is not held by the calling thread")
	}
	atomicword.AndFetch(&m.w.ftx, ^futex.OwnerDied)
	return nil
}

// Unlock releases the mutex. Only the owning thread may call it. If the
// mutex was acquired as OwnerDead and Consistent was never called, Unlock
// transitions the word to the permanently unrecoverable state and returns
// an error - every future Lock/Trylock on this mutex will fail with
// CodeUnrecoverable.
func (m *Mutex) Unlock() error {
	t := tid.Self()
	val := atomicword.Load(&m.w.ftx)
	if futex.Tid(val) != t {
		return newErr("Mutex.Unlock", CodeBadArena, "mutex not held by the calling thread")
	}

	var newVal uint32
	if futex.HasOwnerDied(val) {
		newVal = futex.NotRecoverable
	}

	robustlist.OpStart(m.robustNode())
	robustlist.Del(m.robustNode())

	// If the futex word is exactly our tid, there are no waiters and the
	// kernel doesn't need to get involved.
	if !atomicword.CAS(&m.w.ftx, t, newVal) {
		_ = futex.UnlockPI(&m.w.ftx)
		if newVal != 0 {
			atomicword.OrFetch(&m.w.ftx, newVal)
		}
	}

	robustlist.OpEnd()

	if newVal == futex.NotRecoverable {
		return newErr("Mutex.Unlock", CodeUnrecoverable,
			"owner death was not marked consistent before unlock; mutex is now permanently poisoned")
	}
	return nil
}

// Cond is a condition variable: a single 32-bit counter, always paired
// with the Mutex whose critical section it guards.
type Cond struct {
	counter *uint32
}

func newCond(counter *uint32) *Cond { return &Cond{counter: counter} }

// Wait releases mtx, blocks until signaled/broadcast or deadline elapses,
// then reacquires mtx before returning. The caller must recheck its
// predicate in a loop - this can return spuriously, exactly like
// sync.Cond.Wait.
func (c *Cond) Wait(mtx *Mutex, deadline *time.Time) error {
	init := atomicword.Load(c.counter)

	if err := mtx.Unlock(); err != nil {
		return err
	}

	robustlist.OpStart(mtx.robustNode())

	var err error
	for {
		err = futex.WaitRequeuePI(c.counter, init, deadline, &mtx.w.ftx)
		if err != syscall.EINTR {
			break
		}
	}

	// On timeout we must manually reacquire; we keep the timeout error.
	if err == syscall.ETIMEDOUT {
		_ = mtx.timedlockRobust(nil)
	} else if err == syscall.EAGAIN {
		// Someone mutated the resource between our unlock and the wait
		// call; no need to wait further, just reacquire.
		err = mtx.timedlockRobust(nil)
	}

	robustlist.Add(mtx.robustNode())

	if err == nil && futex.HasOwnerDied(atomicword.Load(&mtx.w.ftx)) {
		err = syscall.EOWNERDEAD
	}

	robustlist.OpEnd()

	switch err {
	case nil:
		return nil
	case syscall.EOWNERDEAD:
		return newErr("Cond.Wait", CodeOwnerDead, "previous owner died while we were waiting")
	case syscall.ETIMEDOUT:
		return newErr("Cond.Wait", CodeTimeout, "wait deadline exceeded")
	default:
		return wrapErr("Cond.Wait", CodeBadArena, err)
	}
}

func (c *Cond) wake(mtx *Mutex, count int) error {
	val := atomicword.FetchAdd(c.counter, 1)
	for {
		err := futex.CmpRequeuePI(c.counter, val, &mtx.w.ftx, count)
		if err == syscall.EAGAIN {
			// Another thread raced us to wake this cnd; retry with the
			// counter's latest value.
			val = atomicword.Load(c.counter)
			continue
		}
		if err != nil {
			return wrapErr("Cond.wake", CodeBadArena, err)
		}
		return nil
	}
}

// Signal wakes at most one waiter.
func (c *Cond) Signal(mtx *Mutex) error { return c.wake(mtx, 1) }

// Broadcast wakes every waiter.
func (c *Cond) Broadcast(mtx *Mutex) error { return c.wake(mtx, math.MaxInt32) }
