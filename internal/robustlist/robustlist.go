// Package robustlist maintains the per-OS-thread robust mutex list the
// kernel walks when a thread exits while still holding a robust futex.
//
// The kernel only requires that SYS_set_robust_list be called once per
// thread, and that the list node's ->next pointers stay valid virtual
// addresses within that same thread's process the whole time a mutex is
// linked in. Everything here operates on that per-thread bookkeeping; it
// never reasons about which process owns the arena the mutex happens to
// live in.
package robustlist

import (
	"sync"
	"unsafe"

	"github.com/a0-ipc/a0/internal/tid"
)

// Node is the linked-list entry embedded in every arena-resident mutex
// word (see mutex.go's mutexWord). next/prev are raw virtual addresses,
// valid only for the OS thread that wrote them.
type Node struct {
	Next uintptr
	Prev uintptr
}

// head is byte-for-byte struct robust_list_head from linux/futex.h: a
// single self-referential "next" pointer (the kernel only ever follows
// struct robust_list.next, never a prev), the byte offset of the futex
// word relative to a linked-in entry's address, and a "list_op_pending"
// slot the kernel consults if the thread dies mid lock/unlock.
// SYS_set_robust_list rejects any length other than exactly
// unsafe.Sizeof(head{}) (24 bytes on a 64-bit kernel), so this must not
// gain the Prev field Node carries for our own O(1) unlink bookkeeping.
type head struct {
	selfNext      uintptr // always points at &selfNext (empty-list sentinel)
	futexOffset   int64
	listOpPending uintptr
}

var (
	mu      sync.Mutex
	heads   = map[uint32]*head{}
	futexOf int64 // set once via SetFutexOffset
)

// SetFutexOffset records the byte offset of the ftx field within the
// mutex word layout, relative to the embedded Node. Must be called before
// the first registration; mutex.go does this in an init().
func SetFutexOffset(off int64) {
	mu.Lock()
	futexOf = off
	mu.Unlock()
}

// ensure registers the calling OS thread's robust list with the kernel on
// first use, and returns its head. Safe to call repeatedly; only the first
// call per thread performs the syscall.
func ensure() *head {
	t := tid.Self()

	mu.Lock()
	if h, ok := heads[t]; ok {
		mu.Unlock()
		return h
	}
	h := &head{futexOffset: futexOf}
	h.selfNext = uintptr(unsafe.Pointer(&h.selfNext))
	heads[t] = h
	mu.Unlock()

	registerWithKernel(h)
	return h
}

// OpStart records that a lock/unlock transition is in flight on mtx, so
// the kernel can clean up correctly if the thread dies mid-transition.
func OpStart(mtxNode *Node) {
	h := ensure()
	h.listOpPending = uintptr(unsafe.Pointer(mtxNode))
	barrier()
}

// OpEnd clears the in-flight marker set by OpStart.
func OpEnd() {
	barrier()
	h := ensure()
	h.listOpPending = 0
}

// Add links mtxNode onto the calling thread's robust list, immediately
// after the sentinel head. Called once the mutex is actually held.
func Add(mtxNode *Node) {
	h := ensure()
	sentinel := uintptr(unsafe.Pointer(&h.selfNext))

	oldFirst := h.selfNext
	mtxNode.Prev = sentinel
	mtxNode.Next = oldFirst
	barrier()

	h.selfNext = uintptr(unsafe.Pointer(mtxNode))
	if oldFirst != sentinel {
		(*Node)(unsafe.Pointer(oldFirst)).Prev = uintptr(unsafe.Pointer(mtxNode))
	}
}

// Del unlinks mtxNode from the calling thread's robust list. Called right
// before an unlock is visible to other threads.
func Del(mtxNode *Node) {
	h := ensure()
	sentinel := uintptr(unsafe.Pointer(&h.selfNext))

	// prev may be the head's bare selfNext field rather than a real Node;
	// aliasing it as *Node and touching only its first 8 bytes (Next) is
	// safe since that's exactly where selfNext lives.
	prev := (*Node)(unsafe.Pointer(mtxNode.Prev))
	next := mtxNode.Next
	prev.Next = next
	if next != sentinel {
		(*Node)(unsafe.Pointer(next)).Prev = mtxNode.Prev
	}
}

// barrier is a compiler/memory barrier; on amd64/arm64 a plain function
// call with no inlining is enough to stop the Go compiler from reordering
// the surrounding field writes, which is all robust-list bookkeeping needs
// since the actual cross-thread visibility comes from the futex syscalls
// themselves.
//
//go:noinline
func barrier() {}
