// Package atomicword wraps the handful of atomic operations the robust
// mutex and condition variable need on their shared 32-bit words: load,
// store, compare-and-swap, and a fetch-and-or used to re-apply the
// owner-died bit after an unlock.
package atomicword

import "sync/atomic"

// Load atomically reads *word.
func Load(word *uint32) uint32 {
	return atomic.LoadUint32(word)
}

// Store atomically writes val into *word.
func Store(word *uint32, val uint32) {
	atomic.StoreUint32(word, val)
}

// CAS atomically sets *word to newVal iff it currently equals old,
// reporting whether the swap happened.
func CAS(word *uint32, old, newVal uint32) bool {
	return atomic.CompareAndSwapUint32(word, old, newVal)
}

// SwapIfEqual atomically sets *word to newVal iff it currently equals old,
// returning the previous value regardless of whether the swap happened -
// the same shape as a0's a0_cas_val, which callers use to distinguish
// "we won the race" from "we must inspect who holds it now".
func SwapIfEqual(word *uint32, old, newVal uint32) uint32 {
	for {
		cur := atomic.LoadUint32(word)
		if cur != old {
			return cur
		}
		if atomic.CompareAndSwapUint32(word, old, newVal) {
			return old
		}
	}
}

// FetchAdd atomically adds delta to *word and returns the new value.
func FetchAdd(word *uint32, delta uint32) uint32 {
	return atomic.AddUint32(word, delta)
}

// AndFetch atomically ANDs mask into *word and returns the new value. Used
// to clear the owner-died bit.
func AndFetch(word *uint32, mask uint32) uint32 {
	for {
		cur := atomic.LoadUint32(word)
		newVal := cur & mask
		if atomic.CompareAndSwapUint32(word, cur, newVal) {
			return newVal
		}
	}
}

// OrFetch atomically ORs mask into *word and returns the new value. Used
// to re-apply the owner-died/unrecoverable bits after an unlock handled by
// the kernel.
func OrFetch(word *uint32, mask uint32) uint32 {
	for {
		cur := atomic.LoadUint32(word)
		newVal := cur | mask
		if atomic.CompareAndSwapUint32(word, cur, newVal) {
			return newVal
		}
	}
}
