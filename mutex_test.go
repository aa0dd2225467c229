package a0

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/a0-ipc/a0/internal/tid"
)

func newTestMutex() *Mutex {
	return newMutex(&mutexWord{})
}

func TestMutexLockUnlockRoundTrip(t *testing.T) {
	m := newTestMutex()
	tid.Pin()
	defer tid.Unpin()

	if err := m.Lock(nil); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

func TestMutexTrylockContention(t *testing.T) {
	m := newTestMutex()

	var wg sync.WaitGroup
	wg.Add(1)
	locked := make(chan struct{})
	release := make(chan struct{})

	go func() {
		defer wg.Done()
		tid.Pin()
		defer tid.Unpin()
		if err := m.Lock(nil); err != nil {
			close(locked)
			return
		}
		close(locked)
		<-release
		_ = m.Unlock()
	}()

	<-locked
	tid.Pin()
	defer tid.Unpin()
	if err := m.Trylock(); !IsCode(err, CodeBusy) {
		t.Errorf("Trylock on a held mutex = %v, want CodeBusy", err)
	}
	close(release)
	wg.Wait()
}

// S4 - robust handoff. The owner's OS thread exits without unlocking; the
// next locker observes CodeOwnerDead, repairs state, calls Consistent, and
// a third locker then succeeds normally.
func TestMutexOwnerDeathIsRecoverable(t *testing.T) {
	m := newTestMutex()

	died := make(chan struct{})
	go func() {
		tid.Pin()
		if err := m.Lock(nil); err != nil {
			close(died)
			return
		}
		close(died)
		// Exiting a locked OS thread without Unlock/Unpin simulates a
		// process dying mid-critical-section: the kernel's robust-list
		// cleanup marks the futex word owner-died for the next locker.
		runtime.Goexit()
	}()
	<-died
	time.Sleep(20 * time.Millisecond)

	tid.Pin()
	defer tid.Unpin()

	err := m.Lock(nil)
	if !IsCode(err, CodeOwnerDead) {
		t.Fatalf("Lock after owner death = %v, want CodeOwnerDead", err)
	}
	if err := m.Consistent(); err != nil {
		t.Fatalf("Consistent failed: %v", err)
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("Unlock after Consistent failed: %v", err)
	}

	if err := m.Lock(nil); err != nil {
		t.Fatalf("Lock after repair failed: %v", err)
	}
	_ = m.Unlock()
}

// S5 - poisoning. Skipping Consistent before Unlock permanently poisons
// the mutex: every later Lock fails with CodeUnrecoverable.
func TestMutexPoisoningWithoutConsistent(t *testing.T) {
	m := newTestMutex()

	died := make(chan struct{})
	go func() {
		tid.Pin()
		if err := m.Lock(nil); err != nil {
			close(died)
			return
		}
		close(died)
		runtime.Goexit()
	}()
	<-died
	time.Sleep(20 * time.Millisecond)

	tid.Pin()
	defer tid.Unpin()

	if err := m.Lock(nil); !IsCode(err, CodeOwnerDead) {
		t.Fatalf("Lock after owner death = %v, want CodeOwnerDead", err)
	}
	if err := m.Unlock(); !IsCode(err, CodeUnrecoverable) {
		t.Fatalf("Unlock without Consistent = %v, want CodeUnrecoverable", err)
	}

	if err := m.Lock(nil); !IsCode(err, CodeUnrecoverable) {
		t.Errorf("Lock on a poisoned mutex = %v, want CodeUnrecoverable", err)
	}
}

func TestCondWaitBroadcast(t *testing.T) {
	m := newTestMutex()
	var counter uint32
	c := newCond(&counter)

	ready := false
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		tid.Pin()
		defer tid.Unpin()

		if err := m.Lock(nil); err != nil {
			t.Errorf("waiter Lock failed: %v", err)
			return
		}
		for !ready {
			if err := c.Wait(m, nil); err != nil {
				t.Errorf("Wait failed: %v", err)
				_ = m.Unlock()
				return
			}
		}
		_ = m.Unlock()
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter block first

	tid.Pin()
	defer tid.Unpin()

	if err := m.Lock(nil); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	ready = true
	if err := c.Broadcast(m); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	wg.Wait()
}
