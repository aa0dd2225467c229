package a0

import (
	"time"

	"github.com/a0-ipc/a0/internal/tid"
)

// Cursor is a caller-owned position within a Transport: a remembered
// offset plus the seq it pointed to when last set, so staleness can be
// detected even if the same byte offset gets reused by a later frame.
// Cursor is not safe for use without a Transport lock held.
type Cursor struct {
	off   uint64
	seq   uint64
	valid bool
}

// Frame is a read-only view of a committed frame's seq and payload. The
// payload slice aliases the arena directly; callers that need it to
// outlive the lock must copy it.
type Frame struct {
	Seq     uint64
	Payload []byte
}

// LockedTransport is a Transport with its mutex held by the calling
// goroutine. Every ring-reading and ring-mutating operation hangs off it
// so the type system makes the locking requirement visible at the call
// site.
type LockedTransport struct {
	t *Transport
}

// Lock pins the calling goroutine to its OS thread and blocks until the
// Transport's mutex is acquired. If the previous owner died mid-section,
// Lock still returns a usable handle along with IsCode(err,
// CodeOwnerDead); callers in that situation should repair any state they
// care about and call Consistent before Unlock.
func (t *Transport) Lock() (*LockedTransport, error) {
	tid.Pin()
	err := t.mtx.Lock(nil)
	if err != nil && !IsCode(err, CodeOwnerDead) {
		tid.Unpin()
		return nil, err
	}
	return &LockedTransport{t: t}, err
}

// Unlock releases the Transport's mutex and unpins the calling goroutine.
func (lt *LockedTransport) Unlock() error {
	defer tid.Unpin()
	return lt.t.mtx.Unlock()
}

// Consistent clears the owner-died bit picked up from a prior holder that
// died mid-section. Call it (after repairing state) before Unlock whenever
// Lock returned CodeOwnerDead.
func (lt *LockedTransport) Consistent() error { return lt.t.mtx.Consistent() }

// Locked runs fn with the Transport locked and always unlocks afterward,
// on every exit path including a panic inside fn. It bails out before
// calling fn if the previous owner died, and its unlock in that case
// (without Consistent) leaves the mutex permanently unrecoverable; use
// Lock/Consistent/Unlock directly when that case needs to be repaired.
func (t *Transport) Locked(fn func(*LockedTransport) error) error {
	lt, err := t.Lock()
	if err != nil {
		if lt != nil {
			_ = lt.Unlock()
		}
		return err
	}
	defer func() { _ = lt.Unlock() }()
	return fn(lt)
}

// Empty reports whether the committed ring holds no frames.
func (lt *LockedTransport) Empty() bool { return lt.t.hdr.committed.offHead == 0 }

// SeqLow is the seq of the committed head frame.
func (lt *LockedTransport) SeqLow() uint64 { return lt.t.hdr.committed.seqLow }

// SeqHigh is the seq of the committed tail frame.
func (lt *LockedTransport) SeqHigh() uint64 { return lt.t.hdr.committed.seqHigh }

// UsedSpace is the number of bytes between the committed head and the
// current high-water mark.
func (lt *LockedTransport) UsedSpace() uint64 {
	w := lt.t.hdr.committed
	return usedSpace(&w)
}

// PtrValid reports whether c still references a live, committed frame.
func (lt *LockedTransport) PtrValid(c *Cursor) bool {
	if !c.valid || c.off == 0 {
		return false
	}
	if c.off < uint64(headerSize) || c.off >= uint64(headerSize)+lt.t.capacity() {
		return false
	}
	committed := lt.t.hdr.committed
	if c.seq < committed.seqLow || c.seq > committed.seqHigh {
		return false
	}
	return lt.t.frameHeaderAt(c.off).seq == c.seq
}

// Frame returns the seq and payload the cursor currently references.
func (lt *LockedTransport) Frame(c *Cursor) (Frame, error) {
	if !lt.PtrValid(c) {
		return Frame{}, newErr("LockedTransport.Frame", CodeInvalidCursor, "cursor does not reference a live frame")
	}
	fh := lt.t.frameHeaderAt(c.off)
	return Frame{Seq: fh.seq, Payload: lt.t.payloadAt(c.off, fh.payloadSize)}, nil
}

// JumpHead positions c at the committed head frame.
func (lt *LockedTransport) JumpHead(c *Cursor) error {
	committed := lt.t.hdr.committed
	if committed.offHead == 0 {
		c.valid = false
		return newErr("LockedTransport.JumpHead", CodeInvalidCursor, "transport is empty")
	}
	c.off = committed.offHead
	c.seq = lt.t.frameHeaderAt(c.off).seq
	c.valid = true
	return nil
}

// JumpTail positions c at the committed tail frame.
func (lt *LockedTransport) JumpTail(c *Cursor) error {
	committed := lt.t.hdr.committed
	if committed.offTail == 0 {
		c.valid = false
		return newErr("LockedTransport.JumpTail", CodeInvalidCursor, "transport is empty")
	}
	c.off = committed.offTail
	c.seq = lt.t.frameHeaderAt(c.off).seq
	c.valid = true
	return nil
}

// HasNext reports whether a frame exists after the cursor's current
// position.
func (lt *LockedTransport) HasNext(c *Cursor) bool {
	if !lt.PtrValid(c) {
		return false
	}
	return lt.t.frameHeaderAt(c.off).nextOff != 0
}

// Next advances c to the following frame.
func (lt *LockedTransport) Next(c *Cursor) error {
	if !lt.HasNext(c) {
		return newErr("LockedTransport.Next", CodeInvalidCursor, "no next frame")
	}
	next := lt.t.frameHeaderAt(c.off).nextOff
	c.off = next
	c.seq = lt.t.frameHeaderAt(next).seq
	return nil
}

// HasPrev reports whether a frame exists before the cursor's current
// position.
func (lt *LockedTransport) HasPrev(c *Cursor) bool {
	if !lt.PtrValid(c) {
		return false
	}
	return lt.t.frameHeaderAt(c.off).prevOff != 0
}

// Prev retreats c to the preceding frame.
func (lt *LockedTransport) Prev(c *Cursor) error {
	if !lt.HasPrev(c) {
		return newErr("LockedTransport.Prev", CodeInvalidCursor, "no previous frame")
	}
	prev := lt.t.frameHeaderAt(c.off).prevOff
	c.off = prev
	c.seq = lt.t.frameHeaderAt(prev).seq
	return nil
}

// AllocEvicts reports whether allocating a frame of n payload bytes would
// require evicting at least one currently live frame, without performing
// the allocation.
func (lt *LockedTransport) AllocEvicts(n int) bool {
	t := lt.t
	w := t.hdr.working
	required := alignUp(uint64(frameHeaderSize)+uint64(n), 8)
	if required > t.capacity() {
		return true
	}
	newOff, _ := t.planAlloc(&w, required)
	newEnd := newOff + required
	return w.offHead != 0 && regionsOverlap(w.offHead, t.frameEnd(w.offHead), newOff, newEnd)
}

// Alloc reserves space for a new frame of n payload bytes, evicting the
// oldest live frames as needed, and positions c at it. The returned slice
// is the frame's payload region; callers fill it in place before Commit.
// The frame is not visible to other readers until Commit.
func (lt *LockedTransport) Alloc(c *Cursor, n int) ([]byte, error) {
	t := lt.t
	w := &t.hdr.working

	required := alignUp(uint64(frameHeaderSize)+uint64(n), 8)
	if required > t.capacity() {
		return nil, newErr("LockedTransport.Alloc", CodeFrameTooLarge, "payload exceeds arena capacity")
	}

	newOff, wrapped := t.planAlloc(w, required)
	if wrapped {
		tailEnd := uint64(headerSize)
		if w.offTail != 0 {
			tailEnd = t.frameEnd(w.offTail)
		}
		if tailEnd > w.highWaterMark {
			w.highWaterMark = tailEnd
		}
	}
	newEnd := newOff + required

	for w.offHead != 0 && regionsOverlap(w.offHead, t.frameEnd(w.offHead), newOff, newEnd) {
		if err := evictOldest(t, w); err != nil {
			return nil, err
		}
	}

	if newEnd > w.highWaterMark {
		w.highWaterMark = newEnd
	}

	fh := t.frameHeaderAt(newOff)
	fh.payloadSize = uint64(n)
	fh.nextOff = 0
	fh.prevOff = w.offTail

	if w.offTail != 0 {
		oldTail := t.frameHeaderAt(w.offTail)
		oldTail.nextOff = newOff
		fh.seq = oldTail.seq + 1
	} else {
		fh.seq = w.seqHigh + 1
	}

	if w.offHead == 0 {
		w.offHead = newOff
		w.seqLow = fh.seq
	}
	w.offTail = newOff
	w.seqHigh = fh.seq

	c.off = newOff
	c.seq = fh.seq
	c.valid = true

	return t.payloadAt(newOff, uint64(n)), nil
}

// Commit publishes every Alloc since the last Commit to readers and wakes
// anyone blocked in Wait.
func (lt *LockedTransport) Commit() error {
	t := lt.t
	t.hdr.committed = t.hdr.working
	return t.cnd.Broadcast(t.mtx)
}

// Resize shrinks the committed region to at most n bytes of used space,
// evicting frames as needed. It never grows the ring past the arena's
// capacity.
func (lt *LockedTransport) Resize(n uint64) error {
	t := lt.t
	cap := t.capacity()
	if n > cap {
		n = cap
	}
	w := &t.hdr.working
	*w = t.hdr.committed
	for usedSpace(w) > n && w.offHead != 0 {
		if err := evictOldest(t, w); err != nil {
			return err
		}
	}
	t.hdr.committed = *w
	return t.cnd.Broadcast(t.mtx)
}

// Wait blocks until pred reports true, reevaluating it after every wake.
func (lt *LockedTransport) Wait(pred func() bool) error {
	for !pred() {
		if err := lt.t.cnd.Wait(lt.t.mtx, nil); err != nil {
			return err
		}
	}
	return nil
}

// WaitFor is Wait with a relative timeout.
func (lt *LockedTransport) WaitFor(d time.Duration, pred func() bool) error {
	deadline := time.Now().Add(d)
	return lt.WaitUntil(deadline, pred)
}

// WaitUntil is Wait with an absolute deadline.
func (lt *LockedTransport) WaitUntil(deadline time.Time, pred func() bool) error {
	for !pred() {
		if err := lt.t.cnd.Wait(lt.t.mtx, &deadline); err != nil {
			return err
		}
	}
	return nil
}
