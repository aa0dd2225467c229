package a0

// Transport is a single-writer, multi-reader ring log laid out over an
// Arena: a fixed header (transportHeader) followed by a region of
// variable-size Frames linked head-to-tail by absolute byte offset.
//
// All ring operations require the Transport's lock; see Lock and Locked.
type Transport struct {
	arena Arena
	hdr   *transportHeader
	mtx   *Mutex
	cnd   *Cond
}

// NewTransport lays a Transport over arena, initializing its header on
// first use and rolling back an interrupted append on reattach.
func NewTransport(arena Arena) (*Transport, error) {
	if arena.Len() < headerSize+frameHeaderSize {
		return nil, newErr("NewTransport", CodeBadArena, "arena too small to hold a transport header and one frame")
	}

	hdr := headerAt(arena.buf)
	t := &Transport{
		arena: arena,
		hdr:   hdr,
		mtx:   newMutex(&hdr.mtx),
		cnd:   newCond(&hdr.cnd),
	}

	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) init() error {
	lt, err := t.Lock()
	if err != nil && !IsCode(err, CodeOwnerDead) {
		return err
	}
	if IsCode(err, CodeOwnerDead) {
		if cErr := lt.Consistent(); cErr != nil {
			return cErr
		}
	}
	defer lt.Unlock()

	switch {
	case t.hdr.magic == 0:
		// Brand-new, all-zero arena. Leave mtx/cnd untouched - we are
		// holding the lock we just acquired via a 0->tid CAS, and a zero
		// cnd counter is already a valid "nothing signaled yet" state.
		t.hdr.committed = ringState{}
		t.hdr.working = ringState{}
		t.hdr.magic = magicValue
	case t.hdr.magic != magicValue:
		return newErr("NewTransport", CodeBadArena, "arena does not contain a transport header")
	case t.hdr.working != t.hdr.committed:
		// An append was interrupted mid-way through; only committed state
		// is ever visible to readers, so roll working back to it.
		t.hdr.working = t.hdr.committed
	}
	return nil
}

func (t *Transport) capacity() uint64 { return uint64(len(t.arena.buf) - headerSize) }

func (t *Transport) frameHeaderAt(off uint64) *frameHeader {
	return frameHeaderAt(t.arena.buf, off)
}

func (t *Transport) payloadAt(off uint64, n uint64) []byte {
	start := off + uint64(frameHeaderSize)
	return t.arena.buf[start : start+n]
}

func (t *Transport) frameEnd(off uint64) uint64 {
	fh := t.frameHeaderAt(off)
	return off + uint64(frameHeaderSize) + alignUp(fh.payloadSize, 8)
}

func usedSpace(w *ringState) uint64 {
	if w.offHead == 0 {
		return 0
	}
	return w.highWaterMark - w.offHead
}

// evictOldest advances w's head past its current oldest frame, the FIFO
// eviction alloc falls back to when a new frame would otherwise clobber
// still-live data.
func evictOldest(t *Transport, w *ringState) error {
	if w.offHead == 0 {
		return newErr("Alloc", CodeFrameTooLarge, "payload does not fit even after evicting every frame")
	}
	head := t.frameHeaderAt(w.offHead)
	next := head.nextOff
	if next == 0 {
		w.offHead = 0
		w.offTail = 0
		return nil
	}
	nextHdr := t.frameHeaderAt(next)
	nextHdr.prevOff = 0
	w.offHead = next
	w.seqLow = nextHdr.seq
	return nil
}

// planAlloc computes where the next frame of the given required size
// would land, without mutating anything. wrapped reports whether the
// write pointer would restart just past the header.
func (t *Transport) planAlloc(w *ringState, required uint64) (newOff uint64, wrapped bool) {
	arenaEnd := uint64(headerSize) + t.capacity()

	tailEnd := uint64(headerSize)
	if w.offTail != 0 {
		tailEnd = t.frameEnd(w.offTail)
	}

	if tailEnd+required > arenaEnd {
		return uint64(headerSize), true
	}
	return tailEnd, false
}
