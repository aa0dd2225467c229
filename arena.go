package a0

// Mode describes how an Arena is used in this process and, implicitly,
// how it must be treated by other processes sharing the same file.
type Mode int

const (
	// ModeShared: the arena may be simultaneously accessed by other
	// processes. Locking and the condition variable are active.
	ModeShared Mode = iota
	// ModeExclusive: a promise that no other process will touch the
	// arena concurrently. Locking degenerates to an uncontended fast
	// path but is still exercised, so the API is identical either way.
	ModeExclusive
	// ModeReadonly: a promise that this process will never write to the
	// arena, and that no other process will write to it while mapped
	// here either.
	ModeReadonly
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeExclusive:
		return "exclusive"
	case ModeReadonly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Arena is a contiguous byte buffer plus the mode it was mapped under. Its
// lifetime is tied to whatever produced buf (typically a *File's mmap);
// Arena itself does not own any OS resource.
//
// On first attach to a brand-new backing file the bytes are zero; the
// Transport header treats an all-zero header as "uninitialized" and lays
// itself down on first use.
type Arena struct {
	buf  []byte
	mode Mode
}

// NewArena wraps an existing byte buffer as an Arena. Most callers should
// use File.Arena instead, which also takes care of mmap'ing the buffer.
func NewArena(buf []byte, mode Mode) Arena {
	return Arena{buf: buf, mode: mode}
}

// Bytes returns the arena's backing buffer.
func (a Arena) Bytes() []byte { return a.buf }

// Mode returns the arena's access mode.
func (a Arena) Mode() Mode { return a.mode }

// Len is the arena's total byte capacity, header included.
func (a Arena) Len() int { return len(a.buf) }
