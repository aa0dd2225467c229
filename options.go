package a0

// Options configures how a File resolves a path and sizes the arena file
// it opens or creates. Topic-name-to-path mapping, CLI flags and language
// bindings are explicitly out of scope for this package; Options is the
// thin, explicit-struct configuration surface the library itself takes.
type Options struct {
	// Size is the arena's total byte capacity, including the transport
	// header. Required when Create is true. When opening an existing
	// file, a mismatch against the file's current size is a BadArena
	// error rather than a silent resize - the source left arena resize
	// after first init unspecified, so this implementation rejects it.
	Size int64

	// Mode is the access mode to map the arena under.
	Mode Mode

	// Create creates the backing file (and its parent directories) if it
	// does not already exist, zero-filled to Size.
	Create bool
}

// DefaultOptions returns shared, creatable arena options of the given
// size.
func DefaultOptions(size int64) Options {
	return Options{Size: size, Mode: ModeShared, Create: true}
}
