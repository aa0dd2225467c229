package a0

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const envRoot = "A0_ROOT"
const defaultRoot = "/dev/shm"

// resolvePath mirrors the source's a0_abspath: an absolute path is used
// as-is; a relative path is joined onto A0_ROOT (default /dev/shm).
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	root := os.Getenv(envRoot)
	if root == "" {
		root = defaultRoot
	}
	return filepath.Join(root, path)
}

// File owns the OS file backing an Arena: it resolves A0_ROOT-relative
// paths, creates parent directories, makes sure the file is exactly the
// requested size, and mmaps it.
//
// File mechanics (path resolution, directory creation, mmap) are
// explicitly out of scope for the transport's hard subsystem; this type
// exists so the module is runnable end to end, not to specify novel
// behavior.
type File struct {
	path string
	fd   *os.File
	buf  []byte
	mode Mode
}

// Open resolves path under A0_ROOT (if relative), opens or creates the
// backing file per opts, mmaps it, and returns a File ready to produce an
// Arena.
func Open(path string, opts Options) (*File, error) {
	full := resolvePath(path)

	flags := os.O_RDWR
	if opts.Mode == ModeReadonly {
		flags = os.O_RDONLY
	}

	_, statErr := os.Stat(full)
	exists := statErr == nil

	if !exists {
		if !opts.Create {
			return nil, wrapErr("File.Open", CodeBadArena, statErr)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return nil, wrapErr("File.Open", CodeBadArena, err)
		}
		flags |= os.O_CREATE
	}

	fd, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		return nil, wrapErr("File.Open", CodeBadArena, err)
	}

	if !exists {
		if err := fd.Truncate(opts.Size); err != nil {
			fd.Close()
			return nil, wrapErr("File.Open", CodeBadArena, err)
		}
	} else {
		st, err := fd.Stat()
		if err != nil {
			fd.Close()
			return nil, wrapErr("File.Open", CodeBadArena, err)
		}
		if opts.Size != 0 && st.Size() != opts.Size {
			fd.Close()
			return nil, newErr("File.Open", CodeBadArena, "existing arena file size does not match requested size")
		}
	}

	size := opts.Size
	if size == 0 {
		st, err := fd.Stat()
		if err != nil {
			fd.Close()
			return nil, wrapErr("File.Open", CodeBadArena, err)
		}
		size = st.Size()
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	mmapFlags := unix.MAP_SHARED
	if opts.Mode == ModeReadonly {
		prot = unix.PROT_READ
		mmapFlags = unix.MAP_PRIVATE
	}

	buf, err := unix.Mmap(int(fd.Fd()), 0, int(size), prot, mmapFlags)
	if err != nil {
		fd.Close()
		return nil, wrapErr("File.Open", CodeBadArena, err)
	}

	return &File{path: full, fd: fd, buf: buf, mode: opts.Mode}, nil
}

// Arena returns the Arena this File maps.
func (f *File) Arena() Arena {
	return NewArena(f.buf, f.mode)
}

// Path returns the resolved, absolute path of the backing file.
func (f *File) Path() string { return f.path }

// Close unmaps the arena and closes the backing file.
func (f *File) Close() error {
	if f.buf != nil {
		if err := unix.Munmap(f.buf); err != nil {
			return wrapErr("File.Close", CodeBadArena, err)
		}
		f.buf = nil
	}
	return f.fd.Close()
}
