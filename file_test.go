package a0

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileOpenRoundTripsSharedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.a0")

	f, err := Open(path, Options{Size: 4096, Mode: ModeShared, Create: true})
	require.NoError(t, err)

	buf := f.Arena().Bytes()
	copy(buf, "durable-marker")
	require.NoError(t, f.Close())

	// Reopening and reading back proves the mapping was MAP_SHARED: a
	// MAP_PRIVATE (copy-on-write) mapping would never have written the
	// marker back to the file.
	f2, err := Open(path, Options{Size: 4096, Mode: ModeShared})
	require.NoError(t, err)
	defer f2.Close()

	got := f2.Arena().Bytes()[:len("durable-marker")]
	if string(got) != "durable-marker" {
		t.Errorf("reopened arena = %q, want %q", got, "durable-marker")
	}
}

func TestFileOpenReadonlyMapsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.a0")

	f, err := Open(path, Options{Size: 4096, Mode: ModeShared, Create: true})
	require.NoError(t, err)
	copy(f.Arena().Bytes(), "readonly-marker")
	require.NoError(t, f.Close())

	ro, err := Open(path, Options{Size: 4096, Mode: ModeReadonly})
	require.NoError(t, err)
	defer ro.Close()

	if ro.Arena().Mode() != ModeReadonly {
		t.Errorf("Arena().Mode() = %v, want ModeReadonly", ro.Arena().Mode())
	}
	got := ro.Arena().Bytes()[:len("readonly-marker")]
	if string(got) != "readonly-marker" {
		t.Errorf("readonly arena = %q, want %q", got, "readonly-marker")
	}
}

func TestFileOpenMissingWithoutCreateFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.a0")
	_, err := Open(path, Options{Size: 4096, Mode: ModeShared})
	if !IsCode(err, CodeBadArena) {
		t.Errorf("Open of a missing, non-create path = %v, want CodeBadArena", err)
	}
}

func TestFileOpenRejectsSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.a0")

	f, err := Open(path, Options{Size: 4096, Mode: ModeShared, Create: true})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, Options{Size: 8192, Mode: ModeShared})
	if !IsCode(err, CodeBadArena) {
		t.Errorf("Open with a mismatched size = %v, want CodeBadArena", err)
	}
}

func TestFileOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "arena.a0")

	f, err := Open(path, Options{Size: 1024, Mode: ModeShared, Create: true})
	require.NoError(t, err)
	defer f.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("backing file was not created: %v", err)
	}
}
