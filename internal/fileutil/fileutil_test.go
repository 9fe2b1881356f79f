package fileutil

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	size int64
}

func (f fakeInfo) Name() string       { return "scan.pdf" }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// stubSizes makes statFile return the given sizes in order; a negative size
// simulates the file disappearing.
func stubSizes(t *testing.T, sizes ...int64) *int {
	t.Helper()
	calls := 0
	orig := statFile
	statFile = func(string) (os.FileInfo, error) {
		i := calls
		calls++
		if i >= len(sizes) {
			i = len(sizes) - 1
		}
		if sizes[i] < 0 {
			return nil, fs.ErrNotExist
		}
		return fakeInfo{size: sizes[i]}, nil
	}
	t.Cleanup(func() { statFile = orig })
	return &calls
}

func TestIsStable(t *testing.T) {
	tests := []struct {
		name      string
		sizes     []int64
		required  int
		want      bool
		wantCalls int
	}{
		{
			name:      "constant size",
			sizes:     []int64{100},
			required:  3,
			want:      true,
			wantCalls: 4,
		},
		{
			name:      "unstable for two samples then stable",
			sizes:     []int64{10, 20, 30, 30, 30, 30},
			required:  3,
			want:      true,
			wantCalls: 6,
		},
		{
			name:      "size changes every sample",
			sizes:     []int64{1, 2, 3, 4, 5, 6, 7, 8},
			required:  3,
			want:      false,
			wantCalls: 6,
		},
		{
			name:      "zero size never stabilizes",
			sizes:     []int64{0},
			required:  2,
			want:      false,
			wantCalls: 4,
		},
		{
			name:      "file disappears",
			sizes:     []int64{10, -1},
			required:  3,
			want:      false,
			wantCalls: 2,
		},
		{
			name:      "zero resets the counter",
			sizes:     []int64{5, 5, 0, 5, 5, 5},
			required:  2,
			want:      false,
			wantCalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := stubSizes(t, tt.sizes...)

			got, err := IsStable(context.Background(), "scan.pdf", tt.required, time.Millisecond)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestIsStable_Cancelled(t *testing.T) {
	stubSizes(t, 1, 2, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := IsStable(ctx, "scan.pdf", 3, time.Hour)

	assert.False(t, got)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "acme_20260101_090000.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 data"), 0o644))
	dst := filepath.Join(dir, "processed", "acme_20260101_090000.pdf")

	require.NoError(t, MoveFile(src, dst))

	_, err := os.Stat(src)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 data", string(b))
}

func TestMoveFile_CrossDeviceFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))
	dst := filepath.Join(dir, "duplicates", "scan.pdf")

	orig := rename
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { rename = orig })

	require.NoError(t, MoveFile(src, dst))

	_, err := os.Stat(src)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestMoveFile_OtherRenameError(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out", "missing.pdf"))
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	assert.Equal(t, emptySHA, HashBytes(nil))

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
	assert.Equal(t, HashBytes([]byte("abc")), got)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
