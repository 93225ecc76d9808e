package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func assertFileExists(t *testing.T, path string) {
	st, err := os.Stat(path)
	require.NoError(t, err, "file '%s' doesn't exist", path)
	require.True(t, st.Mode().IsRegular(), "path '%s' exists but is not a file", path)
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "file '%s' exist, expected to not exist", path)
}

func assertFileContent(t *testing.T, path string, exp string) {
	d, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, exp, string(d))
}

func writeTmp(t *testing.T, dst string, s string) *File {
	f, err := New(dst)
	require.NoError(t, err)
	assertFileExists(t, f.TmpPath())
	_, err = f.Write([]byte(s))
	require.NoError(t, err)
	return f
}

func TestSimulateError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	f := writeTmp(t, dst, "foo")
	errSimulated := errors.New("simulated")
	f.err = errSimulated
	err := f.Close()
	require.Equal(t, errSimulated, err)
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
	// on second Close() should get the same error
	err = f.Close()
	require.Equal(t, errSimulated, err)
}

func writeWithPanicClose(t *testing.T, f *File) {
	defer f.Close()

	_, err := f.Write([]byte("foo"))
	require.NoError(t, err)
	panic("simulating a crash")
}

func TestWriteWithPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	f, err := New(dst)
	require.NoError(t, err)
	require.Panics(t, func() { writeWithPanicClose(t, f) })
	assertFileExists(t, dst)
}

func writeWithPanicCancel(t *testing.T, f *File) {
	defer f.RemoveIfNotClosed()

	_, err := f.Write([]byte("foo"))
	require.NoError(t, err)
	panic("simulating a crash")
}

func TestCancel(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	f, err := New(dst)
	require.NoError(t, err)
	require.Panics(t, func() { writeWithPanicCancel(t, f) })
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)

	// Cancel sets an error state
	f, err = New(dst)
	require.NoError(t, err)
	f.RemoveIfNotClosed()
	_, err = f.Write([]byte("foo"))
	require.Equal(t, ErrCancelled, err)
	require.Equal(t, ErrCancelled, f.Close())
	require.Equal(t, ErrCancelled, f.Close())
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "file.txt")
	f := writeTmp(t, dst, "hello")
	_, err := f.WriteAt([]byte("j"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assertFileNotExists(t, f.tmpPath)
	assertFileContent(t, dst, "jello")
	// calling Close twice is a no-op
	require.NoError(t, f.Close())

	// over-writes existing file
	f = writeTmp(t, dst, "bye")
	require.NoError(t, f.Close())
	assertFileContent(t, dst, "bye")

	// we can't create files in directories that don't exist
	// so verify we do an early check
	f, err = New(filepath.Join(dir, "foo", "bar.txt"))
	require.Error(t, err)
	require.Nil(t, f)
}

func TestReplace(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	f := writeTmp(t, dst, "new content")
	var checkedSize int64
	err := f.Replace(ReplaceOptions{
		Check: func(tmpPath string, size int64) error {
			checkedSize = size
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(len("new content")), checkedSize)
	assertFileNotExists(t, f.tmpPath)
	assertFileContent(t, dst, "new content")

	// destination doesn't have to exist
	dst2 := dst + "2"
	f = writeTmp(t, dst2, "x")
	require.NoError(t, f.Replace(ReplaceOptions{}))
	assertFileContent(t, dst2, "x")
}

func TestReplaceCheckFails(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	f := writeTmp(t, dst, "n")
	errTooSmall := errors.New("too small")
	err := f.Replace(ReplaceOptions{
		Check: func(tmpPath string, size int64) error {
			return errTooSmall
		},
	})
	require.Equal(t, errTooSmall, err)
	// both files are kept
	assertFileContent(t, dst, "old")
	assertFileContent(t, f.TmpPath(), "n")
}

func failRenameTo(failing func(dst string) bool) func(src, dst string) error {
	return func(src, dst string) error {
		if failing(dst) {
			return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrPermission}
		}
		return os.Rename(src, dst)
	}
}

func TestReplaceRenameFails(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))
	// make "-00" taken so that we pick "-01"
	require.NoError(t, os.WriteFile(dst+".rewrite-failed-00", nil, 0644))
	rename := failRenameTo(func(path string) bool { return path == dst })

	f := writeTmp(t, dst, "new")
	err := f.Replace(ReplaceOptions{Rename: rename})
	var rerr *ReplaceError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, dst+".rewrite-failed-01", rerr.RecoveryPath)
	require.True(t, errors.Is(err, os.ErrPermission))
	assertFileNotExists(t, dst)
	assertFileNotExists(t, f.TmpPath())
	assertFileContent(t, rerr.RecoveryPath, "new")
}

func TestReplaceRecoveryFails(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))
	rename := failRenameTo(func(string) bool { return true })

	f := writeTmp(t, dst, "new")
	err := f.Replace(ReplaceOptions{Retries: 3, RetryDelay: time.Millisecond, Rename: rename})
	var rerr *ReplaceError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "", rerr.RecoveryPath)
	// data survives in the temporary file
	assertFileContent(t, rerr.TmpPath, "new")
	require.Contains(t, err.Error(), rerr.TmpPath)
}
