package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrCancelled is returned by calls subsequent to Cancel()
	ErrCancelled = errors.New("cancelled")

	// ensure we implement desired interface
	_ io.WriteCloser = &File{}
	_ io.WriterAt    = &File{}
)

// File allows writing to a file atomically
// i.e. if the while file is not written successfully, we make sure
// to clean things up
type File struct {
	dstPath string
	dir     string
	tmpFile *os.File
	err     error

	tmpPath string
}

// New creates new File. The temporary file is created in the same
// directory as path so that it can be renamed over it.
func New(path string) (*File, error) {
	dir, fName := filepath.Split(path)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}

	tmpFile, err := os.CreateTemp(dir, fName+".tmp-*")
	if err != nil {
		return nil, err
	}

	return &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}, nil
}

// TmpPath returns path of the temporary file
func (f *File) TmpPath() string {
	return f.tmpPath
}

func (f *File) handleError(err error) error {
	if err == nil {
		return nil
	}
	// remember the first errro
	if f.err == nil {
		f.err = err
	}
	// cleanup i.e. delete temporary file
	_ = f.Close()
	return err
}

// Write writes data to a file
func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.handleError(err)
}

func (f *File) Sync() error {
	if f.err != nil {
		return f.err
	}
	err := f.tmpFile.Sync()
	return f.handleError(err)
}

func (f *File) WriteAt(b []byte, off int64) (n int, err error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err = f.tmpFile.WriteAt(b, off)
	return n, f.handleError(err)
}

func (f *File) alreadyClosed() bool {
	return f.tmpFile == nil
}

// RemoveIfNotClosed removes the temp file if we didn't Close
// the file yet. Destination file will not be created.
// Use it with defer to ensure cleanup in case of a panic on the
// same goroutine that happens before Close.
// RemoveIfNotClosed after Close is a no-op.
func (f *File) RemoveIfNotClosed() {
	if f == nil {
		return
	}
	if f.alreadyClosed() {
		// a no-op if already closed
		return
	}

	f.err = ErrCancelled
	_ = f.Close()
}

// closeTmp syncs and closes the temporary file. Returns the first error
// seen so far.
func (f *File) closeTmp() error {
	tmpFile := f.tmpFile
	f.tmpFile = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()
	if f.err == nil {
		f.err = errSync
	}
	if f.err == nil {
		f.err = errClose
	}
	return f.err
}

// for extra protection against crashes elsewhere, sync directory after rename
func (f *File) syncDir() {
	fdir, _ := os.Open(f.dir)
	if fdir != nil {
		// ignore errors as those are a nice have, not must have
		_ = fdir.Sync()
		_ = fdir.Close()
	}
}

// Close closes the file and renames it over the destination. Can be
// called multiple times to make it easier to use via defer
func (f *File) Close() error {
	if f.alreadyClosed() {
		// return the first error we encountered
		return f.err
	}

	// delete the temporary file in case of errors:
	// - there was an error in Write()
	// - thre was an error in Sync()
	// - Close() failed
	// - rename to destination failed
	if err := f.closeTmp(); err != nil {
		_ = os.Remove(f.tmpPath)
		return err
	}

	// this will over-write dstPath (if it exists)
	err := os.Rename(f.tmpPath, f.dstPath)
	if err != nil {
		_ = os.Remove(f.tmpPath)
		f.err = err
		return err
	}
	f.syncDir()
	return nil
}

// ReplaceOptions controls Replace
type ReplaceOptions struct {
	// Check is called with the size of the complete temporary file before
	// the destination is deleted. If it returns an error, Replace returns
	// it and both files are left in place.
	Check func(tmpPath string, size int64) error

	// Retries is the number of attempts to rename the temporary file to a
	// recovery name. 0 means try until it succeeds.
	Retries int
	// RetryDelay is the initial delay between attempts, doubled after each
	// one up to a minute
	RetryDelay time.Duration

	// Rename is os.Rename if not set
	Rename func(oldPath, newPath string) error
}

// ReplaceError is returned by Replace when the destination was deleted but
// the temporary file couldn't be renamed to it. The new data is in
// RecoveryPath if it's set, in TmpPath otherwise.
type ReplaceError struct {
	Path         string
	TmpPath      string
	RecoveryPath string
	Err          error
}

func (e *ReplaceError) Error() string {
	where := e.TmpPath
	if e.RecoveryPath != "" {
		where = e.RecoveryPath
	}
	return fmt.Sprintf("failed to rename over '%s' (%s), data is in '%s' and must be recovered manually", e.Path, e.Err, where)
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

// recoveryPath returns first unused "<path>.rewrite-failed-NN"
func recoveryPath(path string) string {
	for i := 0; ; i++ {
		res := fmt.Sprintf("%s.rewrite-failed-%02d", path, i)
		if _, err := os.Lstat(res); os.IsNotExist(err) {
			return res
		}
	}
}

// Replace is like Close but deletes the destination before renaming the
// temporary file to it. It never loses data: either the destination is
// untouched or the new data ends up in the destination or in a recovery
// file reported in *ReplaceError.
func (f *File) Replace(opts ReplaceOptions) error {
	if f.alreadyClosed() {
		if f.err != nil {
			return f.err
		}
		return os.ErrClosed
	}
	if err := f.closeTmp(); err != nil {
		_ = os.Remove(f.tmpPath)
		return err
	}

	if opts.Check != nil {
		st, err := os.Stat(f.tmpPath)
		if err == nil {
			err = opts.Check(f.tmpPath, st.Size())
		}
		if err != nil {
			// keep the temporary file for inspection
			f.err = err
			return err
		}
	}

	if err := os.Remove(f.dstPath); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(f.tmpPath)
		f.err = err
		return err
	}

	rename := opts.Rename
	if rename == nil {
		rename = os.Rename
	}
	err := rename(f.tmpPath, f.dstPath)
	if err == nil {
		f.syncDir()
		return nil
	}

	// the destination is gone, the temporary file is the only copy
	rerr := &ReplaceError{
		Path:    f.dstPath,
		TmpPath: f.tmpPath,
		Err:     err,
	}
	f.err = rerr
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	for attempt := 1; ; attempt++ {
		path := recoveryPath(f.dstPath)
		if rename(f.tmpPath, path) == nil {
			rerr.RecoveryPath = path
			f.syncDir()
			return rerr
		}
		if opts.Retries > 0 && attempt >= opts.Retries {
			return rerr
		}
		time.Sleep(delay)
		delay = min(delay*2, time.Minute)
	}
}
