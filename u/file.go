package u

import (
	"bufio"
	"io"
	"iter"
	"os"
)

// PathExists returns true if path exists
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// FileExists returns true if path exists and is a regular file
func FileExists(path string) bool {
	st, err := os.Lstat(path)
	return err == nil && st.Mode().IsRegular()
}

// FileSize gets file size, -1 if file doesn't exist
func FileSize(path string) int64 {
	st, err := os.Lstat(path)
	if err == nil {
		return st.Size()
	}
	return -1
}

// CloseNoError is like io.Closer Close() but ignores an error
// use as: defer CloseNoError(f)
func CloseNoError(f io.Closer) {
	_ = f.Close()
}

// IterLines returns an iterator over non-empty lines in r, without the
// trailing newline. Lines are only valid until the next iteration.
// Call the returned error function after iteration to check for errors.
func IterLines(r io.Reader) (iter.Seq[[]byte], func() error) {
	var iterErr error
	seq := func(yield func([]byte) bool) {
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := br.ReadSlice('\n')
			if err == bufio.ErrBufferFull {
				// long line, fall back to allocating
				line = append([]byte(nil), line...)
				var rest []byte
				rest, err = br.ReadBytes('\n')
				line = append(line, rest...)
			}
			if err != nil && err != io.EOF {
				iterErr = err
				return
			}
			line = trimNewline(line)
			if len(line) > 0 && !yield(line) {
				return
			}
			if err == io.EOF {
				return
			}
		}
	}
	return seq, func() error { return iterErr }
}

func trimNewline(d []byte) []byte {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		n--
	}
	if n > 0 && d[n-1] == '\r' {
		n--
	}
	return d[:n]
}
