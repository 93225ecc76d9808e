package u

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/kjk/losds/atomicfile"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// implement io.ReadCloser over os.File wrapped with io.Reader.
// io.Closer goes to os.File, io.Reader goes to wrapping reader
type readerWrappedFile struct {
	f *os.File
	r io.Reader
}

func (rc *readerWrappedFile) Close() error {
	if c, ok := rc.r.(io.Closer); ok {
		_ = c.Close()
	}
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

func wrapInReadCloser(f *os.File, r io.Reader, err error) (io.ReadCloser, error) {
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readerWrappedFile{
		f: f,
		r: r,
	}, nil
}

// zstd.Decoder.Close() doesn't return an error so doesn't implement io.Closer
type zstdReadCloser struct {
	*zstd.Decoder
}

func (r zstdReadCloser) Close() error {
	r.Decoder.Close()
	return nil
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip,
// zstd or brotli, based on file extension (.gz, .zst, .br)
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch ext {
	case ".gz":
		r, err := gzip.NewReader(f)
		return wrapInReadCloser(f, r, err)
	case ".zst", ".zstd":
		r, err := zstd.NewReader(f)
		if err != nil {
			return wrapInReadCloser(f, nil, err)
		}
		return wrapInReadCloser(f, zstdReadCloser{r}, nil)
	case ".br":
		r := brotli.NewReader(f)
		return wrapInReadCloser(f, r, nil)
	}
	return f, nil
}

// CompressedFileWriter writes to a compressor, then a buffer, then
// a file that's written atomically
type CompressedFileWriter struct {
	af     *atomicfile.File
	bw     *bufio.Writer
	zw     io.WriteCloser
	closed bool
}

func (w *CompressedFileWriter) Write(p []byte) (int, error) {
	if w.zw != nil {
		return w.zw.Write(p)
	}
	return w.bw.Write(p)
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close flushes everything and moves the file in place.
// If writing failed, the destination is not created.
func (w *CompressedFileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errZ error
	if w.zw != nil {
		errZ = w.zw.Close()
	}
	errFlush := w.bw.Flush()
	if err := getErr(errZ, errFlush); err != nil {
		w.af.RemoveIfNotClosed()
		return err
	}
	return w.af.Close()
}

// RemoveIfNotClosed removes the temporary file if Close wasn't called.
// Use it with defer to not leave partial files behind.
func (w *CompressedFileWriter) RemoveIfNotClosed() {
	if w.closed {
		return
	}
	w.closed = true
	if w.zw != nil {
		_ = w.zw.Close()
	}
	w.af.RemoveIfNotClosed()
}

// CreateFileMaybeCompressed creates a file that is compressed with gzip,
// zstd or brotli, based on file extension (.gz, .zst, .br), using the
// best compression. The file only appears at path after a successful Close().
func CreateFileMaybeCompressed(path string) (*CompressedFileWriter, error) {
	af, err := atomicfile.New(path)
	if err != nil {
		return nil, err
	}
	w := &CompressedFileWriter{
		af: af,
		bw: bufio.NewWriterSize(af, 64*1024),
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		w.zw, err = gzip.NewWriterLevel(w.bw, gzip.BestCompression)
	case ".zst", ".zstd":
		// in my tests zstd.SpeedBestCompression is much slower and not much
		// better than SpeedBetterCompression
		w.zw, err = zstd.NewWriter(w.bw, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case ".br":
		w.zw = brotli.NewWriterLevel(w.bw, brotli.BestCompression)
	}
	if err != nil {
		af.RemoveIfNotClosed()
		return nil, err
	}
	return w, nil
}
