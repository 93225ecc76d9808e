package container

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// newCompressor returns a writer that compresses into w. Close() writes
// the end of stream but doesn't close w.
// best is set when writing compacted files, where write speed matters less.
func newCompressor(f ChunkFormat, w io.Writer, best bool) (io.WriteCloser, error) {
	switch f {
	case Deflate:
		level := flate.DefaultCompression
		if best {
			level = flate.BestCompression
		}
		return flate.NewWriter(w, level)
	case LZ4, LZ4HC:
		level := lz4.Fast
		if f == LZ4HC {
			level = lz4.Level9
		}
		zw := lz4.NewWriter(w)
		// LZ4 chunks have no integrity check, unlike Deflate chunks
		err := zw.Apply(lz4.CompressionLevelOption(level), lz4.ChecksumOption(false))
		if err != nil {
			return nil, err
		}
		return zw, nil
	}
	return nil, errors.Errorf("no compressor for chunk format %s", f)
}

// newDecompressor returns a reader that returns io.EOF at the end of
// compressed stream read from r
func newDecompressor(scheme byte, r io.Reader) (io.ReadCloser, error) {
	switch scheme {
	case schemeDeflate:
		return flate.NewReader(r), nil
	case schemeLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedScheme, "scheme %d", scheme)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	return n, err
}
