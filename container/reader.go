package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash"
	"io"
	"io/fs"
	"iter"

	"github.com/klauspost/crc32"
	"github.com/pkg/errors"
)

// chunkReader reads chunks between the header and valid length
type chunkReader[T any] struct {
	f          io.ReaderAt
	hdr        *header
	codec      Codec[T]
	shortLimit int64
	path       string

	br   *bufio.Reader
	item []byte
}

// readAll calls yield for every item. Returns early, without an error,
// if yield returns false.
func (r *chunkReader[T]) readAll(yield func(T) bool) error {
	off := r.hdr.size()
	for off < r.hdr.validLength {
		next, ok, err := r.readChunk(off, yield)
		if err != nil {
			return errors.Wrapf(err, "%s: chunk at offset %d", r.path, off)
		}
		if !ok {
			return nil
		}
		off = next
	}
	return nil
}

func (r *chunkReader[T]) readAt(n int, off int64) ([]byte, error) {
	if off+int64(n) > r.hdr.validLength {
		return nil, errors.Wrap(ErrIntegrity, "chunk extends past valid length")
	}
	d := make([]byte, n)
	if _, err := r.f.ReadAt(d, off); err != nil {
		return nil, err
	}
	return d, nil
}

// readChunk reads chunk at off and returns offset of the next chunk
func (r *chunkReader[T]) readChunk(off int64, yield func(T) bool) (int64, bool, error) {
	d, err := r.readAt(2, off)
	if err != nil {
		return 0, false, err
	}
	scheme, version := d[0], d[1]
	switch scheme {
	case schemeRaw:
		return r.readRawChunk(off+2, version, yield)
	case schemeDeflate, schemeLZ4:
		return r.readCompressedChunk(off+2, scheme, version, yield)
	}
	return 0, false, errors.Wrapf(ErrUnsupportedScheme, "scheme %d", scheme)
}

func (r *chunkReader[T]) readRawChunk(off int64, version byte, yield func(T) bool) (int64, bool, error) {
	n := min(int64(binary.MaxVarintLen64), r.hdr.validLength-off)
	d, err := r.readAt(int(n), off)
	if err != nil {
		return 0, false, err
	}
	length, nLen := binary.Uvarint(d)
	if nLen <= 0 {
		return 0, false, errors.Wrap(ErrIntegrity, "bad raw item length")
	}
	off += int64(nLen)
	if length > uint64(r.hdr.validLength-off) {
		return 0, false, errors.Wrap(ErrIntegrity, "raw item extends past valid length")
	}
	data, err := r.readAt(int(length), off)
	if err != nil {
		return 0, false, err
	}
	item, err := r.codec.NewDecoder().Decode(data, version)
	if err != nil {
		return 0, false, err
	}
	return off + int64(length), yield(item), nil
}

func (r *chunkReader[T]) readCompressedChunk(off int64, scheme byte, version byte, yield func(T) bool) (int64, bool, error) {
	d, err := r.readAt(4, off)
	if err != nil {
		return 0, false, err
	}
	length := int64(binary.LittleEndian.Uint32(d))
	dataStart := off + 4
	end := dataStart + length
	if scheme == schemeDeflate {
		end += 4
	}
	if end > r.hdr.validLength {
		return 0, false, errors.Wrap(ErrIntegrity, "chunk extends past valid length")
	}

	var src io.Reader = io.NewSectionReader(r.f, dataStart, length)
	if length <= r.shortLimit {
		buf, err := r.readAt(int(length), dataStart)
		if err != nil {
			return 0, false, err
		}
		src = bytes.NewReader(buf)
	}
	zr, err := newDecompressor(scheme, src)
	if err != nil {
		return 0, false, err
	}
	defer zr.Close()

	var crc hash.Hash32
	var stream io.Reader = zr
	if scheme == schemeDeflate {
		crc = crc32.NewIEEE()
		stream = io.TeeReader(zr, crc)
	}
	if r.br == nil {
		r.br = bufio.NewReaderSize(stream, 64*1024)
	} else {
		r.br.Reset(stream)
	}

	dec := r.codec.NewDecoder()
	for {
		n, err := binary.ReadUvarint(r.br)
		if err == io.EOF {
			// end of compressed stream is the end of the chunk
			break
		}
		if err != nil {
			return 0, false, errors.Wrap(err, "reading item length")
		}
		if n > uint64(maxItemLen) {
			return 0, false, errors.Wrapf(ErrIntegrity, "item length %d", n)
		}
		if uint64(cap(r.item)) < n {
			r.item = make([]byte, n)
		}
		r.item = r.item[:n]
		if _, err = io.ReadFull(r.br, r.item); err != nil {
			return 0, false, errors.Wrap(err, "reading item")
		}
		item, err := dec.Decode(r.item, version)
		if err != nil {
			return 0, false, err
		}
		if !yield(item) {
			return end, false, nil
		}
	}

	if crc != nil {
		d, err := r.readAt(4, dataStart+length)
		if err != nil {
			return 0, false, err
		}
		exp := binary.LittleEndian.Uint32(d)
		if got := crc.Sum32(); got != exp {
			return 0, false, errors.Wrapf(ErrIntegrity, "crc32 mismatch, expected %08x, got %08x", exp, got)
		}
	}
	return end, true, nil
}

// items in a chunk can't be larger than the max chunk length
const maxItemLen = 1<<32 - 1

// ReadItems returns an iterator over all items, in the order they were
// appended. Chunks are read and decompressed lazily, so stopping early
// doesn't read the rest of the file. A file that doesn't exist has no items.
// Call the returned error function after iteration to check for errors.
func (c *Container[T]) ReadItems() (iter.Seq[T], func() error) {
	var iterErr error

	seq := func(yield func(T) bool) {
		iterErr = nil
		f, h, err := c.openRead()
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			iterErr = err
			return
		}
		defer f.Close()

		r := &chunkReader[T]{
			f:          f,
			hdr:        h,
			codec:      c.Format.Codec,
			shortLimit: c.shortChunkLength(),
			path:       c.Path,
		}
		iterErr = r.readAll(yield)
	}

	return seq, func() error { return iterErr }
}

// All returns all items
func (c *Container[T]) All() ([]T, error) {
	items, errFn := c.ReadItems()
	var res []T
	for item := range items {
		res = append(res, item)
	}
	return res, errFn()
}
