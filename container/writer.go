package container

import (
	"bufio"
	"encoding/binary"
	"hash"
	"io"
	"iter"
	"math"
	"slices"

	"github.com/klauspost/crc32"
	"github.com/kjk/losds/log"
	"github.com/pkg/errors"
)

// writerFile is implemented by *os.File and *atomicfile.File
type writerFile interface {
	io.WriterAt
	Sync() error
}

// chunkWriter writes items as chunks at the end of committed data
// and commits each chunk after it's complete
type chunkWriter[T any] struct {
	f      writerFile
	hdr    *header
	codec  Codec[T]
	format ChunkFormat
	best   bool
	limit  int64
	sync   bool

	// state of the chunk being written, enc is nil if there's none
	enc     Encoder[T]
	start   int64
	bw      *bufio.Writer
	cw      countingWriter
	zw      io.WriteCloser
	crc     hash.Hash32
	version byte
	nItems  uint32

	item   []byte
	lenBuf [binary.MaxVarintLen64]byte
}

func newChunkWriter[T any](f writerFile, hdr *header, codec Codec[T], format ChunkFormat) *chunkWriter[T] {
	return &chunkWriter[T]{
		f:      f,
		hdr:    hdr,
		codec:  codec,
		format: format,
		limit:  DefaultChunkLengthLimit,
	}
}

func (w *chunkWriter[T]) writeAll(items iter.Seq[T]) error {
	for item := range items {
		if err := w.add(item); err != nil {
			return err
		}
	}
	return w.finish()
}

func (w *chunkWriter[T]) add(item T) error {
	if w.format == Raw {
		return w.writeRaw(item)
	}
	if w.enc == nil {
		if err := w.begin(); err != nil {
			return err
		}
	}
	d, ver, err := w.enc.Encode(w.item[:0], item)
	if err != nil {
		return err
	}
	w.item = d
	if w.nItems == 0 {
		w.version = ver
	} else if ver != w.version {
		return errors.Wrapf(ErrInconsistentItemFormat, "item format %d in a chunk of item format %d", ver, w.version)
	}
	n := binary.PutUvarint(w.lenBuf[:], uint64(len(d)))
	if err = w.writeStream(w.lenBuf[:n]); err != nil {
		return err
	}
	if err = w.writeStream(d); err != nil {
		return err
	}
	w.nItems++
	// cw only sees what the compressor has flushed so far so this is
	// approximate. The limit is far enough from the max that it's ok.
	if w.cw.n >= w.limit || w.nItems == math.MaxUint32 {
		return w.finish()
	}
	return nil
}

func (w *chunkWriter[T]) writeStream(d []byte) error {
	if w.crc != nil {
		w.crc.Write(d)
	}
	_, err := w.zw.Write(d)
	return err
}

// begin starts a compressed chunk at the current valid length
func (w *chunkWriter[T]) begin() error {
	w.start = w.hdr.validLength
	out := io.NewOffsetWriter(w.f, w.start)
	if w.bw == nil {
		w.bw = bufio.NewWriterSize(out, 64*1024)
	} else {
		w.bw.Reset(out)
	}
	// scheme, then version and length which are patched in finish()
	rec := [6]byte{w.format.scheme()}
	if _, err := w.bw.Write(rec[:]); err != nil {
		return err
	}
	w.cw = countingWriter{w: w.bw}
	zw, err := newCompressor(w.format, &w.cw, w.best)
	if err != nil {
		return err
	}
	w.zw = zw
	w.crc = nil
	if w.format == Deflate {
		w.crc = crc32.NewIEEE()
	}
	w.enc = w.codec.NewEncoder()
	w.nItems = 0
	return nil
}

// finish completes the current chunk (if any) and commits it
func (w *chunkWriter[T]) finish() error {
	if w.enc == nil {
		return nil
	}
	w.enc = nil
	if err := w.zw.Close(); err != nil {
		return err
	}
	length := w.cw.n
	if length > math.MaxUint32 {
		return errors.Errorf("chunk length %d doesn't fit in 32 bits", length)
	}
	end := w.start + 6 + length
	if w.crc != nil {
		var d [4]byte
		binary.LittleEndian.PutUint32(d[:], w.crc.Sum32())
		if _, err := w.bw.Write(d[:]); err != nil {
			return err
		}
		end += 4
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	var patch [5]byte
	patch[0] = w.version
	binary.LittleEndian.PutUint32(patch[1:], uint32(length))
	if _, err := w.f.WriteAt(patch[:], w.start+1); err != nil {
		return err
	}

	w.hdr.compressedChunks++
	w.hdr.compressedItems += w.nItems
	w.hdr.noteItemFormat(w.version)
	return w.commit(end)
}

// writeRaw writes a chunk with a single, uncompressed item
func (w *chunkWriter[T]) writeRaw(item T) error {
	enc := w.codec.NewEncoder()
	d, ver, err := enc.Encode(w.item[:0], item)
	if err != nil {
		return err
	}
	w.item = d
	rec := make([]byte, 0, 2+binary.MaxVarintLen64+len(d))
	rec = append(rec, schemeRaw, ver)
	rec = binary.AppendUvarint(rec, uint64(len(d)))
	rec = append(rec, d...)
	if _, err = w.f.WriteAt(rec, w.hdr.validLength); err != nil {
		return err
	}
	w.hdr.uncompressedItems++
	w.hdr.noteItemFormat(ver)
	return w.commit(w.hdr.validLength + int64(len(rec)))
}

// commit makes data up to end visible by updating stats and valid length
func (w *chunkWriter[T]) commit(end int64) error {
	if w.sync {
		if err := w.f.Sync(); err != nil {
			return err
		}
	}
	w.hdr.validLength = end
	if err := w.hdr.writeCommit(w.f); err != nil {
		return err
	}
	if w.sync {
		return w.f.Sync()
	}
	return nil
}

// AppendItems appends items to the container, creating the file if needed.
// With Raw format each item is its own chunk, otherwise items are packed
// into as few chunks as ChunkLengthLimit allows.
// Items are visible to readers only after their chunk is committed.
// If an error is returned, chunks committed before the error remain.
func (c *Container[T]) AppendItems(items iter.Seq[T], format ChunkFormat) error {
	if !format.valid() {
		return errors.Errorf("invalid chunk format %d", format)
	}
	f, h, err := c.openWrite()
	if err != nil {
		return err
	}
	w := newChunkWriter(f, h, c.Format.Codec, format)
	w.limit = c.chunkLengthLimit()
	w.sync = c.SyncWrite
	err = w.writeAll(items)
	errClose := f.Close()
	if err != nil {
		return errors.Wrapf(err, "appending to %s", c.Path)
	}
	if errClose != nil {
		return errClose
	}
	st := h.stats(h.validLength)
	log.Verbosef("container: appended to %s, %d items, fragmentation: %.2f\n", c.Path, st.TotalItems(), st.Fragmentation())
	if c.AutoRewrite && st.RewriteNeeded(c.rewriteThreshold()) {
		return c.Rewrite(nil)
	}
	return nil
}

// Append is AppendItems for a list of items
func (c *Container[T]) Append(format ChunkFormat, items ...T) error {
	return c.AppendItems(slices.Values(items), format)
}
