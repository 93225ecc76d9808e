package container

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	magic = "LOSDS-"

	fileVersion1 byte = 1

	// MaxFormatDataLen is the maximum size of format-specific data
	MaxFormatDataLen = 254

	// oldest item format of a container without items
	noItemFormat byte = 0xff

	// layout of version 1 header:
	// magic[6] typeID[4] fileVersion[1]
	// oldestItemFormat[1] compressedChunks[4] compressedItems[4] uncompressedItems[4]
	// formatDataLen[1] formatData[formatDataLen] reserved[3] validLength[8]
	statsOffset     = 11
	statsSize       = 13
	formatLenOffset = statsOffset + statsSize
	fixedHeaderSize = formatLenOffset + 1 + 3 + 8
)

type header struct {
	typeID            string
	fileVersion       byte
	oldestItemFormat  byte
	compressedChunks  uint32
	compressedItems   uint32
	uncompressedItems uint32
	formatData        []byte
	validLength       int64
}

func newHeader(typeID string, formatData []byte) *header {
	h := &header{
		typeID:           typeID,
		fileVersion:      fileVersion1,
		oldestItemFormat: noItemFormat,
		formatData:       append([]byte(nil), formatData...),
	}
	h.validLength = h.size()
	return h
}

// size is the size of the header, which is also where chunks start
func (h *header) size() int64 {
	return fixedHeaderSize + int64(len(h.formatData))
}

func (h *header) validLengthOffset() int64 {
	return h.size() - 8
}

func (h *header) noteItemFormat(v byte) {
	if v < h.oldestItemFormat {
		h.oldestItemFormat = v
	}
}

func (h *header) appendStats(d []byte) []byte {
	d = append(d, h.oldestItemFormat)
	d = binary.LittleEndian.AppendUint32(d, h.compressedChunks)
	d = binary.LittleEndian.AppendUint32(d, h.compressedItems)
	d = binary.LittleEndian.AppendUint32(d, h.uncompressedItems)
	return d
}

func (h *header) marshal() []byte {
	d := make([]byte, 0, h.size())
	d = append(d, magic...)
	d = append(d, h.typeID...)
	d = append(d, h.fileVersion)
	d = h.appendStats(d)
	d = append(d, byte(len(h.formatData)))
	d = append(d, h.formatData...)
	d = append(d, 0, 0, 0)
	d = binary.LittleEndian.AppendUint64(d, uint64(h.validLength))
	return d
}

// writeCommit patches stats and valid length of an existing header
func (h *header) writeCommit(w io.WriterAt) error {
	var buf [statsSize]byte
	if _, err := w.WriteAt(h.appendStats(buf[:0]), statsOffset); err != nil {
		return err
	}
	var vl [8]byte
	binary.LittleEndian.PutUint64(vl[:], uint64(h.validLength))
	_, err := w.WriteAt(vl[:], h.validLengthOffset())
	return err
}

// readMagic reads magic and type id. Returns ErrNotContainer if the
// magic is missing.
func readMagic(r io.Reader) (string, error) {
	var d [10]byte
	_, err := io.ReadFull(r, d[:])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return "", ErrNotContainer
	}
	if err != nil {
		return "", err
	}
	if !bytes.Equal(d[:6], []byte(magic)) {
		return "", ErrNotContainer
	}
	return string(d[6:]), nil
}

// readHeader reads the header of a container of type typeID. The type is
// checked before anything else so that files of other types always fail
// with ErrFormatMismatch.
func readHeader(r io.Reader, typeID string) (*header, error) {
	fileTypeID, err := readMagic(r)
	if err != nil {
		return nil, err
	}
	if fileTypeID != typeID {
		return nil, errors.Wrapf(ErrFormatMismatch, "type id is '%s', expected '%s'", fileTypeID, typeID)
	}
	h := &header{typeID: typeID}
	var d [statsSize + 2]byte
	if _, err = io.ReadFull(r, d[:1]); err != nil {
		return nil, errors.Wrap(err, "reading file version")
	}
	h.fileVersion = d[0]
	if h.fileVersion != fileVersion1 {
		return nil, errors.Wrapf(ErrUnsupported, "file version %d", h.fileVersion)
	}
	if _, err = io.ReadFull(r, d[:statsSize+1]); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	h.oldestItemFormat = d[0]
	h.compressedChunks = binary.LittleEndian.Uint32(d[1:])
	h.compressedItems = binary.LittleEndian.Uint32(d[5:])
	h.uncompressedItems = binary.LittleEndian.Uint32(d[9:])
	n := int(d[13])
	if n > MaxFormatDataLen {
		return nil, errors.Wrapf(ErrIntegrity, "format data length %d", n)
	}
	rest := make([]byte, n+3+8)
	if _, err = io.ReadFull(r, rest); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	h.formatData = rest[:n:n]
	h.validLength = int64(binary.LittleEndian.Uint64(rest[n+3:]))
	if h.validLength < h.size() {
		return nil, errors.Wrapf(ErrIntegrity, "valid length %d is inside the header", h.validLength)
	}
	return h, nil
}

// Stats describes a container, computed from its header only
type Stats struct {
	TypeID      string
	FileVersion byte
	// OldestItemFormat is the lowest item format of any chunk, 0xff if no chunks
	OldestItemFormat  byte
	CompressedChunks  int64
	CompressedItems   int64
	UncompressedItems int64
	FormatData        []byte
	// ValidLength is the size of committed data
	ValidLength int64
	// FileSize is the physical size, can exceed ValidLength after failed writes
	FileSize int64
}

func (h *header) stats(fileSize int64) *Stats {
	return &Stats{
		TypeID:            h.typeID,
		FileVersion:       h.fileVersion,
		OldestItemFormat:  h.oldestItemFormat,
		CompressedChunks:  int64(h.compressedChunks),
		CompressedItems:   int64(h.compressedItems),
		UncompressedItems: int64(h.uncompressedItems),
		FormatData:        h.formatData,
		ValidLength:       h.validLength,
		FileSize:          fileSize,
	}
}

func (s *Stats) TotalItems() int64 {
	return s.CompressedItems + s.UncompressedItems
}

// Fragmentation is the ratio of compressed chunks and raw items to all items.
// A freshly compacted container is close to 0, a container of only raw
// items is 1.
func (s *Stats) Fragmentation() float64 {
	total := s.TotalItems()
	if total == 0 {
		return 0
	}
	return float64(s.CompressedChunks+s.UncompressedItems) / float64(total)
}

// RewriteNeeded returns true if fragmentation is above threshold
func (s *Stats) RewriteNeeded(threshold float64) bool {
	return s.TotalItems() > 0 && s.Fragmentation() > threshold
}
