// Package matchids is a container of 64-bit match ids.
//
// Ids are stored as a difference from the previous id in the chunk,
// which is small when ids are close to sorted. Rewrite sorts the ids.
package matchids

import (
	"encoding/binary"
	"iter"
	"slices"

	"github.com/kjk/losds/container"
	"github.com/pkg/errors"
)

const (
	// TypeID is stored in the header of match id containers
	TypeID = "MTID"

	itemFormat1 byte = 1
)

// Format describes match id containers
var Format = &container.Format[int64]{
	TypeID:    TypeID,
	Codec:     codec{},
	Normalize: Sorted,
}

// New returns a container of match ids at path
func New(path string) *container.Container[int64] {
	return container.New(path, Format)
}

// Sorted returns ids sorted in ascending order. Duplicates are kept.
func Sorted(ids iter.Seq[int64]) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		all := slices.Sorted(ids)
		for _, id := range all {
			if !yield(id) {
				return
			}
		}
	}
}

type codec struct{}

func (codec) Version() byte {
	return itemFormat1
}

func (codec) NewEncoder() container.Encoder[int64] {
	return &encoder{}
}

func (codec) NewDecoder() container.Decoder[int64] {
	return &decoder{}
}

type encoder struct {
	prev int64
}

func (e *encoder) Encode(dst []byte, id int64) ([]byte, byte, error) {
	dst = binary.AppendVarint(dst, id-e.prev)
	e.prev = id
	return dst, itemFormat1, nil
}

type decoder struct {
	prev int64
}

func (d *decoder) Decode(data []byte, itemFormat byte) (int64, error) {
	if itemFormat != itemFormat1 {
		return 0, errors.Wrapf(container.ErrUnsupportedItemFormat, "match id item format %d", itemFormat)
	}
	delta, n := binary.Varint(data)
	if n <= 0 || n != len(data) {
		return 0, errors.Wrapf(container.ErrIntegrity, "bad match id of %d bytes", len(data))
	}
	d.prev += delta
	return d.prev, nil
}
