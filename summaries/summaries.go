// Package summaries is a container of short match summaries.
//
// Every field is stored as a difference from the same field of the previous
// summary in the chunk. Rewrite sorts summaries by match id and removes
// duplicates.
package summaries

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"iter"
	"slices"

	"github.com/kjk/losds/container"
	"github.com/pkg/errors"
)

const (
	// TypeID is stored in the header of summary containers
	TypeID = "BMIC"

	itemFormat1 byte = 1
)

// Summary is what we know about a match without fetching its details
type Summary struct {
	MatchID int64 `json:"matchId"`
	QueueID int32 `json:"queueId"`
	// GameVersion is major<<8 | minor, see PackVersion
	GameVersion uint16 `json:"gameVersion"`
	// CreatedAt is unix time in milliseconds
	CreatedAt int64 `json:"createdAt"`
}

// PackVersion packs game version major.minor into 16 bits
func PackVersion(major, minor uint8) uint16 {
	return uint16(major)<<8 | uint16(minor)
}

func (s Summary) Major() uint8 {
	return uint8(s.GameVersion >> 8)
}

func (s Summary) Minor() uint8 {
	return uint8(s.GameVersion)
}

func (s Summary) String() string {
	return fmt.Sprintf("match %d queue %d version %d.%d created %d", s.MatchID, s.QueueID, s.Major(), s.Minor(), s.CreatedAt)
}

// Format describes summary containers
var Format = &container.Format[Summary]{
	TypeID:    TypeID,
	Codec:     codec{},
	Normalize: SortedUnique,
}

// New returns a container of summaries at path
func New(path string) *container.Container[Summary] {
	return container.New(path, Format)
}

// SortedUnique sorts summaries by match id. Of summaries with the same
// match id only the first one is kept.
func SortedUnique(items iter.Seq[Summary]) iter.Seq[Summary] {
	return func(yield func(Summary) bool) {
		all := slices.Collect(items)
		slices.SortStableFunc(all, func(a, b Summary) int {
			return cmp.Compare(a.MatchID, b.MatchID)
		})
		for i, s := range all {
			if i > 0 && all[i-1].MatchID == s.MatchID {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

type codec struct{}

func (codec) Version() byte {
	return itemFormat1
}

func (codec) NewEncoder() container.Encoder[Summary] {
	return &encoder{}
}

func (codec) NewDecoder() container.Decoder[Summary] {
	return &decoder{}
}

type encoder struct {
	prev Summary
}

func (e *encoder) Encode(dst []byte, s Summary) ([]byte, byte, error) {
	p := &e.prev
	dst = binary.AppendVarint(dst, s.MatchID-p.MatchID)
	dst = binary.AppendVarint(dst, int64(s.QueueID)-int64(p.QueueID))
	dst = binary.AppendVarint(dst, int64(s.GameVersion)-int64(p.GameVersion))
	dst = binary.AppendVarint(dst, s.CreatedAt-p.CreatedAt)
	e.prev = s
	return dst, itemFormat1, nil
}

type decoder struct {
	prev Summary
}

func (d *decoder) Decode(data []byte, itemFormat byte) (Summary, error) {
	if itemFormat != itemFormat1 {
		return Summary{}, errors.Wrapf(container.ErrUnsupportedItemFormat, "summary item format %d", itemFormat)
	}
	var deltas [4]int64
	for i := range deltas {
		v, n := binary.Varint(data)
		if n <= 0 {
			return Summary{}, errors.Wrapf(container.ErrIntegrity, "bad summary field %d", i)
		}
		deltas[i] = v
		data = data[n:]
	}
	if len(data) != 0 {
		return Summary{}, errors.Wrapf(container.ErrIntegrity, "%d extra bytes after summary", len(data))
	}
	p := &d.prev
	p.MatchID += deltas[0]
	p.QueueID = int32(int64(p.QueueID) + deltas[1])
	p.GameVersion = uint16(int64(p.GameVersion) + deltas[2])
	p.CreatedAt += deltas[3]
	return *p, nil
}
