package container

import (
	"fmt"
	"iter"
	"strings"
)

// Encoder encodes items of one chunk. A new Encoder is created for every
// chunk, so it can keep state (e.g. previous value for delta coding).
type Encoder[T any] interface {
	// Encode appends encoded item to dst and returns the result along with
	// item format version used to encode it
	Encode(dst []byte, item T) ([]byte, byte, error)
}

// Decoder decodes items of one chunk, in the order they were encoded.
// Decode must not retain data after it returns.
type Decoder[T any] interface {
	Decode(data []byte, itemFormat byte) (T, error)
}

// Codec creates per-chunk encoders and decoders for items of type T
type Codec[T any] interface {
	// Version is the item format version written by encoders. Containers
	// holding older versions are rewritten by Initialise.
	Version() byte
	NewEncoder() Encoder[T]
	NewDecoder() Decoder[T]
}

// Filter transforms a sequence of items during Rewrite
type Filter[T any] func(iter.Seq[T]) iter.Seq[T]

// Format describes a kind of container
type Format[T any] struct {
	// TypeID is 4 ASCII characters stored in the file header
	TypeID string
	Codec  Codec[T]
	// Normalize, if set, is applied on every rewrite (e.g. sorting)
	Normalize Filter[T]
}

// ChunkFormat selects how AppendItems packs items into chunks.
// Values match on-disk scheme bytes, except LZ4HC which is stored as LZ4.
type ChunkFormat byte

const (
	Deflate ChunkFormat = 1
	Raw     ChunkFormat = 2
	LZ4     ChunkFormat = 3
	// LZ4HC is LZ4 with high compression. Slower to write, same speed to read.
	LZ4HC ChunkFormat = 4
)

const (
	schemeDeflate byte = 1
	schemeRaw     byte = 2
	schemeLZ4     byte = 3
)

func (f ChunkFormat) scheme() byte {
	if f == LZ4HC {
		return schemeLZ4
	}
	return byte(f)
}

func (f ChunkFormat) String() string {
	switch f {
	case Deflate:
		return "deflate"
	case Raw:
		return "raw"
	case LZ4:
		return "lz4"
	case LZ4HC:
		return "lz4hc"
	}
	return fmt.Sprintf("ChunkFormat(%d)", byte(f))
}

func (f ChunkFormat) valid() bool {
	return f >= Deflate && f <= LZ4HC
}

// ParseChunkFormat parses names returned by ChunkFormat.String()
func ParseChunkFormat(s string) (ChunkFormat, error) {
	for _, f := range []ChunkFormat{Deflate, Raw, LZ4, LZ4HC} {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown chunk format '%s'", s)
}

func validateTypeID(typeID string) error {
	if len(typeID) != 4 {
		return fmt.Errorf("type id '%s' must be 4 characters", typeID)
	}
	for i := 0; i < len(typeID); i++ {
		if typeID[i] < 32 || typeID[i] > 126 {
			return fmt.Errorf("type id '%s' must be printable ASCII", typeID)
		}
	}
	return nil
}
