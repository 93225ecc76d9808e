// Package jsondoc is a container of JSON documents.
//
// Documents are stored in a compact binary form. Every value starts with a
// tag byte that encodes its type and, for short strings, lists and maps,
// also the length. Map keys are remembered per chunk: a key seen before
// in the same chunk is written as its index instead of its text.
package jsondoc

import (
	"encoding/binary"
	"math"

	"github.com/kjk/losds/container"
	"github.com/pkg/errors"
)

const (
	// TypeID is stored in the header of JSON containers
	TypeID = "JSON"

	itemFormat1 byte = 1

	// max nesting of lists and maps we decode
	maxDepth = 512
)

// tags
const (
	tagNull  byte = 0x00
	tagFalse byte = 0x01
	tagTrue  byte = 0x02
	tagInt   byte = 0x03
	tagUint  byte = 0x04
	tagFloat byte = 0x05

	tagString byte = 0x10
	tagList   byte = 0x40
	tagMap    byte = 0x60

	// lists and maps have 32 tags, strings have 48. The last one means
	// that an explicit length follows.
	tagLenMask    byte = 0x1f
	maxInlineLen       = 0x1e
	maxInlineStr       = 0x2e
	tagStringLong byte = 0x3f
)

// Format describes JSON containers
var Format = &container.Format[*Value]{
	TypeID: TypeID,
	Codec:  codec{},
}

// New returns a container of JSON documents at path
func New(path string) *container.Container[*Value] {
	return container.New(path, Format)
}

type codec struct{}

func (codec) Version() byte {
	return itemFormat1
}

func (codec) NewEncoder() container.Encoder[*Value] {
	return &encoder{
		keys: map[string]uint64{},
	}
}

func (codec) NewDecoder() container.Decoder[*Value] {
	return &decoder{}
}

type encoder struct {
	// id of every key written in this chunk
	keys map[string]uint64
}

func (e *encoder) Encode(dst []byte, v *Value) ([]byte, byte, error) {
	dst, err := e.encode(dst, v, 0)
	return dst, itemFormat1, err
}

func appendLenTag(dst []byte, tag byte, n int, maxInline int, long byte) []byte {
	if n <= maxInline {
		return append(dst, tag+byte(n))
	}
	dst = append(dst, long)
	return binary.AppendUvarint(dst, uint64(n))
}

func (e *encoder) encode(dst []byte, v *Value, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, errors.Errorf("json nested deeper than %d", maxDepth)
	}
	if v == nil {
		return append(dst, tagNull), nil
	}
	switch v.Kind {
	case KindNull:
		return append(dst, tagNull), nil
	case KindBool:
		if v.Bool {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil
	case KindInt:
		dst = append(dst, tagInt)
		return binary.AppendVarint(dst, v.Int), nil
	case KindUint:
		dst = append(dst, tagUint)
		return binary.AppendUvarint(dst, v.Uint), nil
	case KindFloat:
		dst = append(dst, tagFloat)
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.Float)), nil
	case KindString:
		dst = appendLenTag(dst, tagString, len(v.Str), maxInlineStr, tagStringLong)
		return append(dst, v.Str...), nil
	case KindList:
		dst = appendLenTag(dst, tagList, len(v.List), maxInlineLen, tagList|tagLenMask)
		var err error
		for _, el := range v.List {
			if dst, err = e.encode(dst, el, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case KindMap:
		dst = appendLenTag(dst, tagMap, len(v.Members), maxInlineLen, tagMap|tagLenMask)
		var err error
		for _, m := range v.Members {
			dst = e.appendKey(dst, m.Key)
			if dst, err = e.encode(dst, m.Value, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}
	return nil, errors.Errorf("invalid json value kind %s", v.Kind)
}

// appendKey writes 0 followed by id of a known key, or length+1 followed
// by the key, which then gets the next id
func (e *encoder) appendKey(dst []byte, key string) []byte {
	if id, ok := e.keys[key]; ok {
		dst = append(dst, 0)
		return binary.AppendUvarint(dst, id)
	}
	e.keys[key] = uint64(len(e.keys))
	dst = binary.AppendUvarint(dst, uint64(len(key))+1)
	return append(dst, key...)
}

type decoder struct {
	// keys in the order their text was read in this chunk
	keys []string

	d   []byte
	pos int
}

func (d *decoder) Decode(data []byte, itemFormat byte) (*Value, error) {
	if itemFormat != itemFormat1 {
		return nil, errors.Wrapf(container.ErrUnsupportedItemFormat, "json item format %d", itemFormat)
	}
	d.d = data
	d.pos = 0
	defer func() { d.d = nil }()
	v, err := d.decode(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(data) {
		return nil, errors.Wrapf(container.ErrIntegrity, "%d extra bytes after json", len(data)-d.pos)
	}
	return v, nil
}

func errCorrupted(what string, pos int) error {
	return errors.Wrapf(container.ErrIntegrity, "bad json %s at %d", what, pos)
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.d) {
		return 0, errCorrupted("value", d.pos)
	}
	b := d.d[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.d[d.pos:])
	if n <= 0 {
		return 0, errCorrupted("uvarint", d.pos)
	}
	d.pos += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.d[d.pos:])
	if n <= 0 {
		return 0, errCorrupted("varint", d.pos)
	}
	d.pos += n
	return v, nil
}

// bytes returns next n bytes. They are only valid until Decode returns.
func (d *decoder) bytes(n uint64) ([]byte, error) {
	if n > uint64(len(d.d)-d.pos) {
		return nil, errCorrupted("length", d.pos)
	}
	res := d.d[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return res, nil
}

// length decodes inline or explicit length from a tag. Every element takes
// at least one byte so a count larger than the rest of data is corrupted.
func (d *decoder) length(tag byte) (int, error) {
	n := uint64(tag & tagLenMask)
	if tag&tagLenMask == tagLenMask {
		var err error
		if n, err = d.uvarint(); err != nil {
			return 0, err
		}
	}
	if n > uint64(len(d.d)-d.pos) {
		return 0, errCorrupted("length", d.pos)
	}
	return int(n), nil
}

func (d *decoder) decode(depth int) (*Value, error) {
	if depth > maxDepth {
		return nil, errors.Wrapf(container.ErrIntegrity, "json nested deeper than %d", maxDepth)
	}
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return NewNull(), nil
	case tagFalse:
		return NewBool(false), nil
	case tagTrue:
		return NewBool(true), nil
	case tagInt:
		n, err := d.varint()
		if err != nil {
			return nil, err
		}
		return &Value{Kind: KindInt, Int: n}, nil
	case tagUint:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return NewUint(n), nil
	case tagFloat:
		b, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return NewFloat(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	}

	switch {
	case tag >= tagString && tag < tagList:
		n := uint64(tag - tagString)
		if tag == tagStringLong {
			if n, err = d.uvarint(); err != nil {
				return nil, err
			}
		}
		b, err := d.bytes(n)
		if err != nil {
			return nil, err
		}
		return NewString(string(b)), nil
	case tag >= tagList && tag < tagMap:
		n, err := d.length(tag)
		if err != nil {
			return nil, err
		}
		list := make([]*Value, n)
		for i := range list {
			if list[i], err = d.decode(depth + 1); err != nil {
				return nil, err
			}
		}
		return NewList(list...), nil
	case tag >= tagMap && tag <= tagMap|tagLenMask:
		n, err := d.length(tag)
		if err != nil {
			return nil, err
		}
		members := make([]Member, n)
		for i := range members {
			if members[i].Key, err = d.key(); err != nil {
				return nil, err
			}
			if members[i].Value, err = d.decode(depth + 1); err != nil {
				return nil, err
			}
		}
		return NewMap(members...), nil
	}
	return nil, errors.Wrapf(container.ErrIntegrity, "bad json tag 0x%02x at %d", tag, d.pos-1)
}

func (d *decoder) key() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if n == 0 {
		id, err := d.uvarint()
		if err != nil {
			return "", err
		}
		if id >= uint64(len(d.keys)) {
			return "", errors.Wrapf(container.ErrIntegrity, "json key id %d, only %d keys known", id, len(d.keys))
		}
		return d.keys[id], nil
	}
	b, err := d.bytes(n - 1)
	if err != nil {
		return "", err
	}
	key := string(b)
	d.keys = append(d.keys, key)
	return key, nil
}
