package jsondoc

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

var (
	_ json.Marshaler   = &Value{}
	_ json.Unmarshaler = &Value{}
)

// ParseJSON parses JSON text, preserving the order of map members
func ParseJSON(d []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	v, err := parseValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err = dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after json value")
	}
	return v, nil
}

func parseNumber(n json.Number) (*Value, error) {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NewInt(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return NewUint(u), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "bad number '%s'", s)
	}
	return NewFloat(f), nil
}

func parseValue(dec *json.Decoder, depth int) (*Value, error) {
	if depth > maxDepth {
		return nil, errors.Errorf("json nested deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		return parseNumber(t)
	case string:
		return NewString(t), nil
	case json.Delim:
		switch t {
		case '[':
			list := NewList()
			for dec.More() {
				el, err := parseValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				list.List = append(list.List, el)
			}
			_, err = dec.Token()
			return list, err
		case '{':
			m := NewMap()
			for dec.More() {
				tok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := tok.(string)
				if !ok {
					return nil, errors.Errorf("expected map key, got %v", tok)
				}
				el, err := parseValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				m.Members = append(m.Members, Member{Key: key, Value: el})
			}
			_, err = dec.Token()
			return m, err
		}
	}
	return nil, errors.Errorf("unexpected json token %v", tok)
}

func appendString(dst []byte, s string) []byte {
	d, _ := json.Marshal(s)
	return append(dst, d...)
}

// AppendJSON appends compact JSON text of v to dst.
// Floats that are whole numbers are written with ".0" so they parse
// back as floats.
func AppendJSON(dst []byte, v *Value) ([]byte, error) {
	if v == nil {
		return append(dst, "null"...), nil
	}
	var err error
	switch v.Kind {
	case KindNull:
		return append(dst, "null"...), nil
	case KindBool:
		return strconv.AppendBool(dst, v.Bool), nil
	case KindInt:
		return strconv.AppendInt(dst, v.Int, 10), nil
	case KindUint:
		return strconv.AppendUint(dst, v.Uint, 10), nil
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return nil, errors.Errorf("float %v can't be represented in json", v.Float)
		}
		start := len(dst)
		dst = strconv.AppendFloat(dst, v.Float, 'g', -1, 64)
		if !bytes.ContainsAny(dst[start:], ".eE") {
			dst = append(dst, ".0"...)
		}
		return dst, nil
	case KindString:
		return appendString(dst, v.Str), nil
	case KindList:
		dst = append(dst, '[')
		for i, el := range v.List {
			if i > 0 {
				dst = append(dst, ',')
			}
			if dst, err = AppendJSON(dst, el); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case KindMap:
		dst = append(dst, '{')
		for i, m := range v.Members {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendString(dst, m.Key)
			dst = append(dst, ':')
			if dst, err = AppendJSON(dst, m.Value); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	}
	return nil, errors.Errorf("invalid json value kind %s", v.Kind)
}

func (v *Value) MarshalJSON() ([]byte, error) {
	return AppendJSON(nil, v)
}

func (v *Value) UnmarshalJSON(d []byte) error {
	parsed, err := ParseJSON(d)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

func (v *Value) String() string {
	d, err := AppendJSON(nil, v)
	if err != nil {
		return err.Error()
	}
	return string(d)
}
