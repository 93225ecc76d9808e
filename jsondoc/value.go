package jsondoc

import "fmt"

// Kind is the type of a Value
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	// KindInt is a negative integer
	KindInt
	// KindUint is a non-negative integer
	KindUint
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Value is a JSON value. Unlike map[string]any it keeps the order of
// map members and distinguishes integers from floats.
// Only the field matching Kind is set.
type Value struct {
	Kind    Kind
	Bool    bool
	Int     int64
	Uint    uint64
	Float   float64
	Str     string
	List    []*Value
	Members []Member
}

// Member is a key / value pair of a map
type Member struct {
	Key   string
	Value *Value
}

func NewNull() *Value {
	return &Value{Kind: KindNull}
}

func NewBool(b bool) *Value {
	return &Value{Kind: KindBool, Bool: b}
}

// NewInt returns KindUint value for non-negative n
func NewInt(n int64) *Value {
	if n >= 0 {
		return NewUint(uint64(n))
	}
	return &Value{Kind: KindInt, Int: n}
}

func NewUint(n uint64) *Value {
	return &Value{Kind: KindUint, Uint: n}
}

func NewFloat(f float64) *Value {
	return &Value{Kind: KindFloat, Float: f}
}

func NewString(s string) *Value {
	return &Value{Kind: KindString, Str: s}
}

func NewList(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{Kind: KindList, List: items}
}

func NewMap(members ...Member) *Value {
	if members == nil {
		members = []Member{}
	}
	return &Value{Kind: KindMap, Members: members}
}

// Get returns value of a map member with a given key, nil if not found
// or v is not a map
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindMap {
		return nil
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// Set sets value of a map member, appending it if it doesn't exist
func (v *Value) Set(key string, val *Value) {
	for i, m := range v.Members {
		if m.Key == key {
			v.Members[i].Value = val
			return
		}
	}
	v.Members = append(v.Members, Member{Key: key, Value: val})
}

// Equal returns true if v and other have the same structure and values.
// nil is equal to null.
func (v *Value) Equal(other *Value) bool {
	if v == nil {
		v = NewNull()
	}
	if other == nil {
		other = NewNull()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindUint:
		return v.Uint == other.Uint
	case KindFloat:
		return v.Float == other.Float
	case KindString:
		return v.Str == other.Str
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i, el := range v.List {
			if !el.Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Members) != len(other.Members) {
			return false
		}
		for i, m := range v.Members {
			o := other.Members[i]
			if m.Key != o.Key || !m.Value.Equal(o.Value) {
				return false
			}
		}
		return true
	}
	return false
}
