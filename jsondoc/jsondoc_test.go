package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjk/losds/container"
	"github.com/stretchr/testify/require"
)

var chunkFormats = []container.ChunkFormat{container.Raw, container.Deflate, container.LZ4, container.LZ4HC}

func mustParse(t *testing.T, s string) *Value {
	v, err := ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func encodeAll(t *testing.T, values ...*Value) [][]byte {
	enc := codec{}.NewEncoder()
	var res [][]byte
	for _, v := range values {
		d, ver, err := enc.Encode(nil, v)
		require.NoError(t, err)
		require.Equal(t, itemFormat1, ver)
		res = append(res, d)
	}
	return res
}

func decodeAll(t *testing.T, encoded [][]byte) []*Value {
	dec := codec{}.NewDecoder()
	var res []*Value
	for _, d := range encoded {
		v, err := dec.Decode(d, itemFormat1)
		require.NoError(t, err)
		res = append(res, v)
	}
	return res
}

func TestKeyDictionary(t *testing.T) {
	v := mustParse(t, `{"a":1,"b":{"a":2}}`)
	encoded := encodeAll(t, v)
	exp := []byte{
		tagMap + 2,
		2, 'a', tagUint, 1, // "a" gets id 0
		2, 'b', tagMap + 1, // "b" gets id 1
		0, 0, tagUint, 2, // "a" is id 0
	}
	require.Equal(t, exp, encoded[0])

	got := decodeAll(t, encoded)
	require.True(t, v.Equal(got[0]))
	require.Equal(t, `{"a":1,"b":{"a":2}}`, got[0].String())
}

func TestKeyDictionaryAcrossItems(t *testing.T) {
	// keys are remembered for the whole chunk, not just one item
	docs := []*Value{
		mustParse(t, `{"id":1,"name":"x"}`),
		mustParse(t, `{"name":"y","id":2,"extra":[]}`),
		mustParse(t, `{"extra":{"id":3}}`),
	}
	encoded := encodeAll(t, docs...)
	require.Equal(t, []byte{tagMap + 1, 0, 2, tagMap + 1, 0, 0, tagUint, 3}, encoded[2])
	got := decodeAll(t, encoded)
	for i := range docs {
		require.True(t, docs[i].Equal(got[i]), "doc %d: %s != %s", i, docs[i], got[i])
	}
}

func TestKeyDictionarySubLinear(t *testing.T) {
	key := "someQuiteLongKeyName"
	sizeFor := func(n int) int {
		var members []Member
		for i := 0; i < n; i++ {
			members = append(members, Member{Key: key, Value: NewMap(Member{Key: key, Value: NewNull()})})
		}
		return len(encodeAll(t, NewMap(members...))[0])
	}
	n := 100
	literal := n * 2 * (len(key) + 1)
	got := sizeFor(n)
	require.Less(t, got, literal/5)
	// every repeated key costs 2 bytes, way less than its text
	require.Less(t, sizeFor(2*n)-got, 2*n*(len(key)/2))
}

func TestCodecAllKinds(t *testing.T) {
	long := strings.Repeat("z", 1000)
	var items []*Value
	for i := 0; i < 40; i++ {
		items = append(items, NewUint(uint64(i)))
	}
	var members []Member
	for i := 0; i < 40; i++ {
		members = append(members, Member{Key: fmt.Sprintf("k%d", i), Value: NewInt(int64(-i - 1))})
	}
	values := []*Value{
		NewNull(),
		NewBool(true),
		NewBool(false),
		NewInt(-1),
		NewInt(-1 << 62),
		NewUint(0),
		NewUint(1<<64 - 1),
		NewFloat(3.25),
		NewFloat(-0.5),
		NewString(""),
		NewString(strings.Repeat("a", maxInlineStr)),
		NewString(strings.Repeat("b", maxInlineStr+1)),
		NewString(long),
		NewList(),
		NewList(items[:maxInlineLen]...),
		NewList(items...),
		NewMap(),
		NewMap(members[:maxInlineLen]...),
		NewMap(members...),
		NewMap(Member{Key: "", Value: NewString("empty key")}, Member{Key: long, Value: NewList(NewNull())}),
	}
	got := decodeAll(t, encodeAll(t, values...))
	for i, v := range values {
		require.True(t, v.Equal(got[i]), "value %d: %s != %s", i, v, got[i])
	}
}

func TestEncodeNil(t *testing.T) {
	encoded := encodeAll(t, nil, NewList(nil), NewMap(Member{Key: "a"}))
	require.Equal(t, []byte{tagNull}, encoded[0])
	got := decodeAll(t, encoded)
	require.Equal(t, KindNull, got[0].Kind)
	require.Equal(t, `[null]`, got[1].String())
	require.Equal(t, `{"a":null}`, got[2].String())
}

func TestDecodeErrors(t *testing.T) {
	tests := [][]byte{
		nil,
		{0x06},
		{0x80},
		{tagString + 3, 'a'},
		{tagStringLong},
		{tagList + 2, tagNull},
		{tagMap + 1, 0, 0, tagNull},
		{tagMap + 1, 5, 'a'},
		{tagFloat, 1, 2},
		{tagNull, tagNull},
		{tagList | tagLenMask, 0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for _, d := range tests {
		_, err := codec{}.NewDecoder().Decode(d, itemFormat1)
		require.ErrorIs(t, err, container.ErrIntegrity, "%x", d)
	}
	_, err := codec{}.NewDecoder().Decode([]byte{tagNull}, 2)
	require.ErrorIs(t, err, container.ErrUnsupportedItemFormat)

	deep := bytes.Repeat([]byte{tagList + 1}, maxDepth+2)
	deep = append(deep, tagNull)
	_, err = codec{}.NewDecoder().Decode(deep, itemFormat1)
	require.ErrorIs(t, err, container.ErrIntegrity)
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{`null`, `null`},
		{` {"b": 1, "a": [true, false, -3, 2.5, 1e3, "s\n"]} `, `{"b":1,"a":[true,false,-3,2.5,1000.0,"s\n"]}`},
		{`18446744073709551615`, `18446744073709551615`},
		{`-9223372036854775808`, `-9223372036854775808`},
		{`1.0`, `1.0`},
		{`1e300`, `1e+300`},
		{`{}`, `{}`},
		{`[]`, `[]`},
	}
	for _, tc := range tests {
		v := mustParse(t, tc.in)
		require.Equal(t, tc.out, v.String())
		// what we write parses back the same
		require.True(t, v.Equal(mustParse(t, v.String())))
	}

	require.Equal(t, KindInt, mustParse(t, `-1`).Kind)
	require.Equal(t, KindUint, mustParse(t, `1`).Kind)
	require.Equal(t, KindFloat, mustParse(t, `1.0`).Kind)

	for _, s := range []string{``, `{`, `[1,]`, `{"a"}`, `1 2`, `nul`} {
		_, err := ParseJSON([]byte(s))
		require.Error(t, err, "%s", s)
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
		Data *Value `json:"data"`
	}
	in := doc{Name: "x", Data: mustParse(t, `{"z":1,"a":[1.5]}`)}
	d, err := json.Marshal(in)
	require.NoError(t, err)
	require.Equal(t, `{"name":"x","data":{"z":1,"a":[1.5]}}`, string(d))

	var out doc
	require.NoError(t, json.Unmarshal(d, &out))
	require.True(t, in.Data.Equal(out.Data))
	require.Equal(t, "z", out.Data.Members[0].Key)

	v := NewMap()
	v.Set("a", NewUint(1))
	v.Set("b", NewUint(2))
	v.Set("a", NewUint(3))
	require.Equal(t, `{"a":3,"b":2}`, v.String())
	require.Equal(t, uint64(2), v.Get("b").Uint)
	require.Nil(t, v.Get("c"))
}

func TestContainer(t *testing.T) {
	docs := []string{
		`{"matchId":"EUW1_1","participants":[{"puuid":"a","win":true},{"puuid":"b","win":false}]}`,
		`{"matchId":"EUW1_2","participants":[{"puuid":"c","win":false}],"duration":1834.5}`,
		`{}`,
		`[1,-2,"x",null]`,
	}
	for _, cf := range chunkFormats {
		t.Run(cf.String(), func(t *testing.T) {
			c := New(filepath.Join(t.TempDir(), "docs.losds"))
			var values []*Value
			for _, s := range docs {
				values = append(values, mustParse(t, s))
			}
			require.NoError(t, c.Append(cf, values...))
			require.NoError(t, c.Append(cf, values...))
			got, err := c.All()
			require.NoError(t, err)
			require.Len(t, got, 2*len(docs))
			for i, v := range got {
				require.Equal(t, docs[i%len(docs)], v.String())
			}

			require.NoError(t, c.Rewrite(nil))
			got2, err := c.All()
			require.NoError(t, err)
			require.Equal(t, len(got), len(got2))
			for i := range got {
				require.True(t, got[i].Equal(got2[i]))
			}
		})
	}
}
