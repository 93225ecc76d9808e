package matchids

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kjk/losds/container"
	"github.com/stretchr/testify/require"
)

var chunkFormats = []container.ChunkFormat{container.Raw, container.Deflate, container.LZ4, container.LZ4HC}

func TestCodecRoundTrip(t *testing.T) {
	ids := []int64{0, 5, 5, 3, -7, math.MaxInt64, math.MinInt64, 1_000_000, 999_999, 999_999}
	enc := codec{}.NewEncoder()
	var encoded [][]byte
	for _, id := range ids {
		d, ver, err := enc.Encode(nil, id)
		require.NoError(t, err)
		require.Equal(t, itemFormat1, ver)
		encoded = append(encoded, d)
	}
	// repeated id is a 0 delta
	require.Equal(t, []byte{0}, encoded[2])

	dec := codec{}.NewDecoder()
	for i, d := range encoded {
		id, err := dec.Decode(d, itemFormat1)
		require.NoError(t, err)
		require.Equal(t, ids[i], id)
	}
}

func TestDecodeErrors(t *testing.T) {
	dec := codec{}.NewDecoder()
	_, err := dec.Decode([]byte{2}, 2)
	require.ErrorIs(t, err, container.ErrUnsupportedItemFormat)
	_, err = dec.Decode(nil, itemFormat1)
	require.ErrorIs(t, err, container.ErrIntegrity)
	_, err = dec.Decode([]byte{2, 2}, itemFormat1)
	require.ErrorIs(t, err, container.ErrIntegrity)
}

func TestAppendRead(t *testing.T) {
	for _, cf := range chunkFormats {
		t.Run(cf.String(), func(t *testing.T) {
			c := New(filepath.Join(t.TempDir(), "ids.losds"))
			var exp []int64
			for i := 0; i < 3; i++ {
				ids := make([]int64, 1000)
				for j := range ids {
					ids[j] = 7_000_000_000 + rand.Int64N(1_000_000)
				}
				require.NoError(t, c.Append(cf, ids...))
				exp = append(exp, ids...)
			}
			got, err := c.All()
			require.NoError(t, err)
			require.Equal(t, exp, got)
		})
	}
}

func TestRewriteSorts(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "ids.losds"))
	require.NoError(t, c.Append(container.LZ4, 100, 50, 200))

	got, err := c.All()
	require.NoError(t, err)
	require.Equal(t, []int64{100, 50, 200}, got)

	require.NoError(t, c.Rewrite(nil))
	got, err = c.All()
	require.NoError(t, err)
	require.Equal(t, []int64{50, 100, 200}, got)

	st, err := c.Stats()
	require.NoError(t, err)
	require.Equal(t, TypeID, st.TypeID)
	require.Equal(t, int64(3), st.TotalItems())
	require.Equal(t, itemFormat1, st.OldestItemFormat)
}

func TestRewriteIdempotent(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "ids.losds"))
	for i := 0; i < 200; i++ {
		require.NoError(t, c.Append(container.Raw, rand.Int64N(1<<40)))
	}
	require.NoError(t, c.Rewrite(nil))
	first, err := c.All()
	require.NoError(t, err)
	require.True(t, slices.IsSorted(first))

	require.NoError(t, c.Rewrite(nil))
	second, err := c.All()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSortedStopsEarly(t *testing.T) {
	n := 0
	for id := range Sorted(slices.Values([]int64{3, 1, 2})) {
		require.Equal(t, int64(1), id)
		n++
		break
	}
	require.Equal(t, 1, n)
}
