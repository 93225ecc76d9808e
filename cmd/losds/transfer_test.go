package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjk/losds/container"
	"github.com/kjk/losds/formats"
	"github.com/kjk/losds/matchids"
	"github.com/kjk/losds/summaries"
	"github.com/kjk/losds/u"
	"github.com/stretchr/testify/require"
)

func setImportFlags(t *testing.T, typeID string, region string) {
	importType, importFormat, importRegion = typeID, "lz4", region
	t.Cleanup(func() {
		importType, importFormat, importRegion = "", "lz4", ""
	})
}

func TestImportExport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	lines := []string{
		`{"matchId":3,"queueId":420,"gameVersion":3586,"createdAt":1000}`,
		`{"matchId":1,"queueId":440,"gameVersion":3587,"createdAt":900}`,
	}
	require.NoError(t, os.WriteFile(src, []byte(strings.Join(lines, "\r\n")+"\n\n"), 0644))
	path := filepath.Join(dir, "summaries.losds")

	// type is required for a new file
	setImportFlags(t, "", "")
	require.Error(t, runImport(nil, []string{path, src}))

	setImportFlags(t, summaries.TypeID, "euw1")
	require.NoError(t, runImport(nil, []string{path, src}))
	items, err := summaries.New(path).All()
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(3), items[0].MatchID)

	// importing into a file of a different type fails
	setImportFlags(t, "MTID", "")
	require.ErrorIs(t, runImport(nil, []string{path, src}), container.ErrFormatMismatch)

	for _, name := range []string{"out.txt", "out.gz", "out.zst", "out.br"} {
		dst := filepath.Join(dir, name)
		n, err := exportFile(path, dst)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		// importing what we exported into a new file gives the same items
		copyPath := filepath.Join(dir, name+".losds")
		setImportFlags(t, summaries.TypeID, "")
		require.NoError(t, runImport(nil, []string{copyPath, dst}))
		got, err := summaries.New(copyPath).All()
		require.NoError(t, err)
		require.Equal(t, items, got)
	}

	d, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, strings.Join(lines, "\n")+"\n", string(d))
}

func TestImportTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ids.txt.gz")
	w, err := u.CreateFileMaybeCompressed(src)
	require.NoError(t, err)
	for i := 0; i < 200_000; i++ {
		_, err = fmt.Fprintf(w, "%d\n", rand.Int64N(1<<50))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	d, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, d[:len(d)/2], 0644))

	path := filepath.Join(dir, "ids.losds")
	setImportFlags(t, matchids.TypeID, "")
	_, err = importFile(path, src, container.LZ4)
	require.Error(t, err)

	// nothing was appended
	items, err := matchids.New(path).All()
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.losds")
	c := summaries.New(path)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Append(container.Raw, summaries.Summary{MatchID: int64(10 - i)}))
	}
	require.NoError(t, runCompact(nil, []string{path}))

	h, err := formats.Open(path, nil)
	require.NoError(t, err)
	st, err := h.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(1), st.CompressedChunks)
	items, err := c.All()
	require.NoError(t, err)
	require.Equal(t, int64(1), items[0].MatchID)

	require.Error(t, runCompact(nil, []string{path + ".missing"}))

	// already compact
	rewrote, err := compactOne(path, false)
	require.NoError(t, err)
	require.False(t, rewrote)
	// forced rewrite of a compact file gives the same size and chunks
	// but is still a rewrite
	rewrote, err = compactOne(path, true)
	require.NoError(t, err)
	require.True(t, rewrote)
}
