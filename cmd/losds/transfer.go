package main

import (
	"io/fs"
	"slices"

	"github.com/kjk/losds/container"
	"github.com/kjk/losds/formats"
	"github.com/kjk/losds/log"
	"github.com/kjk/losds/u"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	importType        string
	importFormat      string
	importRegion      string
	importAutoRewrite bool
)

var exportCmd = &cobra.Command{
	Use:   "export <file> <out>",
	Short: "write items as json lines, compressed if out ends with .gz, .zst or .br",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file> <in>",
	Short: "append json lines to a container, creating it if needed",
	Long: `
Appends items, one json value per line, read from <in> (which can be
compressed with .gz, .zst or .br) to <file>. All items are appended in
one call. If <file> doesn't exist, --type is required.
`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func exportFile(path string, dst string) (int, error) {
	h, err := formats.Open(path, nil)
	if err != nil {
		return 0, err
	}
	w, err := u.CreateFileMaybeCompressed(dst)
	if err != nil {
		return 0, err
	}
	defer w.RemoveIfNotClosed()
	n := 0
	err = h.EachJSON(func(d []byte) error {
		n++
		if _, err := w.Write(d); err != nil {
			return err
		}
		_, err := w.Write([]byte{'\n'})
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, w.Close()
}

func runExport(cmd *cobra.Command, args []string) error {
	n, err := exportFile(args[0], args[1])
	if err != nil {
		return err
	}
	log.Logf("exported %d items from %s to %s\n", n, args[0], args[1])
	return nil
}

func openForImport(path string) (formats.Handle, error) {
	opts := &formats.Options{
		AutoRewrite: importAutoRewrite,
	}
	if importRegion != "" {
		opts.FormatData = []byte(importRegion)
	}
	if !u.FileExists(path) || u.FileSize(path) == 0 {
		if importType == "" {
			return nil, errors.Wrapf(fs.ErrNotExist, "%s doesn't exist and --type is not given", path)
		}
		return formats.Create(importType, path, opts)
	}
	h, err := formats.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if importType != "" && importType != h.TypeID() {
		return nil, errors.Wrapf(container.ErrFormatMismatch, "%s is of type %s, not %s", path, h.TypeID(), importType)
	}
	return h, nil
}

// importFile appends json lines from src to path. The whole of src is
// read before appending so a read error appends nothing.
func importFile(path string, src string, format container.ChunkFormat) (int, error) {
	h, err := openForImport(path)
	if err != nil {
		return 0, err
	}
	r, err := u.OpenFileMaybeCompressed(src)
	if err != nil {
		return 0, err
	}
	defer u.CloseNoError(r)

	lines, errFn := u.IterLines(r)
	var all [][]byte
	for line := range lines {
		// lines are only valid until the next iteration
		all = append(all, append([]byte(nil), line...))
	}
	if err = errFn(); err != nil {
		return 0, errors.Wrapf(err, "reading %s", src)
	}
	if err = h.AppendJSON(slices.Values(all), format); err != nil {
		return 0, errors.Wrapf(err, "importing %s", src)
	}
	log.Event("import", "path", path, "type", h.TypeID(), "items", len(all))
	return len(all), nil
}

func runImport(cmd *cobra.Command, args []string) error {
	path, src := args[0], args[1]
	format, err := container.ParseChunkFormat(importFormat)
	if err != nil {
		return err
	}
	n, err := importFile(path, src, format)
	if err != nil {
		return err
	}
	log.Logf("imported %d items from %s to %s\n", n, src, path)
	return nil
}
