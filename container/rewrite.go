package container

import (
	"fmt"
	"os"

	"github.com/kjk/losds/atomicfile"
	"github.com/kjk/losds/log"
	"github.com/pkg/errors"
)

// replaced in tests to simulate a failed rename
var renameFile = os.Rename

// Rewrite reads all items and writes them into a new, maximally compressed
// file which then replaces the original. Format.Normalize and then filter
// (if not nil) are applied to items on the way.
//
// If the new file is smaller than MinRewriteRatio of the original,
// ErrRewriteSafetyViolation is returned and both files are kept.
// If the new file can't be renamed over the original (which is already
// deleted at that point), it's renamed to "<path>.rewrite-failed-NN" and
// ErrRenameRecovery is returned. It also wraps *atomicfile.ReplaceError
// which tells where the data is.
func (c *Container[T]) Rewrite(filter Filter[T]) error {
	old, err := c.Stats()
	if err != nil || old == nil {
		return err
	}

	af, err := atomicfile.New(c.Path)
	if err != nil {
		return errors.Wrap(err, "creating rewrite file")
	}
	defer af.RemoveIfNotClosed()

	hdr := newHeader(c.Format.TypeID, old.FormatData)
	if _, err = af.WriteAt(hdr.marshal(), 0); err != nil {
		return err
	}

	items, errFn := c.ReadItems()
	seq := items
	if c.Format.Normalize != nil {
		seq = c.Format.Normalize(seq)
	}
	if filter != nil {
		seq = filter(seq)
	}
	w := newChunkWriter(af, hdr, c.Format.Codec, c.rewriteFormat())
	w.best = true
	w.limit = c.chunkLengthLimit()
	err = w.writeAll(seq)
	if err == nil {
		err = errFn()
	}
	if err != nil {
		return errors.Wrapf(err, "rewriting %s", c.Path)
	}

	minSize := int64(float64(old.ValidLength) * c.minRewriteRatio())
	check := func(tmpPath string, size int64) error {
		if size < minSize {
			return errors.Wrapf(ErrRewriteSafetyViolation, "%s: rewritten file '%s' is %d bytes, original is %d bytes", c.Path, tmpPath, size, old.ValidLength)
		}
		return nil
	}
	delay := c.RenameRetryDelay
	if delay <= 0 {
		delay = DefaultRenameRetryDelay
	}
	err = af.Replace(atomicfile.ReplaceOptions{
		Check:      check,
		Retries:    c.RenameRetries,
		RetryDelay: delay,
		Rename:     renameFile,
	})
	var rerr *atomicfile.ReplaceError
	if errors.As(err, &rerr) {
		log.Errorf("container: rewrite of %s failed: %s\n", c.Path, rerr)
		return fmt.Errorf("%w: %w", ErrRenameRecovery, rerr)
	}
	if err != nil {
		return err
	}

	nItems := hdr.stats(hdr.validLength).TotalItems()
	log.Logf("container: rewrote %s, %d => %d bytes, %d items\n", c.Path, old.ValidLength, hdr.validLength, nItems)
	log.Event("rewrite", "path", c.Path, "type", c.Format.TypeID, "before", old.ValidLength, "after", hdr.validLength,
		"itemsBefore", old.TotalItems(), "itemsAfter", nItems)
	return nil
}
