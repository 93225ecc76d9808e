package container

import (
	"bytes"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/kjk/losds/log"
	"github.com/pkg/errors"
)

const (
	// DefaultChunkLengthLimit is 3/4 of the max length representable in a chunk
	DefaultChunkLengthLimit int64 = math.MaxUint32 / 4 * 3

	// DefaultRewriteThreshold is the fragmentation above which Initialise rewrites
	DefaultRewriteThreshold = 0.25

	// DefaultMinRewriteRatio is the smallest new size / old size accepted by Rewrite
	DefaultMinRewriteRatio = 1.0 / 15

	// DefaultShortChunkLength: compressed chunks up to this size are read
	// into memory, longer ones are streamed from the file
	DefaultShortChunkLength int64 = 64 * 1024

	DefaultOpenRetries      = 20
	DefaultOpenRetryDelay   = 250 * time.Millisecond
	DefaultRenameRetryDelay = time.Second
)

// Container is an append-only file of items of type T.
// Zero values of optional fields mean defaults.
type Container[T any] struct {
	Path   string
	Format *Format[T]

	// FormatData is format-specific data (e.g. a region) stored in the header.
	// When set, opening a file with different data fails with ErrFormatMismatch.
	// When not set, it's read from the file.
	FormatData []byte

	// if true, AppendItems rewrites the file when RewriteThreshold is exceeded
	AutoRewrite bool

	// approximate max compressed size of a chunk
	ChunkLengthLimit int64
	RewriteThreshold float64
	// format used by Rewrite, LZ4HC if not set
	RewriteFormat   ChunkFormat
	MinRewriteRatio float64

	ShortChunkLength int64

	// retries when opening a file fails because another process has it open
	OpenRetries    int
	OpenRetryDelay time.Duration

	// retries of renaming rewritten file to a recovery name. 0 means retry
	// until it succeeds, blocking the caller.
	RenameRetries    int
	RenameRetryDelay time.Duration

	// if true, will call file.Sync() before and after committing each chunk
	SyncWrite bool
}

// New returns a container for the file at path. The file is not
// touched until the first operation.
func New[T any](path string, format *Format[T]) *Container[T] {
	return &Container[T]{
		Path:   path,
		Format: format,
	}
}

func (c *Container[T]) chunkLengthLimit() int64 {
	if c.ChunkLengthLimit <= 0 || c.ChunkLengthLimit > DefaultChunkLengthLimit {
		return DefaultChunkLengthLimit
	}
	return c.ChunkLengthLimit
}

func (c *Container[T]) rewriteThreshold() float64 {
	if c.RewriteThreshold <= 0 {
		return DefaultRewriteThreshold
	}
	return c.RewriteThreshold
}

func (c *Container[T]) rewriteFormat() ChunkFormat {
	if !c.RewriteFormat.valid() {
		return LZ4HC
	}
	return c.RewriteFormat
}

func (c *Container[T]) minRewriteRatio() float64 {
	if c.MinRewriteRatio <= 0 {
		return DefaultMinRewriteRatio
	}
	return c.MinRewriteRatio
}

func (c *Container[T]) shortChunkLength() int64 {
	if c.ShortChunkLength <= 0 {
		return DefaultShortChunkLength
	}
	return c.ShortChunkLength
}

func (c *Container[T]) openFile(flag int) (*os.File, error) {
	retries := c.OpenRetries
	if retries <= 0 {
		retries = DefaultOpenRetries
	}
	delay := c.OpenRetryDelay
	if delay <= 0 {
		delay = DefaultOpenRetryDelay
	}
	return openFileRetry(c.Path, flag, retries, delay)
}

func (c *Container[T]) validate() error {
	if c.Path == "" {
		return errors.New("container path is not set")
	}
	if c.Format == nil || c.Format.Codec == nil {
		return errors.New("container format is not set")
	}
	if err := validateTypeID(c.Format.TypeID); err != nil {
		return err
	}
	if len(c.FormatData) > MaxFormatDataLen {
		return errors.Errorf("format data is %d bytes, max is %d", len(c.FormatData), MaxFormatDataLen)
	}
	return nil
}

// checkHeader validates format data of the file, the type is checked by readHeader
func (c *Container[T]) checkHeader(h *header) error {
	if c.FormatData != nil && !bytes.Equal(h.formatData, c.FormatData) {
		return errors.Wrapf(ErrFormatMismatch, "%s: format data is '%s', expected '%s'", c.Path, h.formatData, c.FormatData)
	}
	return nil
}

// openRead opens an existing file and reads its header.
// Returns fs.ErrNotExist if the file doesn't exist or is empty.
func (c *Container[T]) openRead() (*os.File, *header, error) {
	if err := c.validate(); err != nil {
		return nil, nil, err
	}
	f, err := c.openFile(os.O_RDONLY)
	if err != nil {
		return nil, nil, err
	}
	h, err := c.readHeader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, h, nil
}

func (c *Container[T]) readHeader(f *os.File) (*header, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fs.ErrNotExist
	}
	h, err := readHeader(f, c.Format.TypeID)
	if errors.Is(err, ErrNotContainer) {
		return nil, errors.Wrapf(ErrFormatMismatch, "%s: not a container", c.Path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s", c.Path)
	}
	if err = c.checkHeader(h); err != nil {
		return nil, err
	}
	if h.validLength > st.Size() {
		return nil, errors.Wrapf(ErrIntegrity, "%s: valid length %d is past end of file (%d)", c.Path, h.validLength, st.Size())
	}
	return h, nil
}

// openWrite opens the file for appending, creating it if needed.
// Writing continues at the valid length.
func (c *Container[T]) openWrite() (*os.File, *header, error) {
	if err := c.validate(); err != nil {
		return nil, nil, err
	}
	f, err := c.openFile(os.O_RDWR | os.O_CREATE)
	if err != nil {
		return nil, nil, err
	}
	h, err := c.readHeader(f)
	if errors.Is(err, fs.ErrNotExist) {
		h = newHeader(c.Format.TypeID, c.FormatData)
		_, err = f.WriteAt(h.marshal(), 0)
		if err == nil {
			log.Verbosef("container: created %s (%s)\n", c.Path, h.typeID)
		}
	}
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, h, nil
}

// Stats returns stats read from the header.
// Returns nil stats if the file doesn't exist.
func (c *Container[T]) Stats() (*Stats, error) {
	f, h, err := c.openRead()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return h.stats(st.Size()), nil
}

// RewriteReason returns why Initialise would rewrite the file, or "" if it
// wouldn't. Only reads the header.
func (c *Container[T]) RewriteReason(compact bool) (string, error) {
	st, err := c.Stats()
	if err != nil || st == nil {
		return "", err
	}
	switch {
	case compact:
		return "forced", nil
	case st.RewriteNeeded(c.rewriteThreshold()):
		return fmt.Sprintf("fragmented (%.2f)", st.Fragmentation()), nil
	case st.TotalItems() > 0 && st.OldestItemFormat < c.Format.Codec.Version():
		return fmt.Sprintf("old item format %d", st.OldestItemFormat), nil
	}
	return "", nil
}

// Initialise rewrites the file if it's fragmented, holds items in an
// older item format or compact is true. Returns true if it rewrote.
func (c *Container[T]) Initialise(compact bool) (bool, error) {
	reason, err := c.RewriteReason(compact)
	if err != nil || reason == "" {
		return false, err
	}
	log.Verbosef("container: rewriting %s, %s\n", c.Path, reason)
	if err = c.Rewrite(nil); err != nil {
		return false, err
	}
	return true, nil
}

// ReadTypeID returns type id of a container file.
// Returns ErrNotContainer if the file isn't one.
func ReadTypeID(path string) (string, error) {
	f, err := openFileRetry(path, os.O_RDONLY, DefaultOpenRetries, DefaultOpenRetryDelay)
	if err != nil {
		return "", err
	}
	defer f.Close()
	typeID, err := readMagic(f)
	if err != nil {
		return "", errors.Wrapf(err, "%s", path)
	}
	return typeID, nil
}
