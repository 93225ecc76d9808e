// Package formats knows about all container formats. It opens a container
// of any type and gives access to its items as JSON.
package formats

import (
	"encoding/json"
	"iter"
	"maps"
	"slices"

	"github.com/kjk/losds/container"
	"github.com/kjk/losds/jsondoc"
	"github.com/kjk/losds/matchids"
	"github.com/kjk/losds/summaries"
	"github.com/pkg/errors"
)

// Handle is a container whose item type is not known at compile time
type Handle interface {
	Path() string
	TypeID() string
	Stats() (*container.Stats, error)
	// RewriteReason returns why Initialise would rewrite, "" if it wouldn't
	RewriteReason(compact bool) (string, error)
	// Initialise rewrites if needed and returns true if it did
	Initialise(compact bool) (bool, error)
	Rewrite() error
	// EachJSON calls fn with every item encoded as JSON. fn must not
	// retain the data.
	EachJSON(fn func(d []byte) error) error
	// AppendJSON decodes JSON items and appends them in one call.
	// Nothing is appended if any item fails to decode.
	AppendJSON(items iter.Seq[[]byte], format container.ChunkFormat) error
}

// Options are applied to every opened container
type Options struct {
	// FormatData expected in the file, e.g. region. Read from the file if nil.
	FormatData  []byte
	AutoRewrite bool
	// RenameRetries limits how long a failed rewrite blocks, 0 means forever
	RenameRetries int
}

type opener func(path string, opts *Options) Handle

// all known formats, by type id. Not modified after init.
var registry = map[string]opener{
	matchids.TypeID:  openWith(matchids.Format),
	summaries.TypeID: openWith(summaries.Format),
	jsondoc.TypeID:   openWith(jsondoc.Format),
}

// TypeIDs returns type ids of all known formats, sorted
func TypeIDs() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Open opens an existing container, detecting its type from the header
func Open(path string, opts *Options) (Handle, error) {
	typeID, err := container.ReadTypeID(path)
	if err != nil {
		return nil, err
	}
	return Create(typeID, path, opts)
}

// Create returns a handle for a container of a given type. The file is
// created by the first append.
func Create(typeID string, path string, opts *Options) (Handle, error) {
	open, ok := registry[typeID]
	if !ok {
		return nil, errors.Wrapf(container.ErrFormatMismatch, "unknown type id '%s'", typeID)
	}
	if opts == nil {
		opts = &Options{}
	}
	return open(path, opts), nil
}

func openWith[T any](format *container.Format[T]) opener {
	return func(path string, opts *Options) Handle {
		c := container.New(path, format)
		c.FormatData = opts.FormatData
		c.AutoRewrite = opts.AutoRewrite
		c.RenameRetries = opts.RenameRetries
		return &handle[T]{c: c}
	}
}

type handle[T any] struct {
	c *container.Container[T]
}

func (h *handle[T]) Path() string {
	return h.c.Path
}

func (h *handle[T]) TypeID() string {
	return h.c.Format.TypeID
}

func (h *handle[T]) Stats() (*container.Stats, error) {
	return h.c.Stats()
}

func (h *handle[T]) RewriteReason(compact bool) (string, error) {
	return h.c.RewriteReason(compact)
}

func (h *handle[T]) Initialise(compact bool) (bool, error) {
	return h.c.Initialise(compact)
}

func (h *handle[T]) Rewrite() error {
	return h.c.Rewrite(nil)
}

func (h *handle[T]) EachJSON(fn func(d []byte) error) error {
	items, errFn := h.c.ReadItems()
	var err error
	for item := range items {
		var d []byte
		d, err = json.Marshal(item)
		if err == nil {
			err = fn(d)
		}
		if err != nil {
			break
		}
	}
	if err != nil {
		return err
	}
	return errFn()
}

// AppendJSON decodes all items before appending so that a bad item
// doesn't leave a partial append behind
func (h *handle[T]) AppendJSON(items iter.Seq[[]byte], format container.ChunkFormat) error {
	var decoded []T
	for d := range items {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return errors.Wrapf(err, "item %d", len(decoded)+1)
		}
		decoded = append(decoded, v)
	}
	return h.c.Append(format, decoded...)
}
