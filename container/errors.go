package container

import "errors"

var (
	// ErrNotContainer is returned when a file doesn't start with the container magic
	ErrNotContainer = errors.New("not a container file")

	// ErrFormatMismatch is returned when a file is a container of a different
	// type, or with different format-specific data
	ErrFormatMismatch = errors.New("container format mismatch")

	// ErrUnsupported is returned for file format versions we don't know
	ErrUnsupported = errors.New("unsupported container file version")

	// ErrIntegrity is returned when a chunk fails CRC32 verification or
	// is structurally damaged
	ErrIntegrity = errors.New("container integrity error")

	// ErrUnsupportedScheme is returned for unknown chunk scheme bytes
	ErrUnsupportedScheme = errors.New("unsupported chunk scheme")

	// ErrUnsupportedItemFormat is returned by codecs for item format
	// versions they can't decode
	ErrUnsupportedItemFormat = errors.New("unsupported item format")

	// ErrInconsistentItemFormat is returned when items appended into one chunk
	// were encoded with different item format versions
	ErrInconsistentItemFormat = errors.New("inconsistent item format in chunk")

	// ErrRewriteSafetyViolation is returned when a rewritten file is implausibly
	// small compared to the original. Both files are left on disk.
	ErrRewriteSafetyViolation = errors.New("rewrite safety violation")

	// ErrRenameRecovery is returned when the rewritten file could not be renamed
	// over the original. Manual intervention is needed.
	ErrRenameRecovery = errors.New("rewrite rename failed")
)
