// Package hfserrors defines the semantic error taxonomy of an HFS+ mount
// (spec.md §7). Every operation that can fail returns one of these sentinels
// wrapped with github.com/cockroachdb/errors so a caller can both test with
// errors.Is and print a full cause chain (useful once the volume is marked
// damaged and a caller wants to know which metadata write actually failed).
package hfserrors

import "github.com/cockroachdb/errors"

// Sentinel errors, one per row of spec.md §7's error taxonomy.
var (
	ErrNotFound        = errors.New("hfsplus: not found")
	ErrDuplicate       = errors.New("hfsplus: duplicate")
	ErrDiskFull        = errors.New("hfsplus: disk full")
	ErrQuotaExceeded   = errors.New("hfsplus: quota exceeded")
	ErrReadOnly        = errors.New("hfsplus: volume is read-only")
	ErrIO              = errors.New("hfsplus: I/O error")
	ErrBadNode         = errors.New("hfsplus: bad b-tree node")
	ErrBadFormat       = errors.New("hfsplus: unrecognized on-disk format")
	ErrBusy            = errors.New("hfsplus: device busy")
	ErrNameTooLong     = errors.New("hfsplus: name too long")
	ErrNotDirectory    = errors.New("hfsplus: not a directory")
	ErrNotEmpty        = errors.New("hfsplus: directory not empty")
	ErrPermissionDenied = errors.New("hfsplus: permission denied")
	ErrUnsupported     = errors.New("hfsplus: unsupported on this volume")
)

// Wrap annotates err with msg and marks it as matching sentinel for
// errors.Is, preserving the original error as the cause.
func Wrap(sentinel error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "%s", msg), sentinel)
}

// New creates a new error already marked as matching sentinel, with a
// captured stack trace (useful for I/O and bad-node errors that flip a
// volume's damaged flag, so the first report shows where it originated).
func New(sentinel error, msg string) error {
	return errors.Mark(errors.Newf("%s", msg), sentinel)
}

// Newf is New with formatting.
func Newf(sentinel error, format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), sentinel)
}

// Is is a thin re-export of errors.Is so callers don't need a second import
// for the common case of `hfserrors.Is(err, hfserrors.ErrNotFound)`.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
