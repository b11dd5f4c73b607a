// Package engerrors centralizes the error taxonomy of the capture storage
// engine: resource errors from the underlying OS (temp-file, clone, write,
// mmap, allocation) and logic errors from misuse (reads past the published
// length, out-of-range positions).
//
// Callers distinguish kinds with errors.Is against the sentinels below;
// engerrors.Wrap/WithStack/Errorf forward to github.com/pkg/errors so a
// stack trace is attached the first time an OS error crosses into the
// engine, the same convention internal/backend uses for backend errors.
package engerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel kinds. Use errors.Is(err, engerrors.ReadPastEnd) etc. to check,
// since concrete errors are always wrapped with positional detail via
// Wrap or the ReadPastEndf/OutOfRangef helpers before they leave a layer.
var (
	ReadPastEnd = errors.New("read past end of stream")
	OutOfRange  = errors.New("position out of range")
	TempFile    = errors.New("temp file error")
	CloneFile   = errors.New("clone file error")
	WriteFile   = errors.New("write file error")
	MapFile     = errors.New("map file error")
	Alloc       = errors.New("buffer allocation error")
)

// New, Errorf, Wrap, WithStack, Is, As and Cause re-export the
// github.com/pkg/errors functions this module builds its taxonomy on, so
// every package that needs to construct or inspect an engine error can
// import engerrors alone.
var (
	New      = errors.New
	Errorf   = errors.Errorf
	Wrap     = errors.Wrap
	WithStack = errors.WithStack
	Is       = errors.Is
	As       = errors.As
	Cause    = errors.Cause
)

// ReadPastEndf reports a read attempt beyond the stream's published length.
func ReadPastEndf(start, end, length uint64) error {
	return fmt.Errorf("%w: range [%d, %d) exceeds published length %d", ReadPastEnd, start, end, length)
}

// OutOfRangef reports an out-of-range logical position.
func OutOfRangef(pos, length uint64) error {
	return fmt.Errorf("%w: position %d >= length %d", OutOfRange, pos, length)
}
