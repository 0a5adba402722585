package oracle

import (
	"errors"
	"fmt"
)

var (
	ErrStalePrice        = errors.New("stale price")
	ErrPriceOutsideRange = errors.New("price outside range")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrIndexOutOfRange   = errors.New("index out of range")

	// ErrEmptyRevertData marks a call that reverted without any return
	// data. Callers treat it as fatal rather than as a soft fault.
	ErrEmptyRevertData = errors.New("call reverted without data")
)

// IndexError reports an invalid token or feed index with its valid bound.
type IndexError struct {
	Kind  string
	Index int
	Bound int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.Kind, e.Index, e.Bound)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

func invalidConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
