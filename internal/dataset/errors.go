package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrOpen          = errors.New("dataset cannot be opened")
	ErrFilterSyntax  = errors.New("malformed filter")
	ErrInvalidColumn = errors.New("unknown column")
	ErrInternal      = errors.New("dataset read failed")
	ErrConflict      = errors.New("dataset version already committed")
)

// Error names the failed operation and dataset path. Kind is one of the
// package sentinels and matches through errors.Is, as does the cause.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(op, path string, kind, err error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// KindOf returns the sentinel kind carried by err. Errors that did not come
// from this package are reported as ErrInternal.
func KindOf(err error) error {
	for _, kind := range []error{ErrOpen, ErrFilterSyntax, ErrInvalidColumn, ErrConflict, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}
