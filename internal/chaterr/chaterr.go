// Package chaterr defines the error-kind taxonomy shared across the
// server core. Every kind is a sentinel that callers compare against
// with errors.Is; Wrap attaches an optional underlying cause to a kind.
package chaterr

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidData       = errors.New("invalid data")
	ErrUnexpectedEOF     = errors.New("unexpected eof")
	ErrNotConnected      = errors.New("not connected")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrIO                = errors.New("io error")
)

// Wrap annotates an underlying cause with one of the sentinel kinds
// above, so callers can both errors.Is(err, chaterr.ErrNotFound) and
// see the original cause in err.Error().
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string {
	return w.kind.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.cause}
}
