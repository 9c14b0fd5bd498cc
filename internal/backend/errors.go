package backend

import (
	"errors"
	"fmt"
)

// Error kinds. Every failing operation returns an *Error whose Kind is one of these.
var (
	ErrAuth            = errors.New("authentication failed")
	ErrAccountCreation = errors.New("account creation failed")
	ErrUpload          = errors.New("upload failed")
	ErrPreview         = errors.New("preview unavailable")
	ErrPostCreation    = errors.New("post creation failed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRemoteCall      = errors.New("remote call failed")
)

// Error is an operation-scoped failure carrying its kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
