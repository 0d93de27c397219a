package domain

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("transport error")
	ErrChannel    = errors.New("channel error")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrValidation, "validation"},
	{ErrConflict, "conflict"},
	{ErrNotFound, "not_found"},
	{ErrTransport, "transport"},
	{ErrChannel, "channel"},
}

// Failure is a typed, displayable failure. Kind is one of the sentinels above.
type Failure struct {
	Kind    error
	Message string
	Cause   error
}

func NewFailure(kind error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapFailure attaches cause so that both the kind and the cause match errors.Is.
func WrapFailure(kind error, cause error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if f.Kind != nil {
		errs = append(errs, f.Kind)
	}
	if f.Cause != nil {
		errs = append(errs, f.Cause)
	}
	return errs
}

// KindName returns the wire name of err's kind, or "internal" if it has none.
func KindName(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "internal"
}

// KindFromName is the inverse of KindName. Unknown names yield nil.
func KindFromName(name string) error {
	for _, k := range kindNames {
		if k.name == name {
			return k.kind
		}
	}
	return nil
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
