// Package fault classifies operation errors so the transport layer can
// pick a status code while clients only ever see a single message string.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermissionDenied
	KindPreconditionFailed
	KindEngine
	KindClientInput
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...any) error {
	return &Error{Kind: KindPermissionDenied, Msg: fmt.Sprintf(format, args...)}
}

func PreconditionFailed(format string, args ...any) error {
	return &Error{Kind: KindPreconditionFailed, Msg: fmt.Sprintf(format, args...)}
}

// Engine wraps an engine failure. The engine's message is passed through
// verbatim; a non-empty format prefixes it with caller context.
func Engine(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case msg == "" && err != nil:
		msg = err.Error()
	case err != nil:
		msg = msg + ": " + err.Error()
	}
	return &Error{Kind: KindEngine, Msg: msg, Err: err}
}

func ClientInput(format string, args ...any) error {
	return &Error{Kind: KindClientInput, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from err, KindUnknown if unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
