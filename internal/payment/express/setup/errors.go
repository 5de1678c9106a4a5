package setup

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid transaction setup request")
	ErrTransport         = errors.New("transaction setup transport failure")
	ErrMalformedResponse = errors.New("malformed transaction setup response")
	ErrMissingIdentifier = errors.New("transaction setup identifier missing")
)

// SetupError classifies a failed SetupSession call. Kind is one of the
// sentinel errors above; StatusCode is the HTTP status for transport errors
// and 0 when no response was received.
type SetupError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *SetupError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SetupError) Is(target error) bool {
	return target == e.Kind
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func newSetupError(kind error, err error) *SetupError {
	return &SetupError{Kind: kind, Err: err}
}
