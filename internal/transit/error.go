package transit

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindValidation    ErrorKind = "ValidationFailed"
	KindAcquisition   ErrorKind = "AcquisitionFailed"
	KindTransform     ErrorKind = "TransformFailed"
	KindTransport     ErrorKind = "TransportFailed"
	KindConfiguration ErrorKind = "ConfigurationError"
)

// Sentinels for errors.Is; every *Error matches the one for its kind.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrAcquisitionFailed = errors.New("acquisition failed")
	ErrTransformFailed   = errors.New("transform failed")
	ErrTransportFailed   = errors.New("transport failed")
	ErrConfiguration     = errors.New("configuration error")
)

var sentinels = map[ErrorKind]error{
	KindValidation:    ErrValidationFailed,
	KindAcquisition:   ErrAcquisitionFailed,
	KindTransform:     ErrTransformFailed,
	KindTransport:     ErrTransportFailed,
	KindConfiguration: ErrConfiguration,
}

// Error is a typed pipeline failure for one field.
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", sentinels[e.Kind], e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Field, sentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Recoverable reports whether the collaborator may substitute a default and continue.
func (e *Error) Recoverable() bool {
	return e.Kind == KindValidation || e.Kind == KindAcquisition
}

// Message is the user-facing text for field-level error reporting.
func (e *Error) Message() string {
	if e.Err == nil {
		return sentinels[e.Kind].Error()
	}
	return e.Err.Error()
}

func newError(kind ErrorKind, field string, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: kind, Field: field, Err: err}
}

// ConfigError wraps a setup failure (unknown transform or transport kind,
// missing credential) for field.
func ConfigError(field string, err error) *Error {
	return &Error{Kind: KindConfiguration, Field: field, Err: err}
}
