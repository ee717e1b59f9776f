package mapper

import (
	"errors"
	"fmt"
)

// ErrMapping is matched by every MappingError.
var ErrMapping = errors.New("mapping error")

// MappingError describes a field that could not be converted.
type MappingError struct {
	Op    string
	Field string
	Value any
	Err   error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("%s: field %q", e.Op, e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf(" (value %v)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

func mappingErr(op, field string, value any, err error) error {
	return &MappingError{Op: op, Field: field, Value: value, Err: err}
}
