package apikey

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code identifies the kind of validation failure.
type Code string

const (
	CodeMissingParameter   Code = "missing_parameter"
	CodeInvalidDescription Code = "invalid_api_key_description"
	CodeInvalidActions     Code = "invalid_api_key_actions"
	CodeInvalidIndexes     Code = "invalid_api_key_indexes"
	CodeInvalidExpiresAt   Code = "invalid_api_key_expires_at"
)

// Error is returned when key input fails validation. Value holds the raw
// offending value as it appeared in the input; it is unset for
// missing_parameter errors.
type Error struct {
	Code  Code
	Field string
	Value any
}

// Sentinels for use with errors.Is. They match any *Error with the same code.
var (
	ErrMissingParameter   = &Error{Code: CodeMissingParameter}
	ErrInvalidDescription = &Error{Code: CodeInvalidDescription, Field: FieldDescription}
	ErrInvalidActions     = &Error{Code: CodeInvalidActions, Field: FieldActions}
	ErrInvalidIndexes     = &Error{Code: CodeInvalidIndexes, Field: FieldIndexes}
	ErrInvalidExpiresAt   = &Error{Code: CodeInvalidExpiresAt, Field: FieldExpiresAt}
)

// ErrNilKey is returned by Builder.Update when there is no key to update.
var ErrNilKey = errors.New("apikey: nil key")

// MissingParameter returns the error for a required field absent from the input.
func MissingParameter(field string) *Error {
	return &Error{Code: CodeMissingParameter, Field: field}
}

func invalid(code Code, field string, value any) *Error {
	return &Error{Code: code, Field: field, Value: value}
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeMissingParameter:
		return fmt.Sprintf("`%s` field is mandatory.", e.Field)
	case CodeInvalidDescription:
		return fmt.Sprintf("`description` field value `%s` is invalid. It should be a string or specified as a null value.", renderValue(e.Value))
	case CodeInvalidActions:
		return fmt.Sprintf("`actions` field value `%s` is invalid. It should be an array of string representing action names.", renderValue(e.Value))
	case CodeInvalidIndexes:
		return fmt.Sprintf("`indexes` field value `%s` is invalid. It should be an array of string representing index names.", renderValue(e.Value))
	case CodeInvalidExpiresAt:
		return fmt.Sprintf("`expiresAt` field value `%s` is invalid. It should follow the RFC 3339 format to represents a date or datetime in the future or specified as a null value. e.g. 'YYYY-MM-DD' or 'YYYY-MM-DD HH:MM:SS'.", renderValue(e.Value))
	default:
		return fmt.Sprintf("invalid api key field %q", e.Field)
	}
}

// Is matches sentinel errors by code. A sentinel with a Field only matches
// errors for that field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// AsError unwraps err into a validation *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// renderValue prints the raw value the way the client sent it.
func renderValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
