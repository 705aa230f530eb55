package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the simulation core. Callers match with errors.Is.
var (
	// ErrInvalidParameter marks malformed numeric inputs; never coerced.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDrugNotFound marks a drug absent from the reference catalog.
	ErrDrugNotFound = errors.New("drug not found")
	// ErrOracleUnavailable marks a failed or exhausted oracle call.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrSchemaViolation marks an oracle response or ingested record that fails validation.
	ErrSchemaViolation = errors.New("schema violation")
)

// ParameterError describes an invalid numeric input
type ParameterError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// Error implements the error interface
func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter '%s' (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidParameter
func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }

// NewParameterError creates a new ParameterError
func NewParameterError(field string, value interface{}, message string) *ParameterError {
	return &ParameterError{Field: field, Value: value, Message: message}
}

// SchemaError describes a record that failed parsing or validation
type SchemaError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation for field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrSchemaViolation
func (e *SchemaError) Unwrap() error { return ErrSchemaViolation }

// NewSchemaError creates a new SchemaError
func NewSchemaError(field, message string) *SchemaError {
	return &SchemaError{Field: field, Message: message}
}

// DrugNotFoundError reports which drug was missing
type DrugNotFoundError struct {
	Name string `json:"name"`
}

// Error implements the error interface
func (e *DrugNotFoundError) Error() string {
	return fmt.Sprintf("drug %q not found in catalog", e.Name)
}

// Unwrap lets errors.Is match ErrDrugNotFound
func (e *DrugNotFoundError) Unwrap() error { return ErrDrugNotFound }

// IsRecoverable reports whether err belongs to the oracle failure family, which always has
// a defined fallback.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) || errors.Is(err, ErrSchemaViolation)
}
