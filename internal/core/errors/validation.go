package errors

import "fmt"

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ConfigValidationError wraps the validation errors found in one configuration.
type ConfigValidationError struct {
	Errors []error
}

func (e *ConfigValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %v", e.Errors[0])
	}
	return fmt.Sprintf("configuration validation failed with %d errors", len(e.Errors))
}

func (e *ConfigValidationError) Unwrap() []error {
	return e.Errors
}

// NewConfigValidationError collects errs into a single error, or returns nil
// when there are none.
func NewConfigValidationError(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ConfigValidationError{Errors: errs}
}
