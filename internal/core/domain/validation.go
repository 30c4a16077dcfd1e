// Package domain provides struct validation through go-playground/validator
// with tags for the network's address, DID and domain formats.
package domain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the engine's custom tags.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a validation instance with all custom tags registered.
func NewValidator() *Validator {
	validate := validator.New()

	for tag, fn := range map[string]validator.Func{
		"fan_address": validAddress,
		"fan_did":     validDID,
		"fan_domain":  validDomain,
		"duration":    validDuration,
		"file_exists": fileExists,
		"dir_exists":  dirExists,
		"abs_path":    absolutePath,
		"port":        validPort,
	} {
		_ = validate.RegisterValidation(tag, fn)
	}

	return &Validator{validator: validate}
}

// Validate validates a struct against its validate tags.
func (v *Validator) Validate(s interface{}) error {
	return v.validator.Struct(s)
}

// ValidateVar validates a single variable using the specified tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validator.Var(field, tag)
}

// Empty values pass the custom tags; combine with required where a value
// must be present.

func validAddress(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := ParseAddress(raw)
	return err == nil
}

func validDID(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := ParseDID(raw)
	return err == nil
}

// validDomain accepts servable agent domains. The sovereign token names a
// domainless identity and is rejected.
func validDomain(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())
	switch name {
	case "":
		return true
	case SovereignDomain:
		return false
	}
	_, err := normalizeDomain(name)
	return err == nil
}

func validDuration(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := time.ParseDuration(raw)
	return err == nil
}

func fileExists(fl validator.FieldLevel) bool {
	info, ok := statPath(fl.Field().String())
	return ok && (info == nil || !info.IsDir())
}

func dirExists(fl validator.FieldLevel) bool {
	info, ok := statPath(fl.Field().String())
	return ok && (info == nil || info.IsDir())
}

// statPath stats a path for the existence tags. An empty path reports ok
// with no info, so the tags stay composable with required.
func statPath(path string) (os.FileInfo, bool) {
	if path == "" {
		return nil, true
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	return info, true
}

// absolutePath requires a clean absolute path free of control characters,
// since these values end up in os.Open and log lines.
func absolutePath(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	for _, r := range path {
		if r < 32 || r == 127 {
			return false
		}
	}
	return filepath.IsAbs(path) && filepath.Clean(path) == path
}

// validPort accepts numeric ports and listener strings like ":8080".
func validPort(fl validator.FieldLevel) bool {
	field := fl.Field()

	var port int
	switch field.Kind() {
	case reflect.String:
		parsed, err := strconv.Atoi(strings.TrimPrefix(field.String(), ":"))
		if err != nil {
			return false
		}
		port = parsed
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		port = int(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		port = int(field.Uint())
	default:
		return false
	}

	return port >= 1 && port <= 65535
}

// FieldValidationError carries one failed field with a readable message.
type FieldValidationError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// Error implements the error interface.
func (ve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", ve.Field, ve.Message)
}

// ConvertValidationErrors flattens go-playground validation errors into
// per-field errors with human-readable messages.
func ConvertValidationErrors(err error) []FieldValidationError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	converted := make([]FieldValidationError, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		converted = append(converted, FieldValidationError{
			Field:   fieldErr.Field(),
			Tag:     fieldErr.Tag(),
			Value:   fieldErr.Value(),
			Message: messageFor(fieldErr),
		})
	}
	return converted
}

var tagMessages = map[string]string{
	"required":    "field is required",
	"fan_address": "must be a valid address (e.g., alice@fan.example.org)",
	"fan_did":     "must be a valid DID (e.g., did:fan:fan.example.org:alice)",
	"fan_domain":  "must be a servable domain name (e.g., fan.example.org)",
	"duration":    "must be a valid duration (e.g., 10s, 5m, 1h)",
	"file_exists": "file must exist and be a regular file",
	"dir_exists":  "directory must exist and be a directory",
	"abs_path":    "must be an absolute path without unsafe components",
	"port":        "must be a valid port number (1-65535)",
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "required_if":
		return fmt.Sprintf("field is required when %s", fe.Param())
	default:
		return fmt.Sprintf("validation failed for tag '%s'", fe.Tag())
	}
}

// GlobalValidator is the shared validator instance.
var GlobalValidator = NewValidator()

// ValidateStruct validates a struct using the shared validator.
func ValidateStruct(s interface{}) error {
	return GlobalValidator.Validate(s)
}
