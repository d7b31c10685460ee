package common

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError represents a single field violation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator collects field violations so a caller can surface every failing
// field at once instead of stopping at the first.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// Field applies rules to a value and collects any violations.
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// Add records a violation directly, for cross-field invariants that do not
// fit the single-field rule shape.
func (v *Validator) Add(fieldName, message string) *Validator {
	v.errors = append(v.errors, ValidationError{Field: fieldName, Message: message})
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage joins every violation as "field: message; field: message".
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}
	msgs := make([]string, len(v.errors))
	for i, err := range v.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when clean, otherwise an AppError carrying the full
// enumeration of violations.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(CodeValidation, v.ErrorMessage(), ErrValidation)
}

// ValidationRule checks one field value.
type ValidationRule func(fieldName string, value any) *ValidationError

// Required fails on nil, empty and blank strings.
func Required(fieldName string, value any) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "obrigatorio"}
	}
	switch t := value.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "obrigatorio"}
		}
	case *string:
		if t == nil || strings.TrimSpace(*t) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "obrigatorio"}
		}
	}
	return nil
}

// ExactDigits builds a rule requiring a string of exactly n digits. Empty
// strings and nil pointers pass; combine with Required when the field is
// mandatory.
func ExactDigits(n int) ValidationRule {
	re := regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, n))
	msg := fmt.Sprintf("deve conter exatamente %d digitos", n)
	return func(fieldName string, value any) *ValidationError {
		s, ok := stringValue(value)
		if !ok || s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return &ValidationError{Field: fieldName, Value: value, Message: msg}
		}
		return nil
	}
}

// Pattern builds a rule requiring the value to match re. Empty values pass.
func Pattern(re *regexp.Regexp, message string) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		s, ok := stringValue(value)
		if !ok || s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return &ValidationError{Field: fieldName, Value: value, Message: message}
		}
		return nil
	}
}

// DecimalMin builds a rule for decimal fields. Nil pointers pass.
func DecimalMin(min decimal.Decimal, inclusive bool) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		d, ok := decimalValue(value)
		if !ok {
			return nil
		}
		cmp := d.Cmp(min)
		if cmp > 0 || (inclusive && cmp == 0) {
			return nil
		}
		op := "maior que"
		if inclusive {
			op = "maior ou igual a"
		}
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("deve ser %s %s", op, min.String()),
		}
	}
}

func stringValue(value any) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case *string:
		if t == nil {
			return "", false
		}
		return *t, true
	default:
		return "", false
	}
}

func decimalValue(value any) (decimal.Decimal, bool) {
	switch t := value.(type) {
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	default:
		return decimal.Zero, false
	}
}
