package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	errors "github.com/frahmantamala/document-management/internal"
)

// maxPasswordLength keeps the peppered bcrypt input meaningful.
const maxPasswordLength = 128

// rule reports a failure message, or "" when the value passes.
type rule func(value interface{}) (string, errors.ErrorCode)

// FieldValidator chains rules for one named value. Rules run in order and
// the first failure of a field is reported.
type FieldValidator struct {
	name  string
	value interface{}
	rules []rule
}

// ValidationBuilder collects field rules that the tag based Struct check
// cannot express, such as configured lengths or dates relative to now.
type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{name: name, value: value}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) add(r rule) *FieldValidator {
	fv.rules = append(fv.rules, r)
	return fv
}

func (fv *FieldValidator) Required() *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if isBlank(value) {
			return fv.name + " is required", errors.ErrCodeValidationFailed
		}
		return "", ""
	})
}

func (fv *FieldValidator) MinLength(min int) *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) < min {
			return fmt.Sprintf("%s must be at least %d characters", fv.name, min), errors.ErrCodeValidationFailed
		}
		return "", ""
	})
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > max {
			return fmt.Sprintf("%s must not exceed %d characters", fv.name, max), errors.ErrCodeValidationFailed
		}
		return "", ""
	})
}

// Email reuses the tag validator's address rule so both paths agree.
func (fv *FieldValidator) Email() *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if s, ok := value.(string); ok && s != "" && structValidator.Var(s, "email") != nil {
			return fv.name + " must be a valid email address", errors.ErrCodeInvalidValue
		}
		return "", ""
	})
}

func (fv *FieldValidator) OneOf(values ...string) *FieldValidator {
	tag := "oneof=" + strings.Join(values, " ")
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if s, ok := value.(string); ok && s != "" && structValidator.Var(s, tag) != nil {
			return fmt.Sprintf("%s must be one of: %s", fv.name, strings.Join(values, ", ")), errors.ErrCodeInvalidValue
		}
		return "", ""
	})
}

// NotFuture rejects times after now, e.g. birth dates.
func (fv *FieldValidator) NotFuture() *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if t, ok := value.(time.Time); ok && t.After(time.Now()) {
			return fv.name + " cannot be in the future", errors.ErrCodeInvalidValue
		}
		return "", ""
	})
}

func (fv *FieldValidator) Custom(check func(interface{}) *errors.AppError) *FieldValidator {
	return fv.add(func(value interface{}) (string, errors.ErrorCode) {
		if err := check(value); err != nil {
			return err.Message, err.Code
		}
		return "", ""
	})
}

// Validate returns nil or one 422 error listing every failing field.
func (v *ValidationBuilder) Validate() *errors.AppError {
	var problems []errors.ValidationError
	for _, fv := range v.fields {
		for _, r := range fv.rules {
			if msg, code := r(fv.value); msg != "" {
				problems = append(problems, errors.ValidationError{Field: fv.name, Message: msg, Code: string(code)})
				break
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: problems})
}

// ValidatePassword enforces the configured minimum length.
func ValidatePassword(password string, minLength int) *errors.AppError {
	v := NewValidator()
	v.Field("password", password).Required().MinLength(minLength).MaxLength(maxPasswordLength)
	return v.Validate()
}

func isBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	case int64:
		return v == 0
	case time.Time:
		return v.IsZero()
	}
	return false
}
