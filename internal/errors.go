package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation-error"
	ErrorTypeBadRequest     ErrorType = "bad-request"
	ErrorTypeCredentials    ErrorType = "credentials-invalid"
	ErrorTypeTokenInvalid   ErrorType = "token-invalid"
	ErrorTypeTokenExpired   ErrorType = "token-expired"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeNotFound       ErrorType = "not-found"
	ErrorTypeAlreadyDeleted ErrorType = "already-deleted"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeBackend        ErrorType = "backend-error"
	ErrorTypeInternal       ErrorType = "internal-error"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidField     ErrorCode = "INVALID_FIELD"
	ErrCodeInvalidOperator  ErrorCode = "INVALID_OPERATOR"
	ErrCodeInvalidValue     ErrorCode = "INVALID_VALUE"
	ErrCodeInvalidPassword  ErrorCode = "INVALID_PASSWORD"
	ErrCodeInvalidMimeType  ErrorCode = "INVALID_MIME_TYPE"
	ErrCodeInvalidBody      ErrorCode = "INVALID_BODY"

	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeRoleNotFound     ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeAlreadyDeleted   ErrorCode = "ALREADY_DELETED"
	ErrCodeEmailTaken       ErrorCode = "EMAIL_TAKEN"
	ErrCodeRoleNameTaken    ErrorCode = "ROLE_NAME_TAKEN"
	ErrCodeRoleInUse        ErrorCode = "ROLE_IN_USE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"

	ErrCodeStorage    ErrorCode = "STORAGE_ERROR"
	ErrCodeConversion ErrorCode = "CONVERSION_ERROR"
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy so that package-level sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Is matches AppErrors by type and code so wrapped copies compare equal to
// their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// FieldMessages groups messages by field, the shape returned to API clients.
func (v ValidationErrors) FieldMessages() map[string][]string {
	out := make(map[string][]string, len(v.Errors))
	for _, e := range v.Errors {
		field := e.Field
		if field == "" {
			field = "_schema"
		}
		out[field] = append(out[field], e.Message)
	}
	return out
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusUnprocessableEntity,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewBadRequestError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeBadRequest,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewAlreadyDeletedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAlreadyDeleted,
		Code:       ErrCodeAlreadyDeleted,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewBackendError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeBackend,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidCredentials = &AppError{Type: ErrorTypeCredentials, Code: ErrCodeInvalidCredentials, Message: "Invalid credentials", StatusCode: http.StatusUnauthorized}
	ErrInvalidToken       = &AppError{Type: ErrorTypeTokenInvalid, Code: ErrCodeInvalidToken, Message: "Invalid token", StatusCode: http.StatusUnauthorized}
	ErrTokenExpired       = &AppError{Type: ErrorTypeTokenExpired, Code: ErrCodeTokenExpired, Message: "Token has expired", StatusCode: http.StatusUnauthorized}
	ErrUnauthorized       = NewUnauthorizedError("Missing or invalid authorization", ErrCodeUnauthorized)
	ErrForbidden          = NewForbiddenError("You don't have the permission to access the requested resource", ErrCodeForbidden)
	ErrInvalidBody        = NewBadRequestError("Invalid request body", ErrCodeInvalidBody)

	// ErrResetTokenExpired is ErrTokenExpired as answered by the password reset routes.
	ErrResetTokenExpired = &AppError{Type: ErrorTypeTokenExpired, Code: ErrCodeTokenExpired, Message: "Token has expired", StatusCode: http.StatusBadRequest}

	ErrUserNotFound     = NewNotFoundError("User not found", ErrCodeUserNotFound)
	ErrRoleNotFound     = NewNotFoundError("Role not found", ErrCodeRoleNotFound)
	ErrDocumentNotFound = NewNotFoundError("Document not found", ErrCodeDocumentNotFound)
	ErrAlreadyDeleted   = NewAlreadyDeletedError("Record already deleted")
	ErrEmailTaken       = NewConflictError("Email already registered", ErrCodeEmailTaken)
	ErrRoleNameTaken    = NewConflictError("Role name already exists", ErrCodeRoleNameTaken)
	ErrRoleInUse        = NewConflictError("Role is assigned to live users", ErrCodeRoleInUse)

	ErrInternal = NewInternalError("The server encountered an internal error and was unable to complete your request.", nil)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Response is the error body: message is either a string or a map of field
// messages for validation failures.
type Response struct {
	Message interface{} `json:"message"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	if e.Type == ErrorTypeValidation {
		if details, ok := e.Details.(ValidationErrors); ok && len(details.Errors) > 0 {
			return e.StatusCode, Response{Message: details.FieldMessages()}
		}
	}
	return e.StatusCode, Response{Message: e.Message}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}

// MergeValidation folds several validation AppErrors into one, sorted by field.
func MergeValidation(errs ...*AppError) *AppError {
	var all []ValidationError
	for _, e := range errs {
		if e == nil {
			continue
		}
		if details, ok := e.Details.(ValidationErrors); ok {
			all = append(all, details.Errors...)
			continue
		}
		all = append(all, ValidationError{Message: e.Message, Code: string(e.Code)})
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Field < all[j].Field })
	return NewValidationError("Validation failed", ErrCodeValidationFailed).
		WithDetails(ValidationErrors{Errors: all})
}
